// Package api exposes a small HTTP control surface for the deck: listing
// items, pressing keys remotely and dismissing items.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/jmylchreest/deckd/internal/engine"
	"github.com/jmylchreest/deckd/internal/history"
	"github.com/jmylchreest/deckd/internal/model"
)

const defaultHistoryLimit = 50

// Controller is the part of the engine the API drives.
type Controller interface {
	Ready() bool
	Press(key int)
	Snapshot() []model.Info
	Remove(id string) error
}

// HistoryLister lists resolved items.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// Message is the JSON body of status replies.
type Message struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Server serves the control API.
type Server struct {
	mu      sync.Mutex
	logger  *slog.Logger
	ctrl    Controller
	history HistoryLister
	apiKey  string

	router *mux.Router
	server *http.Server
	ln     net.Listener
}

// New creates an API server. An empty apiKey disables the key check.
func New(ctrl Controller, apiKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger: logger,
		ctrl:   ctrl,
		apiKey: apiKey,
		router: mux.NewRouter().StrictSlash(false),
	}
	s.routes()
	return s
}

// SetHistory enables the history endpoint.
func (s *Server) SetHistory(h HistoryLister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = h
}

func (s *Server) routes() {
	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiRouter.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusNotFound, "")
	})
	apiRouter.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "")
	})
	apiRouter.Use(s.middleware)

	apiRouter.HandleFunc("/is_alive", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "")
	}).Methods(http.MethodGet)
	apiRouter.HandleFunc("/items", s.listItems).Methods(http.MethodGet)
	apiRouter.HandleFunc("/items/{id}", s.removeItem).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/keys/{key}", s.pressKey).Methods(http.MethodPost)
	apiRouter.HandleFunc("/history", s.listHistory).Methods(http.MethodGet)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Warn("recovered from panic", "panic", rec, "stack", string(debug.Stack()))
				writeStatus(w, http.StatusInternalServerError, fmt.Sprintf("%v", rec))
			}
		}()
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeStatus(w, http.StatusForbidden, "")
			return
		}
		s.logger.Debug("api request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listItems(w http.ResponseWriter, _ *http.Request) {
	items := s.ctrl.Snapshot()
	if items == nil {
		items = []model.Info{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.ctrl.Remove(id)
	switch {
	case err == nil:
		writeStatus(w, http.StatusOK, "")
	case errors.Is(err, engine.ErrNotFound):
		writeStatus(w, http.StatusNotFound, "no item "+id)
	default:
		writeStatus(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) pressKey(w http.ResponseWriter, r *http.Request) {
	key, err := strconv.Atoi(mux.Vars(r)["key"])
	if err != nil || key < 0 {
		writeStatus(w, http.StatusBadRequest, "")
		return
	}
	if !s.ctrl.Ready() {
		writeStatus(w, http.StatusServiceUnavailable, "no deck connected")
		return
	}
	s.ctrl.Press(key)
	writeStatus(w, http.StatusAccepted, "pressed")
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	h := s.history
	s.mu.Unlock()
	if h == nil {
		writeStatus(w, http.StatusServiceUnavailable, "history disabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.List(r.Context(), limit)
	if err != nil {
		writeStatus(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler {
	headersOk := handlers.AllowedHeaders([]string{"x-api-key", "Content-Type"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions})
	return handlers.CompressHandler(handlers.CORS(originsOk, headersOk, methodsOk)(s.router))
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.ln = ln
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", "error", err)
		}
	}()
	s.logger.Info("api listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	if message == "" {
		switch status {
		case http.StatusOK:
			message = "Ok"
		case http.StatusNotFound:
			message = "Page not found"
		case http.StatusMethodNotAllowed:
			message = "Method not allowed"
		case http.StatusForbidden:
			message = "Forbidden"
		case http.StatusBadRequest:
			message = "Bad request"
		default:
			message = "Internal error"
		}
	}
	writeJSON(w, status, Message{Status: status, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
