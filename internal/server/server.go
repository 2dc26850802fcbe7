// Package server accepts agent hook connections on a unix socket and turns
// their messages into display items.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jmylchreest/deckd/internal/engine"
	"github.com/jmylchreest/deckd/internal/model"
	"github.com/jmylchreest/deckd/internal/protocol"
)

// StatusStop is the status type shown when an agent finishes its turn.
const StatusStop = "stop"

var (
	ErrAlreadyRunning = errors.New("another daemon is already running")
	ErrServerRunning  = errors.New("server already running")
)

// Arbiter is the part of the engine the server drives.
type Arbiter interface {
	Ready() bool
	SubmitConfirmation(ctx context.Context, owner string, c model.Confirmation, peer engine.Peer) (model.Result, error)
	SubmitInteractive(ctx context.Context, owner string, in model.Interactive, peer engine.Peer) (model.Result, error)
	SubmitAdvisory(owner string, a model.Advisory) (string, error)
	SubmitStatus(owner string, s model.Status) (string, error)
	Snapshot() []model.Info
	Remove(id string) error
}

// Options configures the server.
type Options struct {
	Path             string
	LivenessInterval time.Duration
	// RequestTimeout bounds how long a blocking request waits. Zero waits
	// until the item resolves or the client goes away.
	RequestTimeout time.Duration
	// ReadTimeout bounds how long a client may take to send its message.
	ReadTimeout time.Duration
}

// StopHandler is called when a client asks the daemon to stop.
type StopHandler func()

// StatusFilter reports whether status updates of a type are shown.
type StatusFilter func(typ string) bool

// StatusProvider answers status queries.
type StatusProvider func() protocol.StatusResponse

// RequestHandler is called after a blocking request has been answered.
type RequestHandler func(req *protocol.PermissionRequest, resp protocol.PermissionResponse)

// Server is the unix socket front end of the daemon.
type Server struct {
	opts   Options
	arb    Arbiter
	logger *slog.Logger

	mu             sync.Mutex
	listener       net.Listener
	running        bool
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	stopHandler    StopHandler
	statusFilter   StatusFilter
	statusProvider StatusProvider
	requestHandler RequestHandler
}

// New creates a server. Call Start to begin accepting connections.
func New(opts Options, arb Arbiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	return &Server{
		opts:   opts,
		arb:    arb,
		logger: logger,
	}
}

// SetStopHandler sets the handler called on a stop message.
func (s *Server) SetStopHandler(handler StopHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopHandler = handler
}

// SetStatusFilter sets the status type filter. Without one every type is shown.
func (s *Server) SetStatusFilter(filter StatusFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusFilter = filter
}

// SetStatusProvider sets the function answering status queries.
func (s *Server) SetStatusProvider(provider StatusProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusProvider = provider
}

// SetRequestHandler sets the handler called once per answered request.
func (s *Server) SetRequestHandler(handler RequestHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestHandler = handler
}

// Addr returns the socket path.
func (s *Server) Addr() string {
	return s.opts.Path
}

// Start removes a stale socket, binds and starts the accept loop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrServerRunning
	}

	if err := CheckSocket(s.opts.Path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.opts.Path), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	l, err := net.Listen("unix", s.opts.Path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Path, err)
	}
	if err := os.Chmod(s.opts.Path, 0600); err != nil {
		_ = l.Close()
		return fmt.Errorf("failed to restrict socket permissions: %w", err)
	}

	s.listener = l
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.wg.Add(1)
	go s.acceptLoop(l)

	s.logger.Info("socket server started", "path", s.opts.Path)
	return nil
}

// Stop closes the listener, withdraws pending requests and waits for
// connection handlers to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	err := s.listener.Close()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("socket server stopped")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// CheckSocket removes a socket file nobody listens on. It returns
// ErrAlreadyRunning when another process accepts connections on path.
func CheckSocket(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat socket: %w", err)
	}
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		_ = conn.Close()
		return ErrAlreadyRunning
	}
	if !errors.Is(err, syscall.ECONNREFUSED) && !errors.Is(err, syscall.ENOENT) {
		return fmt.Errorf("failed to probe socket: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop(l net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	line, err := protocol.ReadLine(bufio.NewReaderSize(conn, protocol.MaxMessageSize))
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("failed to read message", "error", err)
		}
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	msg, err := protocol.Decode(line)
	if err != nil {
		s.logger.Warn("invalid message", "error", err)
		s.reply(conn, protocol.ErrorResponse(protocol.StatusError, err.Error()))
		return
	}

	switch m := msg.(type) {
	case *protocol.PermissionRequest:
		s.handleRequest(conn, m)
	case *protocol.Notification:
		s.handleNotification(m)
	case *protocol.Control:
		s.handleControl(conn, m)
	default:
		s.reply(conn, protocol.ErrorResponse(protocol.StatusError, "unexpected message type"))
	}
}

func (s *Server) reply(conn net.Conn, v any) {
	if err := protocol.Encode(conn, v); err != nil {
		s.logger.Debug("failed to send reply", "error", err)
	}
}

func (s *Server) handleRequest(conn net.Conn, req *protocol.PermissionRequest) {
	owner := req.Owner()
	kind := req.Kind()
	s.logger.Info("request received", "tool", req.ToolName, "owner", owner, "kind", kind.String())

	if !s.arb.Ready() {
		s.answer(conn, req, protocol.ErrorResponse(protocol.StatusNoDevice, ""))
		return
	}

	if kind == model.KindAdvisory {
		if _, err := s.arb.SubmitAdvisory(owner, req.Advisory()); err != nil {
			s.answer(conn, req, s.failure(err))
			return
		}
		s.answer(conn, req, protocol.ErrorResponse(protocol.StatusFallback, ""))
		return
	}

	ctx := s.ctx
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	peer := newConnPeer(conn, s.opts.LivenessInterval)

	var (
		res model.Result
		err error
	)
	switch kind {
	case model.KindInteractive:
		var in model.Interactive
		in, err = req.Interactive()
		if err == nil {
			res, err = s.arb.SubmitInteractive(ctx, owner, in, peer)
		}
	default:
		res, err = s.arb.SubmitConfirmation(ctx, owner, req.Confirmation(), peer)
	}
	if err != nil {
		s.answer(conn, req, s.failure(err))
		return
	}
	s.answer(conn, req, protocol.ResponseFor(res))
}

func (s *Server) failure(err error) protocol.PermissionResponse {
	if errors.Is(err, engine.ErrNoDevice) {
		return protocol.ErrorResponse(protocol.StatusNoDevice, "")
	}
	s.logger.Warn("request rejected", "error", err)
	return protocol.ErrorResponse(protocol.StatusError, err.Error())
}

func (s *Server) answer(conn net.Conn, req *protocol.PermissionRequest, resp protocol.PermissionResponse) {
	s.logger.Info("sending response", "tool", req.ToolName, "status", resp.Status)
	s.reply(conn, resp)

	s.mu.Lock()
	handler := s.requestHandler
	s.mu.Unlock()
	if handler != nil {
		handler(req, resp)
	}
}

func (s *Server) statusAllowed(typ string) bool {
	s.mu.Lock()
	filter := s.statusFilter
	s.mu.Unlock()
	return filter == nil || filter(typ)
}

func (s *Server) handleNotification(n *protocol.Notification) {
	if !s.statusAllowed(n.NotificationType) {
		s.logger.Debug("ignoring status type", "type", n.NotificationType)
		return
	}
	owner := protocol.Owner(n.ClientPID)
	if _, err := s.arb.SubmitStatus(owner, n.Status()); err != nil {
		s.logger.Warn("failed to show status", "type", n.NotificationType, "error", err)
		return
	}
	s.logger.Info("status stored", "type", n.NotificationType, "owner", owner)
}

func (s *Server) handleControl(conn net.Conn, c *protocol.Control) {
	switch c.Type {
	case protocol.TypeStop:
		s.logger.Info("stop requested via socket")
		s.mu.Lock()
		handler := s.stopHandler
		s.mu.Unlock()
		if handler != nil {
			go handler()
		}
	case protocol.TypeStopHook:
		s.handleStopHook(protocol.Owner(c.ClientPID))
	case protocol.TypeStatus:
		s.reply(conn, s.status())
	}
}

// handleStopHook clears what an agent left on the deck when its turn ends.
func (s *Server) handleStopHook(owner string) {
	if owner == "" {
		return
	}
	if s.statusAllowed(StatusStop) {
		if _, err := s.arb.SubmitStatus(owner, model.Status{Type: StatusStop, Title: "Done"}); err != nil {
			s.logger.Warn("failed to show stop status", "owner", owner, "error", err)
		}
		return
	}
	purged := 0
	for _, info := range s.arb.Snapshot() {
		if info.Owner == owner && s.arb.Remove(info.ID) == nil {
			purged++
		}
	}
	if purged > 0 {
		s.logger.Info("purged stale items", "owner", owner, "count", purged)
	}
}

func (s *Server) status() protocol.StatusResponse {
	s.mu.Lock()
	provider := s.statusProvider
	s.mu.Unlock()
	if provider != nil {
		resp := provider()
		resp.Type = protocol.TypeStatusResponse
		return resp
	}
	return protocol.StatusResponse{
		Type:  protocol.TypeStatusResponse,
		Items: s.arb.Snapshot(),
	}
}

var probe = []byte{'\n'}

// connPeer probes a client by writing a blank line. Clients skip blank lines.
type connPeer struct {
	conn    net.Conn
	timeout time.Duration

	mu   sync.Mutex
	dead bool
}

func newConnPeer(conn net.Conn, timeout time.Duration) *connPeer {
	return &connPeer{conn: conn, timeout: timeout}
}

// Alive writes a probe and reports whether it went through.
func (p *connPeer) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return false
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.timeout))
	if _, err := p.conn.Write(probe); err != nil {
		p.dead = true
	}
	_ = p.conn.SetWriteDeadline(time.Time{})
	return !p.dead
}
