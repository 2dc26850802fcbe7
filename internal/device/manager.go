// Package device connects decks to the engine and keeps them connected.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/deckd/internal/layout"
	"github.com/jmylchreest/deckd/internal/render"
)

var (
	ErrNotConnected = errors.New("no deck connected")
	ErrNotFound     = errors.New("deck not found")
)

// Deck is an open key grid with a screen per key.
type Deck interface {
	Geometry() layout.Geometry
	Draw(frame render.Frame) error
	// Healthy reports whether the deck is still usable.
	Healthy() bool
	Close() error
}

// Driver opens decks of one kind. Open returns ErrNotFound when no deck is
// attached. press is called from the deck's own goroutine.
type Driver interface {
	Name() string
	Open(press func(key int)) (Deck, error)
}

// Manager polls a driver for its deck and presents whichever deck is
// attached as a single device. It satisfies engine.Device.
type Manager struct {
	mu     sync.RWMutex
	logger *slog.Logger
	driver Driver

	deck      Deck
	lastSeen  time.Time
	lastError string
	idleFired bool

	pollInterval time.Duration
	idleTimeout  time.Duration

	onPress   func(key int)
	onChanged func()
	onIdle    func()

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewManager creates a manager for driver.
func NewManager(driver Driver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:       logger,
		driver:       driver,
		pollInterval: 2 * time.Second,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// SetPollInterval sets how often a missing deck is looked for.
func (m *Manager) SetPollInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval > 0 {
		m.pollInterval = interval
	}
}

// SetIdleTimeout sets how long the manager waits without a deck before
// calling the idle callback. Zero disables it.
func (m *Manager) SetIdleTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = timeout
}

// SetPressCallback sets the callback invoked for every key press.
func (m *Manager) SetPressCallback(callback func(key int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPress = callback
}

// SetChangeCallback sets the callback invoked when a deck connects or
// disconnects.
func (m *Manager) SetChangeCallback(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = callback
}

// SetIdleCallback sets the callback invoked once the idle timeout passes
// without a deck.
func (m *Manager) SetIdleCallback(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onIdle = callback
}

// Name returns the driver name.
func (m *Manager) Name() string {
	return m.driver.Name()
}

// Geometry returns the connected deck's grid, or an empty grid.
func (m *Manager) Geometry() layout.Geometry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.deck == nil {
		return layout.Geometry{}
	}
	return m.deck.Geometry()
}

// Ready reports whether a deck is connected.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deck != nil
}

// LastError returns the most recent open or draw failure.
func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Draw sends a frame to the connected deck. A failed draw drops the deck so
// the next poll reopens it.
func (m *Manager) Draw(frame render.Frame) error {
	m.mu.RLock()
	deck := m.deck
	m.mu.RUnlock()
	if deck == nil {
		return ErrNotConnected
	}
	if err := deck.Draw(frame); err != nil {
		m.logger.Warn("draw failed, dropping deck", "driver", m.driver.Name(), "error", err)
		m.disconnect(deck, err)
		return fmt.Errorf("failed to draw: %w", err)
	}
	return nil
}

// Start opens the deck if present and begins polling.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.lastSeen = time.Now()
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	interval := m.pollInterval
	m.mu.Unlock()

	m.poll()
	go m.pollLoop(ctx, interval)

	m.logger.Debug("device manager started", "driver", m.driver.Name(), "interval", interval)
	return nil
}

// Stop stops polling and closes the deck.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	<-m.doneCh

	m.mu.Lock()
	deck := m.deck
	m.deck = nil
	m.mu.Unlock()
	if deck != nil {
		if err := deck.Close(); err != nil {
			m.logger.Debug("failed to close deck", "error", err)
		}
	}
	m.logger.Debug("device manager stopped")
}

func (m *Manager) pollLoop(ctx context.Context, interval time.Duration) {
	defer close(m.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

// poll checks the deck's health, reopens a missing deck and fires the
// idle callback when none has been seen for too long.
func (m *Manager) poll() {
	m.mu.RLock()
	deck := m.deck
	m.mu.RUnlock()

	if deck != nil {
		if deck.Healthy() {
			m.mu.Lock()
			m.lastSeen = time.Now()
			m.mu.Unlock()
			return
		}
		m.logger.Info("deck disconnected", "driver", m.driver.Name())
		m.disconnect(deck, nil)
	}

	opened, err := m.driver.Open(m.press)
	if err != nil {
		m.mu.Lock()
		m.lastError = err.Error()
		idle := !m.idleFired && m.idleTimeout > 0 && time.Since(m.lastSeen) >= m.idleTimeout
		if idle {
			m.idleFired = true
		}
		onIdle := m.onIdle
		m.mu.Unlock()
		if !errors.Is(err, ErrNotFound) {
			m.logger.Debug("failed to open deck", "driver", m.driver.Name(), "error", err)
		}
		if idle && onIdle != nil {
			m.logger.Info("no deck for too long, going idle", "timeout", m.idleTimeout)
			onIdle()
		}
		return
	}

	geo := opened.Geometry()
	m.mu.Lock()
	m.deck = opened
	m.lastSeen = time.Now()
	m.lastError = ""
	m.idleFired = false
	changed := m.onChanged
	m.mu.Unlock()

	m.logger.Info("deck connected", "driver", m.driver.Name(), "grid", geo.String())
	if changed != nil {
		changed()
	}
}

func (m *Manager) disconnect(deck Deck, cause error) {
	m.mu.Lock()
	if m.deck != deck {
		m.mu.Unlock()
		return
	}
	m.deck = nil
	if cause != nil {
		m.lastError = cause.Error()
	}
	changed := m.onChanged
	m.mu.Unlock()

	_ = deck.Close()
	// Draw runs on the engine loop, which must not block on its own queue.
	if changed != nil {
		go changed()
	}
}

func (m *Manager) press(key int) {
	m.mu.RLock()
	callback := m.onPress
	m.mu.RUnlock()
	if callback != nil {
		callback(key)
	}
}
