// Package engine arbitrates which display item owns the deck.
//
// Producers add items from any goroutine. A single loop goroutine consumes
// key presses, guard expiries, refresh requests and device changes as
// messages, so rendering always reflects the most recent store mutation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/deckd/internal/layout"
	"github.com/jmylchreest/deckd/internal/model"
	"github.com/jmylchreest/deckd/internal/render"
)

// Sentinel errors.
var (
	ErrNoDevice      = errors.New("no device connected")
	ErrEngineStopped = errors.New("engine stopped")
	ErrNotFound      = errors.New("item not found")
	ErrRenderPanic   = errors.New("render panicked")
)

// Renderer turns a view into one image per key.
type Renderer interface {
	Render(view render.View) ([]image.Image, error)
}

// Device is the deck the engine draws on. Presses are delivered by calling
// Engine.Press from the device's own goroutine.
type Device interface {
	Geometry() layout.Geometry
	Ready() bool
	Draw(frame render.Frame) error
}

// Peer reports whether the producer behind a blocking item is still there.
type Peer interface {
	Alive() bool
}

// PeerFunc adapts a function to Peer.
type PeerFunc func() bool

// Alive calls f.
func (f PeerFunc) Alive() bool { return f() }

// Config holds the engine settings. They are read once by New.
type Config struct {
	PrimaryGuard     time.Duration
	MinorGuard       time.Duration
	MuteGuarded      bool
	LivenessInterval time.Duration
	// Accent picks the owner colour drawn on every key. Optional.
	Accent func(owner string) color.RGBA
	// Now overrides the clock used for guard windows. Optional.
	Now func() time.Time
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		PrimaryGuard:     300 * time.Millisecond,
		MinorGuard:       0,
		MuteGuarded:      true,
		LivenessInterval: time.Second,
	}
}

type eventKind int

const (
	evPress eventKind = iota
	evGuardExpired
	evRefresh
	evDeviceChanged
	evSync
)

type event struct {
	kind eventKind
	key  int
	gen  uint64
	id   string
	done chan struct{}
}

// shown identifies what is on the device so unchanged states are not redrawn.
type shown struct {
	valid bool
	id    string
	rev   uint64
	muted bool
}

// presentation is the identity last put in front of the user. ok is false
// while the device is away.
type presentation struct {
	ok bool
	id string
}

// Engine owns the store, guard and router.
type Engine struct {
	cfg      Config
	store    *Store
	guard    *Guard
	renderer Renderer
	device   Device
	logger   *slog.Logger

	events  chan event
	dirty   atomic.Bool
	started atomic.Bool
	done    chan struct{}

	// loop-owned
	last      shown
	presented presentation

	cbMu       sync.RWMutex
	onDisplay  func(info *model.Info)
	onResolved func(info model.Info, res model.Result)
}

// New creates an engine. Call Run to start processing.
func New(cfg Config, renderer Renderer, device Device, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LivenessInterval <= 0 {
		cfg.LivenessInterval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		cfg:      cfg,
		store:    NewStore(),
		renderer: renderer,
		device:   device,
		logger:   logger,
		events:   make(chan event, 64),
		done:     make(chan struct{}),

		// the deck starts blank
		presented: presentation{ok: true},
	}
	e.guard = NewGuard(cfg.PrimaryGuard, cfg.MinorGuard, cfg.Now, func(gen uint64, id string) {
		e.post(event{kind: evGuardExpired, gen: gen, id: id})
	})
	return e
}

// SetDisplayCallback sets the callback invoked when the displayed item
// changes identity. info is nil when the deck goes blank.
func (e *Engine) SetDisplayCallback(callback func(info *model.Info)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onDisplay = callback
}

// SetResolvedCallback sets the callback invoked once per item when it
// reaches a terminal result.
func (e *Engine) SetResolvedCallback(callback func(info model.Info, res model.Result)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onResolved = callback
}

// Run processes events until ctx is cancelled. Blocked producers are woken
// with a Disconnected result when it returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer func() {
		close(e.done)
		e.guard.Cancel()
		for _, it := range e.store.Clear() {
			e.resolve(it, model.Disconnected())
		}
	}()

	e.logger.Debug("engine started")
	e.refresh(true)

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("engine stopped")
			return nil
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

func (e *Engine) handle(ev event) {
	switch ev.kind {
	case evPress:
		e.handlePress(ev.key)
	case evGuardExpired:
		e.handleGuardExpired(ev.gen, ev.id)
	case evRefresh:
		e.dirty.Store(false)
		e.refresh(false)
	case evDeviceChanged:
		e.dirty.Store(false)
		e.refresh(true)
	case evSync:
		close(ev.done)
	}
}

// post hands an event to the loop. It returns false once the engine stopped.
func (e *Engine) post(ev event) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) requestRefresh() {
	if e.dirty.CompareAndSwap(false, true) {
		if !e.post(event{kind: evRefresh}) {
			e.dirty.Store(false)
		}
	}
}

// Press delivers a raw key press. Safe to call from any goroutine.
func (e *Engine) Press(key int) {
	e.post(event{kind: evPress, key: key})
}

// DeviceChanged tells the engine the device was connected, disconnected or
// swapped. The current item is redrawn unconditionally.
func (e *Engine) DeviceChanged() {
	e.post(event{kind: evDeviceChanged})
}

// Redraw forces the current item to be drawn again, for example after the
// colours changed.
func (e *Engine) Redraw() {
	e.post(event{kind: evDeviceChanged})
}

// Sync blocks until every event posted before it has been processed.
func (e *Engine) Sync(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case e.events <- event{kind: evSync, done: done}:
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) stopped() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Ready reports whether blocking submissions are accepted.
func (e *Engine) Ready() bool {
	return !e.stopped() && e.deviceReady()
}

func (e *Engine) deviceReady() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("device readiness check panicked", "panic", r)
			ok = false
		}
	}()
	return e.device != nil && e.device.Ready()
}

func (e *Engine) geometry() (g layout.Geometry) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("device geometry panicked", "panic", r)
			g = layout.Geometry{}
		}
	}()
	if e.device == nil {
		return layout.Geometry{}
	}
	return e.device.Geometry()
}

// add stores it, resolves what it supersedes and schedules a refresh.
func (e *Engine) add(it *model.Item) error {
	if e.stopped() {
		return ErrEngineStopped
	}
	removed := e.store.Add(it)
	for _, old := range removed {
		e.logger.Debug("item superseded", "id", old.ID, "owner", old.Owner, "by", it.ID)
		e.resolve(old, model.Superseded())
	}
	e.logger.Debug("item added", "id", it.ID, "owner", it.Owner, "kind", it.Kind.String())
	e.requestRefresh()
	return nil
}

// Add inserts a prebuilt item without waiting on it. Blocking kinds must be
// awaited with Wait by the caller.
func (e *Engine) Add(it *model.Item) error {
	if err := it.Validate(); err != nil {
		return err
	}
	if it.Kind.Blocking() && !e.Ready() {
		return ErrNoDevice
	}
	return e.add(it)
}

// SubmitConfirmation displays a confirmation and blocks until it resolves,
// the peer goes away or ctx ends.
func (e *Engine) SubmitConfirmation(ctx context.Context, owner string, c model.Confirmation, peer Peer) (model.Result, error) {
	if !e.Ready() {
		return model.Result{}, ErrNoDevice
	}
	it, err := model.NewConfirmationItem(owner, c)
	if err != nil {
		return model.Result{}, err
	}
	if err := e.add(it); err != nil {
		return model.Result{}, err
	}
	return e.Wait(ctx, it, peer)
}

// SubmitInteractive displays a question set and blocks like SubmitConfirmation.
func (e *Engine) SubmitInteractive(ctx context.Context, owner string, in model.Interactive, peer Peer) (model.Result, error) {
	if !e.Ready() {
		return model.Result{}, ErrNoDevice
	}
	it, err := model.NewInteractiveItem(owner, in)
	if err != nil {
		return model.Result{}, err
	}
	if err := e.add(it); err != nil {
		return model.Result{}, err
	}
	return e.Wait(ctx, it, peer)
}

// SubmitAdvisory displays an advisory and returns its id immediately.
func (e *Engine) SubmitAdvisory(owner string, a model.Advisory) (string, error) {
	it, err := model.NewAdvisoryItem(owner, a)
	if err != nil {
		return "", err
	}
	return it.ID, e.add(it)
}

// SubmitStatus displays a status update and returns its id immediately.
func (e *Engine) SubmitStatus(owner string, s model.Status) (string, error) {
	it, err := model.NewStatusItem(owner, s)
	if err != nil {
		return "", err
	}
	return it.ID, e.add(it)
}

// Wait blocks on its resolution, checking the peer every liveness
// interval. A dead peer, a cancelled ctx or a stopped engine withdraws the
// item. If the item resolved first, that result wins.
func (e *Engine) Wait(ctx context.Context, it *model.Item, peer Peer) (model.Result, error) {
	res := it.Resolution()
	ticker := time.NewTicker(e.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-res.Done():
			r, _ := res.Result()
			return r, nil
		case <-ctx.Done():
			e.logger.Debug("producer gave up", "id", it.ID, "error", ctx.Err())
			return e.withdraw(it), nil
		case <-e.done:
			return e.withdraw(it), nil
		case <-ticker.C:
			if peer != nil && !peer.Alive() {
				e.logger.Info("peer disconnected, withdrawing item", "id", it.ID, "owner", it.Owner)
				return e.withdraw(it), nil
			}
		}
	}
}

func (e *Engine) withdraw(it *model.Item) model.Result {
	_ = e.Remove(it.ID)
	it.Resolve(model.Disconnected())
	r, _ := it.Resolution().Result()
	return r
}

// Remove withdraws a live item and resolves it Disconnected.
func (e *Engine) Remove(id string) error {
	it, ok := e.store.Remove(id)
	if !ok {
		return ErrNotFound
	}
	e.resolve(it, model.Disconnected())
	e.requestRefresh()
	return nil
}

// Snapshot lists the live items, best ranked first.
func (e *Engine) Snapshot() []model.Info {
	return e.store.Snapshot()
}

// Len returns the number of live items.
func (e *Engine) Len() int {
	return e.store.Len()
}

func (e *Engine) resolve(it *model.Item, res model.Result) {
	if !it.Resolve(res) {
		return
	}
	e.cbMu.RLock()
	cb := e.onResolved
	e.cbMu.RUnlock()
	if cb == nil {
		return
	}
	e.store.mu.Lock()
	info := it.Info(false)
	e.store.mu.Unlock()
	cb(info, res)
}

func (e *Engine) handlePress(key int) {
	g := e.geometry()

	e.store.mu.Lock()
	cur := e.store.current
	if cur == nil {
		e.store.mu.Unlock()
		return
	}
	if e.guard.Active(cur) {
		e.store.mu.Unlock()
		e.logger.Debug("press dropped while guarded", "key", key, "id", cur.ID)
		return
	}
	act := Route(cur, key, g)
	if act.Kind == ActionNone {
		e.store.mu.Unlock()
		return
	}
	out := apply(cur, act)
	if out.paged {
		e.guard.Arm(cur)
	}
	if out.resolved {
		e.store.removeLocked(cur.ID)
	}
	e.store.mu.Unlock()

	e.logger.Debug("key pressed", "key", key, "action", act.Kind.String(), "id", cur.ID)
	if out.resolved {
		e.resolve(cur, out.result)
	}
	e.refresh(false)
}

func (e *Engine) handleGuardExpired(gen uint64, id string) {
	if !e.guard.Current(gen) {
		return
	}
	if _, ok := e.store.Get(id); !ok {
		return
	}
	e.refresh(false)
}

// refresh reselects and redraws when the visible state differs from what
// the device shows. force redraws regardless.
func (e *Engine) refresh(force bool) {
	g := e.geometry()
	ready := e.deviceReady()

	e.store.mu.Lock()
	cur, changed := e.store.reselectLocked()
	// The guard window starts when an item first reaches a ready deck,
	// including a deck that reconnected while the item was selected.
	fresh := ready && (!e.presented.ok || e.presented.id != identity(cur))
	switch {
	case fresh && cur != nil:
		e.guard.Arm(cur)
	case fresh, changed && !ready:
		e.guard.Cancel()
	}
	muted := e.cfg.MuteGuarded && e.guard.Active(cur)
	var accent color.RGBA
	if cur != nil && e.cfg.Accent != nil {
		accent = e.cfg.Accent(cur.Owner)
	}
	view := render.Compose(cur, g, muted, accent)
	next := shown{valid: true, id: identity(cur), muted: muted}
	if cur != nil {
		next.rev = cur.Rev
	}
	e.store.mu.Unlock()

	if !ready {
		e.presented = presentation{}
		e.last = shown{}
		return
	}
	if fresh {
		e.presented = presentation{ok: true, id: next.id}
		e.notifyDisplay(view.Item)
	}
	if !force && next == e.last {
		return
	}
	if err := e.draw(view); err != nil {
		e.logger.Warn("render failed", "error", err, "id", next.id)
		e.last = shown{}
		return
	}
	e.last = next
}

func (e *Engine) draw(view render.View) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()
	images, err := e.renderer.Render(view)
	if err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	if err := e.device.Draw(render.Frame{View: view, Images: images}); err != nil {
		return fmt.Errorf("failed to draw: %w", err)
	}
	return nil
}

func (e *Engine) notifyDisplay(info *model.Info) {
	e.cbMu.RLock()
	cb := e.onDisplay
	e.cbMu.RUnlock()
	if cb != nil {
		cb(info)
	}
}
