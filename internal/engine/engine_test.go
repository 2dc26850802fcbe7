package engine

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/deckd/internal/layout"
	"github.com/jmylchreest/deckd/internal/model"
	"github.com/jmylchreest/deckd/internal/render"
)

type fakeDevice struct {
	mu     sync.Mutex
	geo    layout.Geometry
	ready  bool
	frames []render.Frame
	panics int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{geo: deck, ready: true}
}

func (d *fakeDevice) Geometry() layout.Geometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.geo
}

func (d *fakeDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *fakeDevice) Draw(frame render.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panics > 0 {
		d.panics--
		panic("usb write failed")
	}
	d.frames = append(d.frames, frame)
	return nil
}

func (d *fakeDevice) setReady(ready bool) {
	d.mu.Lock()
	d.ready = ready
	d.mu.Unlock()
}

func (d *fakeDevice) last() (render.Frame, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return render.Frame{}, 0
	}
	return d.frames[len(d.frames)-1], len(d.frames)
}

func (d *fakeDevice) shownID() string {
	f, _ := d.last()
	if f.View.Item == nil {
		return ""
	}
	return f.View.Item.ID
}

type fakeRenderer struct{}

func (fakeRenderer) Render(v render.View) ([]image.Image, error) {
	return make([]image.Image, v.Geometry.Total()), nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PrimaryGuard = 0
	cfg.MuteGuarded = false
	cfg.LivenessInterval = 10 * time.Millisecond
	return cfg
}

func startEngine(t *testing.T, cfg Config, dev *fakeDevice) *Engine {
	t.Helper()
	e := New(cfg, fakeRenderer{}, dev, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	return e
}

func syncEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Sync(ctx))
}

type submitted struct {
	res model.Result
	err error
}

func submitConfirmation(e *Engine, owner string, c model.Confirmation, peer Peer) <-chan submitted {
	ch := make(chan submitted, 1)
	go func() {
		res, err := e.SubmitConfirmation(context.Background(), owner, c, peer)
		ch <- submitted{res, err}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan submitted) submitted {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("producer was never woken")
		return submitted{}
	}
}

// waitLen waits until the store holds n items and the loop has selected the
// best of them.
func waitLen(t *testing.T, e *Engine, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		if e.Len() != n {
			return false
		}
		cur := e.store.Current()
		if n == 0 {
			return cur == nil
		}
		snap := e.Snapshot()
		return cur != nil && len(snap) > 0 && snap[0].ID == cur.ID
	}, time.Second, time.Millisecond)
	syncEngine(t, e)
}

func allowDeny() model.Confirmation {
	return model.Confirmation{
		Tool: "Bash",
		Choices: []model.Choice{
			{Label: "Allow", Behavior: model.BehaviorAllow},
			{Label: "Deny", Behavior: model.BehaviorDeny},
		},
	}
}

func TestEngine_ConfirmationRoundTrip(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	ch := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)

	f, _ := dev.last()
	require.NotNil(t, f.View.Item)
	assert.Equal(t, "Allow", f.View.Faces[14].Label)

	e.Press(14)
	s := waitResult(t, ch)
	require.NoError(t, s.err)
	assert.Equal(t, model.OutcomeCompleted, s.res.Outcome)
	require.NotNil(t, s.res.Decision.Choice)
	assert.Equal(t, model.BehaviorAllow, s.res.Decision.Choice.Behavior)

	waitLen(t, e, 0)
	assert.Empty(t, dev.shownID())
}

func TestEngine_ToggleChoice(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	c := allowDeny()
	c.Choices = append(c.Choices, model.Choice{Label: "Always", Behavior: model.BehaviorAllow, Toggle: true})
	ch := submitConfirmation(e, "a", c, nil)
	waitLen(t, e, 1)

	e.Press(13)
	syncEngine(t, e)
	f, _ := dev.last()
	assert.True(t, f.View.Faces[13].Active)
	assert.Equal(t, 1, e.Len())

	e.Press(14)
	s := waitResult(t, ch)
	require.NoError(t, s.err)
	assert.Equal(t, "Always", s.res.Decision.Choice.Label)
}

func TestEngine_InteractiveFlow(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	ch := make(chan submitted, 1)
	go func() {
		res, err := e.SubmitInteractive(context.Background(), "a", model.Interactive{Questions: []model.Question{
			{Prompt: "q0", Options: []model.Option{{Label: "A"}, {Label: "B"}}},
			{Prompt: "q1", Options: []model.Option{{Label: "W"}, {Label: "X"}}},
		}}, nil)
		ch <- submitted{res, err}
	}()
	waitLen(t, e, 1)

	for _, key := range []int{0, 14, 1, 14, 14} {
		e.Press(key)
	}
	s := waitResult(t, ch)
	require.NoError(t, s.err)
	assert.Equal(t, model.OutcomeCompleted, s.res.Outcome)
	assert.Equal(t, map[string]string{"q0": "A", "q1": "X"}, s.res.Decision.Answers)
}

func TestEngine_InteractiveCancel(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	ch := make(chan submitted, 1)
	go func() {
		res, err := e.SubmitInteractive(context.Background(), "a", model.Interactive{Questions: []model.Question{
			{Prompt: "q0", Options: []model.Option{{Label: "A"}}},
		}}, nil)
		ch <- submitted{res, err}
	}()
	waitLen(t, e, 1)

	e.Press(4)
	s := waitResult(t, ch)
	require.NoError(t, s.err)
	assert.True(t, s.res.Decision.Cancelled)
}

func TestEngine_Supersede(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	var mu sync.Mutex
	outcomes := map[string]model.Outcome{}
	e.SetResolvedCallback(func(info model.Info, res model.Result) {
		mu.Lock()
		outcomes[info.ID] = res.Outcome
		mu.Unlock()
	})

	first := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)
	second := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 2)

	id, err := e.SubmitStatus("a", model.Status{Type: "idle"})
	require.NoError(t, err)

	for _, ch := range []<-chan submitted{first, second} {
		s := waitResult(t, ch)
		require.NoError(t, s.err)
		assert.Equal(t, model.OutcomeSuperseded, s.res.Outcome)
	}
	waitLen(t, e, 1)
	assert.Equal(t, id, dev.shownID())

	mu.Lock()
	defer mu.Unlock()
	superseded := 0
	for _, o := range outcomes {
		if o == model.OutcomeSuperseded {
			superseded++
		}
	}
	assert.Equal(t, 2, superseded)
}

func TestEngine_ConfirmationsCoexistAndResume(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	first := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)
	firstID := dev.shownID()
	second := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 2)
	assert.NotEqual(t, firstID, dev.shownID(), "newer confirmation is shown")

	e.Press(13)
	s := waitResult(t, second)
	assert.Equal(t, model.BehaviorDeny, s.res.Decision.Choice.Behavior)

	waitLen(t, e, 1)
	assert.Equal(t, firstID, dev.shownID(), "older confirmation resumes")

	e.Press(14)
	s = waitResult(t, first)
	assert.Equal(t, model.BehaviorAllow, s.res.Decision.Choice.Behavior)
}

func TestEngine_PriorityPreemption(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	statusID, err := e.SubmitStatus("a", model.Status{Type: "idle"})
	require.NoError(t, err)
	waitLen(t, e, 1)
	assert.Equal(t, statusID, dev.shownID())

	ch := submitConfirmation(e, "b", allowDeny(), nil)
	waitLen(t, e, 2)
	assert.NotEqual(t, statusID, dev.shownID())

	advisoryID, err := e.SubmitAdvisory("c", model.Advisory{Title: "note"})
	require.NoError(t, err)
	waitLen(t, e, 3)
	assert.NotEqual(t, advisoryID, dev.shownID(), "advisory does not preempt a confirmation")

	e.Press(14)
	waitResult(t, ch)
	waitLen(t, e, 2)
	assert.Equal(t, advisoryID, dev.shownID())

	e.Press(0)
	waitLen(t, e, 1)
	assert.Equal(t, statusID, dev.shownID())
}

func TestEngine_GuardDropsPresses(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.PrimaryGuard = time.Hour
	cfg.Now = clock.Now
	dev := newFakeDevice()
	e := startEngine(t, cfg, dev)

	ch := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)

	e.Press(14)
	syncEngine(t, e)
	assert.Equal(t, 1, e.Len(), "press inside the guard window is dropped")

	clock.Advance(2 * time.Hour)
	e.Press(14)
	s := waitResult(t, ch)
	assert.Equal(t, model.OutcomeCompleted, s.res.Outcome)
}

func TestEngine_GuardRearmsForRemainingItem(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.PrimaryGuard = time.Hour
	cfg.Now = clock.Now
	dev := newFakeDevice()
	e := startEngine(t, cfg, dev)

	older := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)
	clock.Advance(2 * time.Hour)

	newer := submitConfirmation(e, "b", allowDeny(), nil)
	waitLen(t, e, 2)
	clock.Advance(2 * time.Hour)

	e.Press(14)
	waitResult(t, newer)
	waitLen(t, e, 1)

	e.Press(14)
	syncEngine(t, e)
	assert.Equal(t, 1, e.Len(), "the resumed item gets a fresh guard window")

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, clock.Now().Add(time.Hour), snap[0].GuardUntil)

	clock.Advance(2 * time.Hour)
	e.Press(14)
	waitResult(t, older)
}

func TestEngine_SameIdentityDoesNotRearm(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.PrimaryGuard = time.Hour
	cfg.Now = clock.Now
	dev := newFakeDevice()
	e := startEngine(t, cfg, dev)

	submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)
	before := e.Snapshot()[0].GuardUntil

	clock.Advance(10 * time.Minute)
	_, err := e.SubmitStatus("b", model.Status{Type: "idle"})
	require.NoError(t, err)
	waitLen(t, e, 2)

	for _, info := range e.Snapshot() {
		if info.Kind == "confirmation" {
			assert.Equal(t, before, info.GuardUntil)
		}
	}
}

func TestEngine_MutedWhileGuarded(t *testing.T) {
	cfg := testConfig()
	cfg.PrimaryGuard = 250 * time.Millisecond
	cfg.MuteGuarded = true
	dev := newFakeDevice()
	e := startEngine(t, cfg, dev)

	submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)
	f, _ := dev.last()
	assert.True(t, f.View.Muted)

	require.Eventually(t, func() bool {
		f, _ := dev.last()
		return f.View.Item != nil && !f.View.Muted
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_PeerDisconnect(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	var alive atomic.Bool
	alive.Store(true)
	ch := submitConfirmation(e, "a", allowDeny(), PeerFunc(alive.Load))
	waitLen(t, e, 1)

	alive.Store(false)
	s := waitResult(t, ch)
	require.NoError(t, s.err)
	assert.Equal(t, model.OutcomeDisconnected, s.res.Outcome)
	waitLen(t, e, 0)
	assert.Empty(t, dev.shownID())
}

func TestEngine_ContextCancelWithdraws(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan submitted, 1)
	go func() {
		res, err := e.SubmitConfirmation(ctx, "a", allowDeny(), nil)
		ch <- submitted{res, err}
	}()
	waitLen(t, e, 1)

	cancel()
	s := waitResult(t, ch)
	require.NoError(t, s.err)
	assert.Equal(t, model.OutcomeDisconnected, s.res.Outcome)
	waitLen(t, e, 0)
}

func TestEngine_StopWakesProducers(t *testing.T) {
	dev := newFakeDevice()
	e := New(testConfig(), fakeRenderer{}, dev, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	ch := submitConfirmation(e, "a", allowDeny(), nil)
	require.Eventually(t, func() bool { return e.Len() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	s := waitResult(t, ch)
	assert.Equal(t, model.OutcomeDisconnected, s.res.Outcome)

	_, err := e.SubmitStatus("a", model.Status{})
	assert.ErrorIs(t, err, ErrEngineStopped)
	assert.ErrorIs(t, e.Sync(context.Background()), ErrEngineStopped)
}

func TestEngine_NoDevice(t *testing.T) {
	dev := newFakeDevice()
	dev.setReady(false)
	e := startEngine(t, testConfig(), dev)

	_, err := e.SubmitConfirmation(context.Background(), "a", allowDeny(), nil)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Equal(t, 0, e.Len())

	_, err = e.SubmitStatus("a", model.Status{Type: "idle"})
	assert.NoError(t, err, "fire-and-forget kinds queue without a device")
}

func TestEngine_MalformedNeverStored(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	_, err := e.SubmitConfirmation(context.Background(), "a", model.Confirmation{Tool: "Bash"}, nil)
	assert.ErrorIs(t, err, model.ErrMalformedRequest)
	_, err = e.SubmitInteractive(context.Background(), "a", model.Interactive{}, nil)
	assert.ErrorIs(t, err, model.ErrMalformedRequest)
	assert.Equal(t, 0, e.Len())
}

func TestEngine_OutOfRangeKeyIgnored(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	_, err := e.SubmitAdvisory("a", model.Advisory{Title: "x"})
	require.NoError(t, err)
	waitLen(t, e, 1)

	e.Press(99)
	e.Press(-3)
	syncEngine(t, e)
	assert.Equal(t, 1, e.Len())

	e.Press(7)
	waitLen(t, e, 0)
}

func TestEngine_RenderPanicIsRetried(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)
	syncEngine(t, e)

	dev.mu.Lock()
	dev.panics = 1
	dev.mu.Unlock()

	id, err := e.SubmitAdvisory("a", model.Advisory{Title: "x"})
	require.NoError(t, err)
	waitLen(t, e, 1)
	assert.NotEqual(t, id, dev.shownID(), "panicking draw shows nothing new")
	assert.Equal(t, 1, e.Len(), "store survives the panic")

	e.DeviceChanged()
	syncEngine(t, e)
	assert.Equal(t, id, dev.shownID())
}

func TestEngine_GeometryChangeBetweenPresses(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	ch := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)

	dev.mu.Lock()
	dev.geo = layout.Geometry{Rows: 2, Cols: 4}
	dev.mu.Unlock()
	e.DeviceChanged()

	e.Press(6)
	s := waitResult(t, ch)
	assert.Equal(t, model.BehaviorDeny, s.res.Decision.Choice.Behavior)
}

func TestEngine_DisplayCallback(t *testing.T) {
	dev := newFakeDevice()
	e := startEngine(t, testConfig(), dev)

	var mu sync.Mutex
	var seen []string
	e.SetDisplayCallback(func(info *model.Info) {
		mu.Lock()
		defer mu.Unlock()
		if info == nil {
			seen = append(seen, "")
			return
		}
		seen = append(seen, info.ID)
	})

	id, err := e.SubmitStatus("a", model.Status{Type: "idle"})
	require.NoError(t, err)
	waitLen(t, e, 1)
	require.NoError(t, e.Remove(id))
	waitLen(t, e, 0)
	assert.ErrorIs(t, e.Remove(id), ErrNotFound)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{id, ""}, seen)
}

func TestEngine_PagingRearmsGuard(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.PrimaryGuard = time.Hour
	cfg.Now = clock.Now
	dev := newFakeDevice()
	e := startEngine(t, cfg, dev)

	ch := make(chan submitted, 1)
	go func() {
		res, err := e.SubmitInteractive(context.Background(), "a", model.Interactive{Questions: []model.Question{
			{Prompt: "q0", Options: []model.Option{{Label: "A"}, {Label: "B"}}},
			{Prompt: "q1", Options: []model.Option{{Label: "W"}, {Label: "X"}}},
		}}, nil)
		ch <- submitted{res, err}
	}()
	waitLen(t, e, 1)
	clock.Advance(2 * time.Hour)

	e.Press(0)
	e.Press(14)
	syncEngine(t, e)
	require.Equal(t, 1, e.Snapshot()[0].Page)
	assert.Equal(t, clock.Now().Add(time.Hour), e.Snapshot()[0].GuardUntil)

	// Both presses land inside the window opened by Next.
	e.Press(1)
	e.Press(14)
	syncEngine(t, e)
	assert.Equal(t, 1, e.Snapshot()[0].Page)
	assert.Equal(t, 1, e.Len())

	clock.Advance(2 * time.Hour)
	e.Press(1)
	e.Press(14)
	syncEngine(t, e)
	assert.Equal(t, 2, e.Snapshot()[0].Page)

	e.Press(14)
	syncEngine(t, e)
	assert.Equal(t, 1, e.Len(), "submit inside the confirm page window is dropped")

	clock.Advance(2 * time.Hour)
	e.Press(14)
	s := waitResult(t, ch)
	require.NoError(t, s.err)
	assert.Equal(t, map[string]string{"q0": "A", "q1": "X"}, s.res.Decision.Answers)
}

func TestEngine_GuardExpiryAfterRemovalIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.PrimaryGuard = 50 * time.Millisecond
	cfg.MuteGuarded = true
	dev := newFakeDevice()
	e := startEngine(t, cfg, dev)

	ch := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)
	f, _ := dev.last()
	require.True(t, f.View.Muted)

	require.NoError(t, e.Remove(e.Snapshot()[0].ID))
	s := waitResult(t, ch)
	assert.Equal(t, model.OutcomeDisconnected, s.res.Outcome)
	waitLen(t, e, 0)
	_, before := dev.last()

	time.Sleep(150 * time.Millisecond)
	syncEngine(t, e)
	_, after := dev.last()
	assert.Equal(t, before, after, "stale expiry must not redraw")
	assert.Empty(t, dev.shownID())
}

func TestEngine_ReconnectRearmsGuard(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.PrimaryGuard = time.Hour
	cfg.Now = clock.Now
	dev := newFakeDevice()
	e := startEngine(t, cfg, dev)

	var mu sync.Mutex
	var seen []string
	e.SetDisplayCallback(func(info *model.Info) {
		mu.Lock()
		defer mu.Unlock()
		if info != nil {
			seen = append(seen, info.ID)
		}
	})

	ch := submitConfirmation(e, "a", allowDeny(), nil)
	waitLen(t, e, 1)
	id := e.Snapshot()[0].ID
	clock.Advance(2 * time.Hour)

	dev.setReady(false)
	e.DeviceChanged()
	syncEngine(t, e)
	clock.Advance(2 * time.Hour)

	dev.setReady(true)
	e.DeviceChanged()
	syncEngine(t, e)
	assert.Equal(t, clock.Now().Add(time.Hour), e.Snapshot()[0].GuardUntil)
	assert.Equal(t, id, dev.shownID())

	e.Press(14)
	syncEngine(t, e)
	assert.Equal(t, 1, e.Len(), "first press on the new deck is dropped")

	clock.Advance(2 * time.Hour)
	e.Press(14)
	s := waitResult(t, ch)
	assert.Equal(t, model.OutcomeCompleted, s.res.Outcome)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{id, id}, seen)
}

func TestEngine_OfflineItemAnnouncedOnConnect(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.MinorGuard = time.Hour
	cfg.Now = clock.Now
	dev := newFakeDevice()
	dev.setReady(false)
	e := startEngine(t, cfg, dev)

	var mu sync.Mutex
	var seen []string
	e.SetDisplayCallback(func(info *model.Info) {
		mu.Lock()
		defer mu.Unlock()
		if info != nil {
			seen = append(seen, info.ID)
		}
	})

	id, err := e.SubmitAdvisory("a", model.Advisory{Title: "done"})
	require.NoError(t, err)
	waitLen(t, e, 1)
	assert.True(t, e.Snapshot()[0].GuardUntil.IsZero())
	mu.Lock()
	assert.Empty(t, seen)
	mu.Unlock()

	dev.setReady(true)
	e.DeviceChanged()
	syncEngine(t, e)
	assert.Equal(t, clock.Now().Add(time.Hour), e.Snapshot()[0].GuardUntil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{id}, seen)
}
