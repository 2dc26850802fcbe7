package device

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/jmylchreest/deckd/internal/layout"
	"github.com/jmylchreest/deckd/internal/model"
	"github.com/jmylchreest/deckd/internal/render"
)

type fakeDeck struct {
	mu      sync.Mutex
	geo     layout.Geometry
	frames  int
	healthy bool
	drawErr error
	closed  bool
}

func (d *fakeDeck) Geometry() layout.Geometry { return d.geo }

func (d *fakeDeck) Draw(render.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames++
	return d.drawErr
}

func (d *fakeDeck) Healthy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.healthy
}

func (d *fakeDeck) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDeck) setHealthy(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.healthy = v
}

// fakeDriver hands out decks while attached is set.
type fakeDriver struct {
	mu       sync.Mutex
	attached bool
	opened   []*fakeDeck
	press    func(int)
}

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) Open(press func(int)) (Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.attached {
		return nil, ErrNotFound
	}
	d := &fakeDeck{geo: layout.Geometry{Rows: 2, Cols: 3}, healthy: true}
	f.opened = append(f.opened, d)
	f.press = press
	return d, nil
}

func (f *fakeDriver) setAttached(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = v
}

func (f *fakeDriver) last() *fakeDeck {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opened) == 0 {
		return nil
	}
	return f.opened[len(f.opened)-1]
}

func startManager(t *testing.T, drv Driver) (*Manager, *atomic.Int32) {
	t.Helper()
	m := NewManager(drv, nil)
	m.SetPollInterval(5 * time.Millisecond)
	var changes atomic.Int32
	m.SetChangeCallback(func() { changes.Add(1) })
	require.NoError(t, m.Start(t.Context()))
	t.Cleanup(m.Stop)
	return m, &changes
}

func TestManager_ConnectsAtStart(t *testing.T) {
	drv := &fakeDriver{attached: true}
	m, changes := startManager(t, drv)

	assert.True(t, m.Ready())
	assert.Equal(t, layout.Geometry{Rows: 2, Cols: 3}, m.Geometry())
	assert.Equal(t, int32(1), changes.Load())
	assert.Equal(t, "fake", m.Name())
}

func TestManager_NoDeck(t *testing.T) {
	m, _ := startManager(t, &fakeDriver{})

	assert.False(t, m.Ready())
	assert.False(t, m.Geometry().Valid())
	assert.ErrorIs(t, m.Draw(render.Frame{}), ErrNotConnected)
}

func TestManager_HotPlug(t *testing.T) {
	drv := &fakeDriver{}
	m, changes := startManager(t, drv)
	require.False(t, m.Ready())

	drv.setAttached(true)
	require.Eventually(t, m.Ready, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), changes.Load())

	drv.setAttached(false)
	drv.last().setHealthy(false)
	require.Eventually(t, func() bool { return !m.Ready() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return changes.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		d := drv.last()
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.closed
	}, time.Second, 5*time.Millisecond)
}

func TestManager_DrawFailureDropsDeck(t *testing.T) {
	drv := &fakeDriver{attached: true}
	m, changes := startManager(t, drv)
	require.True(t, m.Ready())

	first := drv.last()
	first.mu.Lock()
	first.drawErr = errors.New("usb gone")
	first.mu.Unlock()

	assert.Error(t, m.Draw(render.Frame{}))
	require.Eventually(t, func() bool { return changes.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, m.LastError(), "usb gone")

	// the next poll reopens
	require.Eventually(t, func() bool { return drv.last() != first && m.Ready() }, time.Second, 5*time.Millisecond)
}

func TestManager_PressForwarded(t *testing.T) {
	drv := &fakeDriver{attached: true}
	m, _ := startManager(t, drv)

	got := make(chan int, 1)
	m.SetPressCallback(func(k int) { got <- k })
	drv.press(4)
	assert.Equal(t, 4, <-got)
}

func TestManager_IdleFiresOnce(t *testing.T) {
	m := NewManager(&fakeDriver{}, nil)
	m.SetPollInterval(5 * time.Millisecond)
	m.SetIdleTimeout(20 * time.Millisecond)
	var idle atomic.Int32
	m.SetIdleCallback(func() { idle.Add(1) })
	require.NoError(t, m.Start(t.Context()))
	defer m.Stop()

	require.Eventually(t, func() bool { return idle.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), idle.Load())
}

type fakePin struct{ level gpio.Level }

func (p *fakePin) Read() gpio.Level { return p.level }

func TestButton_Debounce(t *testing.T) {
	pin := &fakePin{level: gpio.High}
	b := &button{pin: pin, debounce: 100 * time.Millisecond}
	now := time.Now()

	assert.False(t, b.refresh(now))

	pin.level = gpio.Low
	assert.True(t, b.refresh(now), "press edge")
	assert.False(t, b.refresh(now.Add(10*time.Millisecond)), "held")

	// bounce back up inside the window is ignored
	pin.level = gpio.High
	assert.False(t, b.refresh(now.Add(20*time.Millisecond)))
	pin.level = gpio.Low
	assert.False(t, b.refresh(now.Add(30*time.Millisecond)))

	pin.level = gpio.High
	assert.False(t, b.refresh(now.Add(200*time.Millisecond)), "release")
	pin.level = gpio.Low
	assert.True(t, b.refresh(now.Add(400*time.Millisecond)), "second press")
}

func TestPanelGeometry(t *testing.T) {
	p := NewPanel(PanelOptions{Pins: []string{"GPIO16", "GPIO13", "GPIO12", "GPIO6", "GPIO5"}, Cols: 2}, nil)
	assert.Equal(t, layout.Geometry{Rows: 3, Cols: 2}, p.Geometry())
	assert.Equal(t, DriverPanel, p.Name())

	p = NewPanel(PanelOptions{Pins: []string{"GPIO16", "GPIO13"}}, nil)
	assert.Equal(t, layout.Geometry{Rows: 1, Cols: 2}, p.Geometry())
}

func TestKeyIndex(t *testing.T) {
	g := layout.Geometry{Rows: 2, Cols: 3}
	tests := []struct {
		key  string
		want int
		ok   bool
	}{
		{"1", 0, true},
		{"3", 2, true},
		{"4", 0, false},
		{"q", 3, true},
		{"e", 5, true},
		{"a", 0, false},
		{"enter", 0, false},
	}
	for _, tt := range tests {
		got, ok := keyIndex(tt.key, g)
		assert.Equal(t, tt.ok, ok, tt.key)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.key)
		}
	}
}

func TestCellAt(t *testing.T) {
	g := layout.Geometry{Rows: 2, Cols: 3}
	k, ok := cellAt(0, headerRows, g)
	assert.True(t, ok)
	assert.Equal(t, 0, k)

	k, ok = cellAt(cellWidth*2+1, headerRows+cellHeight+1, g)
	assert.True(t, ok)
	assert.Equal(t, 5, k)

	_, ok = cellAt(0, 0, g)
	assert.False(t, ok)
	_, ok = cellAt(cellWidth*3, headerRows, g)
	assert.False(t, ok)
}

func TestSimModel_PressAndQuit(t *testing.T) {
	var pressed []int
	g := layout.Geometry{Rows: 2, Cols: 3}
	m := newSimModel(g, func(k int) { pressed = append(pressed, k) })

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")})
	m = next.(simModel)
	next, _ = m.Update(tea.MouseMsg{X: 1, Y: headerRows + 1, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	m = next.(simModel)
	assert.Equal(t, []int{4, 0}, pressed)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestSimModel_View(t *testing.T) {
	g := layout.Geometry{Rows: 2, Cols: 3}
	m := newSimModel(g, nil)
	assert.Contains(t, m.View(), "idle")

	it, err := model.NewConfirmationItem("1", model.Confirmation{
		Tool:    "Bash",
		Detail:  "ls",
		Choices: []model.Choice{{Label: "Allow", Behavior: model.BehaviorAllow}, {Label: "Deny", Behavior: model.BehaviorDeny}},
	})
	require.NoError(t, err)
	view := render.Compose(it, g, true, render.DefaultPalette().Allow)

	next, _ := m.Update(frameMsg{view: view})
	out := next.(simModel).View()
	assert.Contains(t, out, "Allow")
	assert.Contains(t, out, "Deny")
	assert.Contains(t, out, "input paused")
	assert.True(t, strings.Contains(out, "Bash"))
}

func TestTerminal_QuitIsFinal(t *testing.T) {
	term := NewTerminal(2, 3)
	term.quitByUser()
	_, err := term.Open(nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNone(t *testing.T) {
	m, _ := startManager(t, None{})
	assert.False(t, m.Ready())
	assert.Equal(t, DriverNone, m.Name())
	assert.ErrorIs(t, m.Draw(render.Frame{}), ErrNotConnected)
}

func TestPressQueue_DoesNotBlockSender(t *testing.T) {
	release := make(chan struct{})
	got := make(chan int, 8)
	q := newPressQueue(func(k int) {
		<-release
		got <- k
	}, 2)
	done := make(chan struct{})
	defer close(done)
	go q.run(done)

	// The consumer is stuck, so pushes beyond the buffer are dropped
	// instead of blocking the caller.
	finished := make(chan struct{})
	go func() {
		for k := range 6 {
			q.push(k)
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("push blocked on a stuck consumer")
	}

	close(release)
	for _, want := range []int{0, 1} {
		select {
		case k := <-got:
			assert.Equal(t, want, k, "presses are delivered in order")
		case <-time.After(time.Second):
			t.Fatal("press never delivered")
		}
	}
}
