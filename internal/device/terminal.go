package device

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/jmylchreest/deckd/internal/layout"
	"github.com/jmylchreest/deckd/internal/render"
)

// DriverTerminal is the name of the terminal simulator driver.
const DriverTerminal = "terminal"

// ErrClosed is returned when drawing on a closed deck.
var ErrClosed = errors.New("deck closed")

// keyRows maps keyboard rows onto deck rows.
var keyRows = []string{"12345678", "qwertyui", "asdfghjk", "zxcvbnm,"}

const (
	cellWidth  = 16
	cellHeight = 5
	headerRows = 2

	pressQueueSize = 64
)

// Terminal simulates a deck in the terminal. Keys are pressed with the
// keyboard rows 1-8, q-i, a-k and z-m, or with the mouse.
type Terminal struct {
	geo    layout.Geometry
	input  io.Reader
	output io.Writer

	mu     sync.Mutex
	quit   bool
	onQuit func()
}

// NewTerminal creates a simulator with the given grid.
func NewTerminal(rows, cols int) *Terminal {
	return &Terminal{geo: layout.Geometry{Rows: rows, Cols: cols}}
}

// SetIO overrides the terminal the simulator runs on.
func (t *Terminal) SetIO(input io.Reader, output io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input = input
	t.output = output
}

// SetQuitCallback sets the callback invoked when the user quits the
// simulator. A quit simulator is not reopened.
func (t *Terminal) SetQuitCallback(callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = callback
}

// Name implements Driver.
func (t *Terminal) Name() string {
	return DriverTerminal
}

// Open implements Driver. Without a terminal on stdin there is no deck.
func (t *Terminal) Open(press func(key int)) (Deck, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quit {
		return nil, ErrNotFound
	}

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}
	if t.input != nil {
		opts = append(opts, tea.WithInput(t.input), tea.WithOutput(t.output))
	} else if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, ErrNotFound
	}

	d := &terminalDeck{geo: t.geo, done: make(chan struct{})}
	var fire func(key int)
	if press != nil {
		q := newPressQueue(press, pressQueueSize)
		go q.run(d.done)
		fire = q.push
	}
	d.program = tea.NewProgram(newSimModel(t.geo, fire), opts...)
	go d.run(t.quitByUser)
	return d, nil
}

// pressQueue delivers presses from its own goroutine so the bubbletea loop
// never waits on the consumer, which may itself be waiting to draw. Presses
// beyond the queue's capacity are dropped.
type pressQueue struct {
	keys  chan int
	press func(key int)
}

func newPressQueue(press func(key int), size int) *pressQueue {
	return &pressQueue{keys: make(chan int, size), press: press}
}

func (q *pressQueue) push(key int) {
	select {
	case q.keys <- key:
	default:
	}
}

func (q *pressQueue) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case k := <-q.keys:
			q.press(k)
		}
	}
}

func (t *Terminal) quitByUser() {
	t.mu.Lock()
	t.quit = true
	callback := t.onQuit
	t.mu.Unlock()
	if callback != nil {
		callback()
	}
}

type terminalDeck struct {
	geo     layout.Geometry
	program *tea.Program
	done    chan struct{}

	mu      sync.Mutex
	closing bool
}

func (d *terminalDeck) run(onUserQuit func()) {
	_, _ = d.program.Run()
	close(d.done)

	d.mu.Lock()
	closing := d.closing
	d.mu.Unlock()
	if !closing {
		onUserQuit()
	}
}

func (d *terminalDeck) Geometry() layout.Geometry {
	return d.geo
}

func (d *terminalDeck) Draw(frame render.Frame) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	d.program.Send(frameMsg{view: frame.View})
	return nil
}

func (d *terminalDeck) Healthy() bool {
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

func (d *terminalDeck) Close() error {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
	d.program.Quit()
	<-d.done
	return nil
}

type frameMsg struct {
	view render.View
}

// simKeyMap holds the simulator's own bindings.
type simKeyMap struct {
	Press key.Binding
	Quit  key.Binding
}

func (k simKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Press, k.Quit}
}

func (k simKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultSimKeyMap() simKeyMap {
	return simKeyMap{
		Press: key.NewBinding(
			key.WithKeys(strings.Split(strings.Join(keyRows, ""), "")...),
			key.WithHelp("1-8 q-i a-k z-m", "press key"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// simModel is the bubbletea model drawing the simulated grid.
type simModel struct {
	geo   layout.Geometry
	view  render.View
	keys  simKeyMap
	help  help.Model
	press func(key int)
}

func newSimModel(g layout.Geometry, press func(key int)) simModel {
	return simModel{
		geo:   g,
		view:  render.Blank(g),
		keys:  defaultSimKeyMap(),
		help:  help.New(),
		press: press,
	}
}

func (m simModel) Init() tea.Cmd {
	return nil
}

func (m simModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.view = msg.view
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Press):
			if k, ok := keyIndex(msg.String(), m.geo); ok {
				m.firePress(k)
			}
		}
		return m, nil

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			if k, ok := cellAt(msg.X, msg.Y, m.geo); ok {
				m.firePress(k)
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil
	}
	return m, nil
}

func (m simModel) firePress(k int) {
	if m.press != nil {
		m.press(k)
	}
}

// keyIndex maps a keyboard key to a deck key.
func keyIndex(s string, g layout.Geometry) (int, bool) {
	if len(s) != 1 {
		return 0, false
	}
	for r, row := range keyRows {
		c := strings.Index(row, s)
		if c < 0 {
			continue
		}
		if r >= g.Rows || c >= g.Cols {
			return 0, false
		}
		return r*g.Cols + c, true
	}
	return 0, false
}

// cellAt maps a mouse position to a deck key.
func cellAt(x, y int, g layout.Geometry) (int, bool) {
	y -= headerRows
	if x < 0 || y < 0 {
		return 0, false
	}
	r, c := y/cellHeight, x/cellWidth
	if r >= g.Rows || c >= g.Cols {
		return 0, false
	}
	return r*g.Cols + c, true
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cellStyle  = lipgloss.NewStyle().
			Width(cellWidth-2).
			Height(cellHeight-2).
			Border(lipgloss.RoundedBorder()).
			Align(lipgloss.Center, lipgloss.Center)
)

// styleColors maps face styles to terminal colours.
var styleColors = map[render.Style]string{
	render.StyleText:   "7",
	render.StyleAllow:  "10",
	render.StyleDeny:   "9",
	render.StyleToggle: "11",
	render.StyleOption: "14",
	render.StyleNav:    "12",
	render.StyleSubmit: "13",
}

func (m simModel) View() string {
	var b strings.Builder

	title := "deckd · idle"
	if it := m.view.Item; it != nil {
		title = "deckd · " + it.Kind + " · " + it.Summary
		if it.PageCount > 0 {
			title += dimStyle.Render(" (" + pageLabel(it.Page, it.PageCount) + ")")
		}
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	if m.view.Muted {
		b.WriteString(dimStyle.Render("input paused"))
	}
	b.WriteString("\n")

	border := lipgloss.Color("8")
	if a := m.view.Accent; m.view.Item != nil && a.A > 0 {
		border = lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", a.R, a.G, a.B))
	}

	rows := make([]string, 0, m.geo.Rows)
	for r := 0; r < m.geo.Rows; r++ {
		cells := make([]string, 0, m.geo.Cols)
		for c := 0; c < m.geo.Cols; c++ {
			cells = append(cells, m.cell(r*m.geo.Cols+c, border))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m simModel) cell(k int, border lipgloss.Color) string {
	style := cellStyle.BorderForeground(border)
	var face render.Face
	if k < len(m.view.Faces) {
		face = m.view.Faces[k]
	}
	if fg, ok := styleColors[face.Style]; ok {
		style = style.Foreground(lipgloss.Color(fg))
	}
	if face.Active {
		style = style.Bold(true).Reverse(true)
	}
	if m.view.Muted {
		style = style.Faint(true)
	}

	text := truncate(face.Label, cellWidth-4)
	if face.Sub != "" {
		text += "\n" + truncate(face.Sub, cellWidth-4)
	}
	return style.Render(text)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func pageLabel(page, count int) string {
	if page >= count {
		return "review"
	}
	return strconv.Itoa(page+1) + "/" + strconv.Itoa(count)
}
