// Package layout maps deck keys to the controls of the displayed item.
//
// Layouts are computed from the current geometry on every call so a device
// swap between two presses never resolves against stale key positions.
package layout

import "fmt"

// Geometry describes a rows × cols key grid. Keys are numbered row-major
// from the top-left.
type Geometry struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Total returns the number of keys.
func (g Geometry) Total() int {
	return g.Rows * g.Cols
}

// Valid reports whether the grid has at least one key.
func (g Geometry) Valid() bool {
	return g.Rows > 0 && g.Cols > 0
}

// Contains reports whether key is a valid index.
func (g Geometry) Contains(key int) bool {
	return key >= 0 && key < g.Total()
}

// BottomRight returns the bottom-right key.
func (g Geometry) BottomRight() int {
	return g.Total() - 1
}

// TopRight returns the top-right key, or key 0 on single-row decks where
// the top row is also the bottom row.
func (g Geometry) TopRight() int {
	if g.Rows == 1 {
		return 0
	}
	return g.Cols - 1
}

// RowCol returns the row and column of key.
func (g Geometry) RowCol(key int) (int, int) {
	return key / g.Cols, key % g.Cols
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Rows, g.Cols)
}

// Control names what a key does for the displayed item.
type Control int

const (
	ControlNone Control = iota
	ControlChoice
	ControlOption
	ControlBack
	ControlCancel
	ControlNext
	ControlSubmit
	ControlDismiss
)

func (c Control) String() string {
	switch c {
	case ControlChoice:
		return "choice"
	case ControlOption:
		return "option"
	case ControlBack:
		return "back"
	case ControlCancel:
		return "cancel"
	case ControlNext:
		return "next"
	case ControlSubmit:
		return "submit"
	case ControlDismiss:
		return "dismiss"
	default:
		return "none"
	}
}

// Slot binds a key to a control. Index is the choice or option index for
// ControlChoice and ControlOption.
type Slot struct {
	Control Control
	Index   int
}

// Layout is the key assignment for one rendered page.
type Layout struct {
	Geometry Geometry
	Slots    map[int]Slot
}

// At returns the slot bound to key. Unbound and out-of-range keys report
// ControlNone.
func (l Layout) At(key int) Slot {
	if !l.Geometry.Contains(key) {
		return Slot{Control: ControlNone}
	}
	if s, ok := l.Slots[key]; ok {
		return s
	}
	return Slot{Control: ControlNone}
}

// KeyFor returns the key bound to control c with index i.
func (l Layout) KeyFor(c Control, i int) (int, bool) {
	for k, s := range l.Slots {
		if s.Control == c && s.Index == i {
			return k, true
		}
	}
	return 0, false
}

// ChoiceKeys places n confirmation choices on the bottom row, right-aligned.
// With three choices the middle key holds the third (toggle) choice so the
// first choice sits bottom-right and the second to the far left of the group.
func ChoiceKeys(g Geometry, n int) []int {
	br := g.BottomRight()
	if n <= 0 || br < 0 {
		return nil
	}
	var keys []int
	switch {
	case n == 3 && g.Cols >= 3:
		keys = []int{br, br - 2, br - 1}
	default:
		keys = make([]int, n)
		for i := range keys {
			keys[i] = br - i
		}
	}
	out := keys[:0]
	for _, k := range keys {
		if g.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// Confirmation returns the layout for a confirmation with n choices.
func Confirmation(g Geometry, n int) Layout {
	l := Layout{Geometry: g, Slots: make(map[int]Slot)}
	for i, k := range ChoiceKeys(g, n) {
		l.Slots[k] = Slot{Control: ControlChoice, Index: i}
	}
	return l
}

// OptionKeys returns the keys available for options on a question page, in
// index order, skipping the two navigation keys.
func OptionKeys(g Geometry) []int {
	nav, next := g.TopRight(), g.BottomRight()
	keys := make([]int, 0, g.Total())
	for k := 0; k < g.Total(); k++ {
		if k == nav || k == next {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Question returns the layout for one question page with n options. first
// selects Cancel instead of Back on the navigation key.
func Question(g Geometry, n int, first bool) Layout {
	l := Layout{Geometry: g, Slots: make(map[int]Slot)}
	if g.Total() < 2 {
		return l
	}
	nav := ControlBack
	if first {
		nav = ControlCancel
	}
	l.Slots[g.TopRight()] = Slot{Control: nav}
	l.Slots[g.BottomRight()] = Slot{Control: ControlNext}
	keys := OptionKeys(g)
	for i := 0; i < n && i < len(keys); i++ {
		l.Slots[keys[i]] = Slot{Control: ControlOption, Index: i}
	}
	return l
}

// Review returns the layout of the final confirm page.
func Review(g Geometry) Layout {
	l := Layout{Geometry: g, Slots: make(map[int]Slot)}
	if g.Total() < 2 {
		return l
	}
	l.Slots[g.TopRight()] = Slot{Control: ControlBack}
	l.Slots[g.BottomRight()] = Slot{Control: ControlSubmit}
	return l
}

// Notice returns the layout for advisory and status items: every key dismisses.
func Notice(g Geometry) Layout {
	l := Layout{Geometry: g, Slots: make(map[int]Slot, g.Total())}
	for k := 0; k < g.Total(); k++ {
		l.Slots[k] = Slot{Control: ControlDismiss}
	}
	return l
}

// VisibleOptions returns how many of n options fit on a question page.
func VisibleOptions(g Geometry, n int) int {
	max := g.Total() - 2
	if max < 0 {
		max = 0
	}
	if n > max {
		return max
	}
	return n
}
