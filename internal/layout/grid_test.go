package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var standard = Geometry{Rows: 3, Cols: 5}

func TestGeometry(t *testing.T) {
	assert.Equal(t, 15, standard.Total())
	assert.Equal(t, 14, standard.BottomRight())
	assert.Equal(t, 4, standard.TopRight())
	assert.True(t, standard.Contains(0))
	assert.False(t, standard.Contains(15))
	assert.False(t, standard.Contains(-1))
	assert.Equal(t, "3x5", standard.String())

	row := Geometry{Rows: 1, Cols: 8}
	assert.Equal(t, 0, row.TopRight())
	assert.Equal(t, 7, row.BottomRight())
}

func TestChoiceKeys(t *testing.T) {
	tests := []struct {
		name string
		g    Geometry
		n    int
		want []int
	}{
		{"one", standard, 1, []int{14}},
		{"two", standard, 2, []int{14, 13}},
		{"three puts toggle in the middle", standard, 3, []int{14, 12, 13}},
		{"four falls back to right-to-left", standard, 4, []int{14, 13, 12, 11}},
		{"narrow deck", Geometry{Rows: 2, Cols: 2}, 3, []int{3, 2, 1}},
		{"more choices than keys", Geometry{Rows: 1, Cols: 2}, 3, []int{1, 0}},
		{"none", standard, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChoiceKeys(tt.g, tt.n))
		})
	}
}

func TestConfirmationLayout(t *testing.T) {
	l := Confirmation(standard, 2)
	assert.Equal(t, Slot{Control: ControlChoice, Index: 0}, l.At(14))
	assert.Equal(t, Slot{Control: ControlChoice, Index: 1}, l.At(13))
	assert.Equal(t, ControlNone, l.At(0).Control)
	assert.Equal(t, ControlNone, l.At(99).Control)

	k, ok := l.KeyFor(ControlChoice, 1)
	assert.True(t, ok)
	assert.Equal(t, 13, k)
}

func TestQuestionLayout(t *testing.T) {
	first := Question(standard, 3, true)
	assert.Equal(t, ControlCancel, first.At(4).Control)
	assert.Equal(t, ControlNext, first.At(14).Control)
	assert.Equal(t, Slot{Control: ControlOption, Index: 0}, first.At(0))
	assert.Equal(t, Slot{Control: ControlOption, Index: 2}, first.At(2))
	assert.Equal(t, ControlNone, first.At(3).Control)

	later := Question(standard, 6, false)
	assert.Equal(t, ControlBack, later.At(4).Control)
	assert.Equal(t, Slot{Control: ControlOption, Index: 4}, later.At(5), "options skip the navigation key")
	assert.Equal(t, Slot{Control: ControlOption, Index: 5}, later.At(6))
}

func TestQuestionLayout_Capped(t *testing.T) {
	g := Geometry{Rows: 2, Cols: 2}
	l := Question(g, 10, true)
	assert.Equal(t, 2, VisibleOptions(g, 10))
	assert.Equal(t, Slot{Control: ControlOption, Index: 0}, l.At(0))
	assert.Equal(t, ControlCancel, l.At(1).Control)
	assert.Equal(t, Slot{Control: ControlOption, Index: 1}, l.At(2))
	assert.Equal(t, ControlNext, l.At(3).Control)
}

func TestQuestionLayout_SingleRow(t *testing.T) {
	g := Geometry{Rows: 1, Cols: 4}
	l := Question(g, 2, false)
	assert.Equal(t, ControlBack, l.At(0).Control)
	assert.Equal(t, ControlNext, l.At(3).Control)
	assert.Equal(t, Slot{Control: ControlOption, Index: 0}, l.At(1))
}

func TestReviewAndNotice(t *testing.T) {
	r := Review(standard)
	assert.Equal(t, ControlBack, r.At(4).Control)
	assert.Equal(t, ControlSubmit, r.At(14).Control)
	assert.Equal(t, ControlNone, r.At(0).Control)

	n := Notice(standard)
	for k := 0; k < standard.Total(); k++ {
		assert.Equal(t, ControlDismiss, n.At(k).Control)
	}
	assert.Equal(t, ControlNone, n.At(standard.Total()).Control)
}
