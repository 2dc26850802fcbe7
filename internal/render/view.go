// Package render turns the displayed item into per-key faces and images.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/jmylchreest/deckd/internal/layout"
	"github.com/jmylchreest/deckd/internal/model"
)

// Style selects the palette entry of a key.
type Style int

const (
	StyleBlank Style = iota
	StyleText
	StyleAllow
	StyleDeny
	StyleToggle
	StyleOption
	StyleNav
	StyleSubmit
)

// Face is the semantic content of one key.
type Face struct {
	Label   string         `json:"label,omitempty"`
	Sub     string         `json:"sub,omitempty"`
	Style   Style          `json:"style"`
	Control layout.Control `json:"control"`
	// Active marks selected options and an engaged toggle.
	Active bool `json:"active,omitempty"`
}

// View is everything needed to draw one state of the deck.
type View struct {
	Geometry layout.Geometry
	// Item is nil when nothing is displayed.
	Item   *model.Info
	Faces  []Face
	Muted  bool
	Accent color.RGBA
}

// Frame is a rendered view ready for a device.
type Frame struct {
	View   View
	Images []image.Image
}

// Blank returns an empty view for g.
func Blank(g layout.Geometry) View {
	return View{Geometry: g, Faces: make([]Face, g.Total())}
}

// Compose builds the faces for it on g. It reads item state only, so callers
// holding the item lock can call it and render the result after unlocking.
func Compose(it *model.Item, g layout.Geometry, muted bool, accent color.RGBA) View {
	v := Blank(g)
	if it == nil || !g.Valid() {
		return v
	}
	info := it.Info(true)
	v.Item = &info
	v.Muted = muted
	v.Accent = accent

	switch it.Kind {
	case model.KindConfirmation:
		composeConfirmation(v.Faces, it, g)
	case model.KindInteractive:
		composeInteractive(v.Faces, it, g)
	case model.KindAdvisory:
		composeNotice(v.Faces, g, it.Advisory.Title, it.Advisory.Message, "OK")
	case model.KindStatus:
		composeNotice(v.Faces, g, it.Status.Title, it.Status.Message, it.Status.Type)
	}
	return v
}

// fill writes text into the free keys in order, skipping bound ones.
func fill(faces []Face, texts ...string) {
	k := 0
	for _, t := range texts {
		if t == "" {
			continue
		}
		for k < len(faces) && faces[k].Style != StyleBlank {
			k++
		}
		if k >= len(faces) {
			return
		}
		faces[k] = Face{Label: t, Style: StyleText}
		k++
	}
}

func composeConfirmation(faces []Face, it *model.Item, g layout.Geometry) {
	c := it.Confirmation
	for i, k := range layout.ChoiceKeys(g, len(c.Choices)) {
		ch := c.Choices[i]
		f := Face{Label: ch.Label, Control: layout.ControlChoice}
		switch {
		case ch.Toggle:
			f.Style = StyleToggle
			f.Active = it.ToggleActive
		case ch.Behavior == model.BehaviorAllow:
			f.Style = StyleAllow
		default:
			f.Style = StyleDeny
		}
		faces[k] = f
	}
	fill(faces, c.Tool, c.Detail)
}

func composeInteractive(faces []Face, it *model.Item, g layout.Geometry) {
	st := it.Answers
	if q, ok := st.Question(); ok {
		first := st.Page() == 0
		l := layout.Question(g, layout.VisibleOptions(g, len(q.Options)), first)
		for k, slot := range l.Slots {
			switch slot.Control {
			case layout.ControlOption:
				opt := q.Options[slot.Index]
				faces[k] = Face{
					Label:   opt.Label,
					Sub:     opt.Description,
					Style:   StyleOption,
					Control: slot.Control,
					Active:  st.Selected(slot.Index),
				}
			case layout.ControlCancel:
				faces[k] = Face{Label: "Cancel", Style: StyleDeny, Control: slot.Control}
			case layout.ControlBack:
				faces[k] = Face{Label: "Back", Style: StyleNav, Control: slot.Control}
			case layout.ControlNext:
				faces[k] = Face{
					Label:   "Next",
					Sub:     fmt.Sprintf("%d/%d", st.Page()+1, st.PageCount()),
					Style:   StyleNav,
					Control: slot.Control,
				}
			}
		}
		fill(faces, q.Header, q.Prompt)
		return
	}

	l := layout.Review(g)
	for k, slot := range l.Slots {
		switch slot.Control {
		case layout.ControlBack:
			faces[k] = Face{Label: "Back", Style: StyleNav, Control: slot.Control}
		case layout.ControlSubmit:
			faces[k] = Face{Label: "Submit", Style: StyleSubmit, Control: slot.Control}
		}
	}
	answers := st.Answers()
	texts := make([]string, 0, len(it.Interactive.Questions))
	for _, q := range it.Interactive.Questions {
		a := answers[q.Prompt]
		if a == "" {
			a = "-"
		}
		label := q.Header
		if label == "" {
			label = q.Prompt
		}
		texts = append(texts, label+": "+a)
	}
	fill(faces, texts...)
}

func composeNotice(faces []Face, g layout.Geometry, title, message, action string) {
	br := g.BottomRight()
	faces[br] = Face{Label: action, Style: StyleSubmit, Control: layout.ControlDismiss}
	fill(faces, title, message)
	for k := range faces {
		faces[k].Control = layout.ControlDismiss
	}
}
