package engine

import (
	"github.com/jmylchreest/deckd/internal/layout"
	"github.com/jmylchreest/deckd/internal/model"
)

// ActionKind is what a key press means for the displayed item.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionChoose
	ActionToggle
	ActionSelect
	ActionNext
	ActionBack
	ActionCancel
	ActionSubmit
	ActionDismiss
)

func (a ActionKind) String() string {
	switch a {
	case ActionChoose:
		return "choose"
	case ActionToggle:
		return "toggle"
	case ActionSelect:
		return "select"
	case ActionNext:
		return "next"
	case ActionBack:
		return "back"
	case ActionCancel:
		return "cancel"
	case ActionSubmit:
		return "submit"
	case ActionDismiss:
		return "dismiss"
	default:
		return "none"
	}
}

// Action is a routed press. Index is the choice or option index.
type Action struct {
	Kind  ActionKind
	Index int
}

// Route maps key to an action for it on geometry g. Keys outside g, unbound
// keys and a nil item route to ActionNone.
func Route(it *model.Item, key int, g layout.Geometry) Action {
	if it == nil || !g.Contains(key) {
		return Action{}
	}

	switch it.Kind {
	case model.KindConfirmation:
		slot := layout.Confirmation(g, len(it.Confirmation.Choices)).At(key)
		if slot.Control != layout.ControlChoice {
			return Action{}
		}
		if it.Confirmation.Choices[slot.Index].Toggle {
			return Action{Kind: ActionToggle, Index: slot.Index}
		}
		return Action{Kind: ActionChoose, Index: slot.Index}

	case model.KindInteractive:
		st := it.Answers
		var l layout.Layout
		if q, ok := st.Question(); ok {
			l = layout.Question(g, layout.VisibleOptions(g, len(q.Options)), st.Page() == 0)
		} else if st.Phase() == model.PhaseConfirm {
			l = layout.Review(g)
		} else {
			return Action{}
		}
		slot := l.At(key)
		switch slot.Control {
		case layout.ControlOption:
			return Action{Kind: ActionSelect, Index: slot.Index}
		case layout.ControlNext:
			return Action{Kind: ActionNext}
		case layout.ControlBack:
			return Action{Kind: ActionBack}
		case layout.ControlCancel:
			return Action{Kind: ActionCancel}
		case layout.ControlSubmit:
			return Action{Kind: ActionSubmit}
		}
		return Action{}

	case model.KindAdvisory, model.KindStatus:
		return Action{Kind: ActionDismiss}
	}
	return Action{}
}

// outcome is the effect of applying an action.
type outcome struct {
	resolved bool
	result   model.Result
	// paged is set when the visible page changed.
	paged bool
}

// apply mutates it according to a. The caller holds the store lock.
func apply(it *model.Item, a Action) outcome {
	switch a.Kind {
	case ActionChoose:
		ch := it.Confirmation.Choices[a.Index]
		if ch.Behavior == model.BehaviorAllow && it.ToggleActive {
			if toggle, ok := it.Confirmation.ToggleChoice(); ok {
				ch = toggle
			}
		}
		return outcome{resolved: true, result: model.Completed(model.Decision{Choice: &ch})}

	case ActionToggle:
		it.ToggleActive = !it.ToggleActive
		it.Touch()

	case ActionSelect:
		if it.Answers.Select(a.Index) == nil {
			it.Touch()
		}

	case ActionNext:
		if it.Answers.Next() == nil {
			it.Touch()
			return outcome{paged: true}
		}

	case ActionBack:
		if it.Answers.Back() == nil {
			it.Touch()
			return outcome{paged: true}
		}

	case ActionCancel:
		if it.Answers.Cancel() == nil {
			return outcome{resolved: true, result: model.Completed(model.Decision{Cancelled: true})}
		}

	case ActionSubmit:
		if answers, err := it.Answers.Submit(); err == nil {
			return outcome{resolved: true, result: model.Completed(model.Decision{Answers: answers})}
		}

	case ActionDismiss:
		return outcome{resolved: true, result: model.Completed(model.Decision{Dismissed: true})}
	}
	return outcome{}
}
