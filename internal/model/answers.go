package model

import (
	"errors"
	"sort"
	"strings"
)

// Phase is the paging phase of an interactive item.
type Phase int

const (
	PhaseAnswering Phase = iota
	PhaseConfirm
	PhaseResolved
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseAnswering:
		return "answering"
	case PhaseConfirm:
		return "confirm"
	case PhaseResolved:
		return "resolved"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned for events the current phase does not accept.
var ErrInvalidTransition = errors.New("invalid answer transition")

// AnswerState pages through the questions of an interactive item.
type AnswerState struct {
	questions []Question
	phase     Phase
	page      int
	// selected[q] is the set of option indices chosen for question q.
	selected []map[int]bool
}

// NewAnswerState starts on page 0 with no answers.
func NewAnswerState(questions []Question) *AnswerState {
	sel := make([]map[int]bool, len(questions))
	for i := range sel {
		sel[i] = make(map[int]bool)
	}
	return &AnswerState{questions: questions, selected: sel}
}

// Phase returns the current phase.
func (s *AnswerState) Phase() Phase { return s.phase }

// Page returns the current page. On the confirm page it equals PageCount.
func (s *AnswerState) Page() int {
	if s.phase == PhaseConfirm {
		return len(s.questions)
	}
	return s.page
}

// PageCount returns the number of question pages.
func (s *AnswerState) PageCount() int { return len(s.questions) }

// Question returns the question on the current page.
func (s *AnswerState) Question() (Question, bool) {
	if s.phase != PhaseAnswering {
		return Question{}, false
	}
	return s.questions[s.page], true
}

// Selected reports whether option i of the current page is chosen.
func (s *AnswerState) Selected(i int) bool {
	if s.phase != PhaseAnswering {
		return false
	}
	return s.selected[s.page][i]
}

// Answered reports whether question q has at least one selection.
func (s *AnswerState) Answered(q int) bool {
	if q < 0 || q >= len(s.selected) {
		return false
	}
	return len(s.selected[q]) > 0
}

// Select picks option i on the current page. Single-select pages replace the
// previous answer; multi-select pages toggle membership.
func (s *AnswerState) Select(i int) error {
	if s.phase != PhaseAnswering {
		return ErrInvalidTransition
	}
	q := s.questions[s.page]
	if i < 0 || i >= len(q.Options) {
		return ErrInvalidTransition
	}
	cur := s.selected[s.page]
	if q.MultiSelect {
		if cur[i] {
			delete(cur, i)
		} else {
			cur[i] = true
		}
		return nil
	}
	s.selected[s.page] = map[int]bool{i: true}
	return nil
}

// Next advances one page, or to the confirm page after the last question.
func (s *AnswerState) Next() error {
	if s.phase != PhaseAnswering {
		return ErrInvalidTransition
	}
	if s.page+1 < len(s.questions) {
		s.page++
		return nil
	}
	s.phase = PhaseConfirm
	return nil
}

// CanBack reports whether Back is accepted in the current phase.
func (s *AnswerState) CanBack() bool {
	return s.phase == PhaseConfirm || (s.phase == PhaseAnswering && s.page > 0)
}

// Back returns to the previous page. From the confirm page it returns to the
// last question.
func (s *AnswerState) Back() error {
	switch {
	case s.phase == PhaseConfirm:
		s.phase = PhaseAnswering
		s.page = len(s.questions) - 1
		return nil
	case s.phase == PhaseAnswering && s.page > 0:
		s.page--
		return nil
	default:
		return ErrInvalidTransition
	}
}

// Cancel abandons the item. Only accepted on the first page.
func (s *AnswerState) Cancel() error {
	if s.phase != PhaseAnswering || s.page != 0 {
		return ErrInvalidTransition
	}
	s.phase = PhaseCancelled
	return nil
}

// Submit finishes the item from the confirm page and returns the answers.
// Unanswered questions are omitted.
func (s *AnswerState) Submit() (map[string]string, error) {
	if s.phase != PhaseConfirm {
		return nil, ErrInvalidTransition
	}
	s.phase = PhaseResolved
	return s.Answers(), nil
}

// Answers returns the current answers keyed by question prompt. Multi-select
// labels are sorted and joined by ", ".
func (s *AnswerState) Answers() map[string]string {
	out := make(map[string]string, len(s.questions))
	for qi, q := range s.questions {
		sel := s.selected[qi]
		if len(sel) == 0 {
			continue
		}
		labels := make([]string, 0, len(sel))
		for oi := range sel {
			labels = append(labels, q.Options[oi].Label)
		}
		sort.Strings(labels)
		out[q.Prompt] = strings.Join(labels, ", ")
	}
	return out
}
