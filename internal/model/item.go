// Package model defines the display items that compete for the deck.
package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Priority orders items for display. Higher values win.
type Priority int

// Priority levels.
const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// String returns the lower-case priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Kind identifies the request variant carried by an item.
type Kind int

const (
	// KindConfirmation is a blocking allow/deny style decision.
	KindConfirmation Kind = iota
	// KindInteractive is a blocking multi-page question set.
	KindInteractive
	// KindAdvisory is a fire-and-forget notice that needs eventual handling.
	KindAdvisory
	// KindStatus is a passive fire-and-forget status update.
	KindStatus
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfirmation:
		return "confirmation"
	case KindInteractive:
		return "interactive"
	case KindAdvisory:
		return "advisory"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Priority returns the fixed priority for the kind.
func (k Kind) Priority() Priority {
	switch k {
	case KindConfirmation, KindInteractive:
		return PriorityHigh
	case KindAdvisory:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Blocking reports whether producers of this kind wait for a resolution.
func (k Kind) Blocking() bool {
	return k == KindConfirmation || k == KindInteractive
}

// Primary reports whether the kind uses the primary guard duration.
func (k Kind) Primary() bool {
	return k.Blocking()
}

// Supersedes reports whether a newer item of kind k removes an older live
// item of kind old from the same owner. Confirmations from one owner coexist.
func (k Kind) Supersedes(old Kind) bool {
	return !(k == KindConfirmation && old == KindConfirmation)
}

// Validation errors.
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrNoChoices        = fmt.Errorf("%w: confirmation has no choices", ErrMalformedRequest)
	ErrNoQuestions      = fmt.Errorf("%w: interactive request has no questions", ErrMalformedRequest)
	ErrNoOptions        = fmt.Errorf("%w: question has no options", ErrMalformedRequest)
	ErrDuplicatePrompt  = fmt.Errorf("%w: two questions share a prompt", ErrMalformedRequest)
	ErrUnknownBehavior  = fmt.Errorf("%w: unknown choice behavior", ErrMalformedRequest)
	ErrMissingPayload   = fmt.Errorf("%w: payload missing for kind", ErrMalformedRequest)
)

// Item is one pending request competing for the deck.
//
// Everything except the resolution handle is guarded by the engine's store
// lock once the item has been added.
type Item struct {
	ID        string
	Owner     string
	Kind      Kind
	Priority  Priority
	CreatedAt time.Time
	Seq       uint64

	Confirmation *Confirmation
	Interactive  *Interactive
	Advisory     *Advisory
	Status       *Status

	// Answers holds paging state for interactive items.
	Answers *AnswerState
	// ToggleActive is the sticky toggle state of a confirmation.
	ToggleActive bool
	// GuardUntil is the instant after which presses are accepted.
	GuardUntil time.Time
	// Rev increments on every visible mutation.
	Rev uint64

	resolution *Resolution
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newID(now time.Time) (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate ULID: %w", err)
	}
	return id.String(), nil
}

func newItem(owner string, kind Kind) (*Item, error) {
	now := time.Now()
	id, err := newID(now)
	if err != nil {
		return nil, err
	}
	return &Item{
		ID:         id,
		Owner:      owner,
		Kind:       kind,
		Priority:   kind.Priority(),
		CreatedAt:  now,
		resolution: NewResolution(),
	}, nil
}

// NewConfirmationItem builds a confirmation item after validating the payload.
func NewConfirmationItem(owner string, c Confirmation) (*Item, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	it, err := newItem(owner, KindConfirmation)
	if err != nil {
		return nil, err
	}
	it.Confirmation = &c
	return it, nil
}

// NewInteractiveItem builds an interactive item with fresh paging state.
func NewInteractiveItem(owner string, in Interactive) (*Item, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	it, err := newItem(owner, KindInteractive)
	if err != nil {
		return nil, err
	}
	it.Interactive = &in
	it.Answers = NewAnswerState(in.Questions)
	return it, nil
}

// NewAdvisoryItem builds an advisory item.
func NewAdvisoryItem(owner string, a Advisory) (*Item, error) {
	it, err := newItem(owner, KindAdvisory)
	if err != nil {
		return nil, err
	}
	it.Advisory = &a
	return it, nil
}

// NewStatusItem builds a status item.
func NewStatusItem(owner string, s Status) (*Item, error) {
	it, err := newItem(owner, KindStatus)
	if err != nil {
		return nil, err
	}
	it.Status = &s
	return it, nil
}

// Resolution returns the item's one-shot resolution handle.
func (it *Item) Resolution() *Resolution {
	return it.resolution
}

// Resolve resolves the item. Only the first call has any effect.
func (it *Item) Resolve(r Result) bool {
	return it.resolution.Resolve(r)
}

// Validate checks the payload matches the kind.
func (it *Item) Validate() error {
	switch it.Kind {
	case KindConfirmation:
		if it.Confirmation == nil {
			return ErrMissingPayload
		}
		return it.Confirmation.Validate()
	case KindInteractive:
		if it.Interactive == nil || it.Answers == nil {
			return ErrMissingPayload
		}
		return it.Interactive.Validate()
	case KindAdvisory:
		if it.Advisory == nil {
			return ErrMissingPayload
		}
	case KindStatus:
		if it.Status == nil {
			return ErrMissingPayload
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedRequest, it.Kind)
	}
	return nil
}

// Summary returns a one-line description used in logs and listings.
func (it *Item) Summary() string {
	switch it.Kind {
	case KindConfirmation:
		if it.Confirmation.Detail != "" {
			return it.Confirmation.Tool + ": " + it.Confirmation.Detail
		}
		return it.Confirmation.Tool
	case KindInteractive:
		if len(it.Interactive.Questions) > 0 {
			return it.Interactive.Questions[0].Prompt
		}
	case KindAdvisory:
		if it.Advisory.Title != "" {
			return it.Advisory.Title
		}
		return it.Advisory.Message
	case KindStatus:
		if it.Status.Message != "" {
			return it.Status.Message
		}
		return it.Status.Type
	}
	return ""
}

// Touch marks a visible mutation.
func (it *Item) Touch() {
	it.Rev++
}

// Info is a copy of an item's externally visible state.
type Info struct {
	ID         string    `json:"id" yaml:"id"`
	Owner      string    `json:"owner" yaml:"owner"`
	Kind       string    `json:"kind" yaml:"kind"`
	Priority   string    `json:"priority" yaml:"priority"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	Summary    string    `json:"summary" yaml:"summary"`
	Displayed  bool      `json:"displayed" yaml:"displayed"`
	Page       int       `json:"page,omitempty" yaml:"page,omitempty"`
	PageCount  int       `json:"page_count,omitempty" yaml:"page_count,omitempty"`
	GuardUntil time.Time `json:"guard_until,omitzero" yaml:"guard_until,omitempty"`
}

// Info returns a snapshot of the item. Callers must hold the store lock.
func (it *Item) Info(displayed bool) Info {
	info := Info{
		ID:         it.ID,
		Owner:      it.Owner,
		Kind:       it.Kind.String(),
		Priority:   it.Priority.String(),
		CreatedAt:  it.CreatedAt,
		Summary:    it.Summary(),
		Displayed:  displayed,
		GuardUntil: it.GuardUntil,
	}
	if it.Answers != nil {
		info.Page = it.Answers.Page()
		info.PageCount = it.Answers.PageCount()
	}
	return info
}
