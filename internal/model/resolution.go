package model

import (
	"context"
	"sync"
)

// Outcome is the terminal state of an item.
type Outcome int

const (
	// OutcomePending means the item is not resolved yet.
	OutcomePending Outcome = iota
	// OutcomeCompleted means a human answered, confirmed, cancelled or dismissed.
	OutcomeCompleted
	// OutcomeSuperseded means a newer item from the same owner replaced it.
	OutcomeSuperseded
	// OutcomeDisconnected means the producer's peer went away first.
	OutcomeDisconnected
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Decision is what the human chose for a completed item.
type Decision struct {
	// Choice is set for confirmations.
	Choice *Choice
	// Answers is set for submitted interactive items, keyed by question prompt.
	Answers map[string]string
	// Cancelled is set when an interactive item was cancelled.
	Cancelled bool
	// Dismissed is set for advisory and status items.
	Dismissed bool
}

// Result is delivered exactly once per item.
type Result struct {
	Outcome  Outcome
	Decision Decision
}

// Completed builds a completed result.
func Completed(d Decision) Result {
	return Result{Outcome: OutcomeCompleted, Decision: d}
}

// Superseded is the result of a same-owner supersession.
func Superseded() Result {
	return Result{Outcome: OutcomeSuperseded}
}

// Disconnected is the result of a vanished peer.
func Disconnected() Result {
	return Result{Outcome: OutcomeDisconnected}
}

// Resolution is a single-assignment result cell with a broadcast-on-close
// done channel. Each item owns its own, so waking one waiter never touches
// another.
type Resolution struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.RWMutex
	result Result
}

// NewResolution returns an unresolved handle.
func NewResolution() *Resolution {
	return &Resolution{done: make(chan struct{})}
}

// Resolve stores r and wakes every waiter. It reports whether this call won.
func (r *Resolution) Resolve(res Result) bool {
	won := false
	r.once.Do(func() {
		r.mu.Lock()
		r.result = res
		r.mu.Unlock()
		close(r.done)
		won = true
	})
	return won
}

// Done is closed once the handle is resolved.
func (r *Resolution) Done() <-chan struct{} {
	return r.done
}

// Result returns the stored result and whether the handle is resolved.
func (r *Resolution) Result() (Result, bool) {
	select {
	case <-r.done:
	default:
		return Result{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result, true
}

// Wait blocks until the handle resolves or ctx ends.
func (r *Resolution) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		res, _ := r.Result()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
