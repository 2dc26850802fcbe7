package engine

import (
	"sync"
	"time"

	"github.com/jmylchreest/deckd/internal/model"
)

// Guard drops input for a short time after the deck changes what it shows.
//
// Only one timer is pending at a time. Each arm bumps the generation so an
// expiry from an earlier arm can be recognised and ignored.
type Guard struct {
	primary time.Duration
	minor   time.Duration
	now     func() time.Time
	expire  func(gen uint64, id string)

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// NewGuard creates a guard. expire is called from the timer goroutine and
// must only hand the event off.
func NewGuard(primary, minor time.Duration, now func() time.Time, expire func(gen uint64, id string)) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{primary: primary, minor: minor, now: now, expire: expire}
}

// Duration returns the guard window for kind k.
func (g *Guard) Duration(k model.Kind) time.Duration {
	if k.Primary() {
		return g.primary
	}
	return g.minor
}

// Arm starts a new guard window for it. The caller holds the store lock.
func (g *Guard) Arm(it *model.Item) {
	d := g.Duration(it.Kind)
	it.GuardUntil = g.now().Add(d)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
	g.gen++
	if d <= 0 || g.expire == nil {
		return
	}
	gen, id := g.gen, it.ID
	g.timer = time.AfterFunc(d, func() {
		g.expire(gen, id)
	})
}

// Cancel stops any pending expiry. Later expiries from earlier arms are stale.
func (g *Guard) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
	g.gen++
}

func (g *Guard) stopLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// Current reports whether gen belongs to the latest arm.
func (g *Guard) Current(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gen == g.gen
}

// Active reports whether it is still inside its guard window.
func (g *Guard) Active(it *model.Item) bool {
	return it != nil && g.now().Before(it.GuardUntil)
}
