package daemon

import (
	"image/color"
	"log/slog"
	"sync"

	"github.com/jmylchreest/deckd/internal/config"
)

// OwnerPalette gives every owner a stable accent colour, assigned from the
// configured palette in the order owners are first seen.
type OwnerPalette struct {
	mu       sync.Mutex
	colors   []color.RGBA
	assigned map[string]int
	next     int
}

// NewOwnerPalette parses hex colours. Invalid entries are skipped.
func NewOwnerPalette(hex []string, logger *slog.Logger) *OwnerPalette {
	p := &OwnerPalette{assigned: make(map[string]int)}
	p.SetColors(hex, logger)
	return p
}

// SetColors replaces the colours. Owners keep their slot.
func (p *OwnerPalette) SetColors(hex []string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	colors := make([]color.RGBA, 0, len(hex))
	for _, h := range hex {
		c, err := config.ParseHexColor(h)
		if err != nil {
			logger.Warn("skipping palette colour", "error", err)
			continue
		}
		colors = append(colors, c)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.colors = colors
}

// Accent returns the owner's colour. Items without an owner, or an empty
// palette, get no accent.
func (p *OwnerPalette) Accent(owner string) color.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	if owner == "" || len(p.colors) == 0 {
		return color.RGBA{}
	}
	slot, ok := p.assigned[owner]
	if !ok {
		slot = p.next
		p.next++
		p.assigned[owner] = slot
	}
	return p.colors[slot%len(p.colors)]
}
