package audio

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmylchreest/deckd/internal/config"
	"github.com/jmylchreest/deckd/internal/model"
)

// tone is the generated chime used when no sound file is configured.
type tone struct {
	freq  float64
	d     time.Duration
	count int
}

var tones = map[string]tone{
	model.PriorityHigh.String():   {freq: 880, d: 90 * time.Millisecond, count: 2},
	model.PriorityMedium.String(): {freq: 660, d: 120 * time.Millisecond, count: 1},
	model.PriorityLow.String():    {freq: 440, d: 80 * time.Millisecond, count: 1},
}

// Chimer is the player surface the manager needs.
type Chimer interface {
	Play(path string) error
	Preload(path string) error
	PlayTone(freq float64, d time.Duration, count int) error
	SetVolume(volume float64)
	ClearCache()
	Close()
}

// Manager picks the chime for an item's priority.
type Manager struct {
	mu     sync.RWMutex
	logger *slog.Logger
	player Chimer
	cfg    config.AudioConfig
	sounds map[string]string // priority -> sound file
}

// NewManager creates a manager playing through the speaker.
func NewManager(cfg config.AudioConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return newManager(cfg, NewPlayer(logger), logger)
}

func newManager(cfg config.AudioConfig, player Chimer, logger *slog.Logger) *Manager {
	m := &Manager{logger: logger, player: player}
	m.apply(cfg)
	return m
}

func (m *Manager) apply(cfg config.AudioConfig) {
	sounds := make(map[string]string, 3)
	for _, p := range []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow} {
		path := cfg.SoundFor(p.String())
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			m.logger.Warn("sound file not found, using tone", "priority", p.String(), "path", path)
			continue
		}
		sounds[p.String()] = path
	}

	m.mu.Lock()
	m.cfg = cfg
	m.sounds = sounds
	m.mu.Unlock()

	m.player.SetVolume(float64(cfg.Volume) / 100)
	m.player.ClearCache()
	if !cfg.Enabled {
		return
	}
	for _, path := range sounds {
		if err := m.player.Preload(path); err != nil {
			m.logger.Warn("failed to preload sound", "path", path, "error", err)
		}
	}
}

// UpdateConfig applies a reloaded audio section.
func (m *Manager) UpdateConfig(cfg config.AudioConfig) {
	m.apply(cfg)
	m.logger.Debug("audio config updated", "enabled", cfg.Enabled, "volume", cfg.Volume)
}

// Enabled reports whether chimes are on.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Enabled
}

// PlayForPriority plays the chime for a priority name.
func (m *Manager) PlayForPriority(priority string) error {
	m.mu.RLock()
	enabled := m.cfg.Enabled
	path, ok := m.sounds[priority]
	m.mu.RUnlock()

	if !enabled {
		return nil
	}
	if ok {
		return m.player.Play(path)
	}
	t, ok := tones[priority]
	if !ok {
		t = tones[model.PriorityLow.String()]
	}
	return m.player.PlayTone(t.freq, t.d, t.count)
}

// Close releases the speaker.
func (m *Manager) Close() {
	m.player.Close()
}
