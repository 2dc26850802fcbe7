package config

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "300ms", "5s", "1m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '300ms', '5s', '1m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Device drivers.
const (
	DriverTerminal = "terminal"
	DriverPanel    = "panel"
	DriverNone     = "none"
)

// ValidDrivers returns all valid device driver names.
func ValidDrivers() []string {
	return []string{DriverTerminal, DriverPanel, DriverNone}
}

// Config is the configuration for deckd.
// Loaded from ~/.config/deckd/deckd.toml
type Config struct {
	Guard   GuardConfig   `toml:"guard"`
	Socket  SocketConfig  `toml:"socket"`
	Device  DeviceConfig  `toml:"device"`
	Status  StatusConfig  `toml:"status"`
	Colors  ColorsConfig  `toml:"colors"`
	Audio   AudioConfig   `toml:"audio"`
	History HistoryConfig `toml:"history"`
	API     APIConfig     `toml:"api"`
	Notify  NotifyConfig  `toml:"notify"`
	Log     LogConfig     `toml:"log"`
}

// GuardConfig sets how long input is ignored after the deck changes.
// Read once at startup.
type GuardConfig struct {
	Primary Duration `toml:"primary"` // confirmations and questions
	Minor   Duration `toml:"minor"`   // advisories and status
	Mute    bool     `toml:"mute"`    // dim keys while guarded
}

// SocketConfig contains the client socket settings.
type SocketConfig struct {
	Path             string   `toml:"path"`              // empty = runtime dir default
	LivenessInterval Duration `toml:"liveness_interval"` // peer probe interval
	RequestTimeout   Duration `toml:"request_timeout"`   // 0 = wait for a human indefinitely
}

// DeviceConfig selects and sizes the deck.
type DeviceConfig struct {
	Driver       string      `toml:"driver"`        // "terminal", "panel" or "none"
	Rows         int         `toml:"rows"`          // terminal simulator rows
	Cols         int         `toml:"cols"`          // terminal simulator cols
	KeySize      int         `toml:"key_size"`      // rendered key edge in pixels
	PollInterval Duration    `toml:"poll_interval"` // hot-plug poll interval
	IdleShutdown Duration    `toml:"idle_shutdown"` // exit after this long without a device, 0 = never
	Panel        PanelConfig `toml:"panel"`
}

// PanelConfig describes a GPIO button panel with an SSD1306 screen.
type PanelConfig struct {
	I2CBus   string   `toml:"i2c_bus"` // empty = first available
	Pins     []string `toml:"pins"`    // one GPIO per key, row-major
	Cols     int      `toml:"cols"`
	Debounce Duration `toml:"debounce"`
}

// StatusConfig filters status updates.
type StatusConfig struct {
	Types []string `toml:"types"` // allowed status types, empty = all
}

// ColorsConfig holds the owner palette.
type ColorsConfig struct {
	Palette []string `toml:"palette"` // hex colours assigned to owners in order
}

// AudioConfig contains audio settings.
type AudioConfig struct {
	Enabled bool        `toml:"enabled"`
	Volume  int         `toml:"volume"` // 0-100
	Sounds  SoundConfig `toml:"sounds"`
}

// SoundConfig contains per-priority sound file paths.
type SoundConfig struct {
	High   string `toml:"high"`
	Medium string `toml:"medium"`
	Low    string `toml:"low"`
}

// HistoryConfig controls the resolution history database.
type HistoryConfig struct {
	Enabled   bool     `toml:"enabled"`
	Path      string   `toml:"path"`      // empty = data dir default
	Retention Duration `toml:"retention"` // 0 = keep forever
}

// APIConfig controls the HTTP control API.
type APIConfig struct {
	Listen string `toml:"listen"` // empty = disabled
	APIKey string `toml:"api_key"`
}

// NotifyConfig controls desktop notifications.
type NotifyConfig struct {
	Desktop bool `toml:"desktop"`
}

// LogConfig controls daemon logging.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
	File  string `toml:"file"`  // optional extra log file
}

// DefaultPalette is the built-in owner palette.
var DefaultPalette = []string{
	"#e5c07b", "#61afef", "#c678dd", "#98c379", "#e06c75", "#56b6c2",
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Guard: GuardConfig{
			Primary: Duration(300 * time.Millisecond),
			Minor:   Duration(0),
			Mute:    true,
		},
		Socket: SocketConfig{
			LivenessInterval: Duration(time.Second),
			RequestTimeout:   Duration(0),
		},
		Device: DeviceConfig{
			Driver:       DriverTerminal,
			Rows:         3,
			Cols:         5,
			KeySize:      72,
			PollInterval: Duration(2 * time.Second),
			IdleShutdown: Duration(0),
			Panel: PanelConfig{
				Cols:     4,
				Debounce: Duration(160 * time.Millisecond),
			},
		},
		Colors: ColorsConfig{
			Palette: append([]string(nil), DefaultPalette...),
		},
		Audio: AudioConfig{
			Enabled: false,
			Volume:  80,
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: Duration(30 * 24 * time.Hour),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads the configuration from path, or the default path when empty.
// If the file doesn't exist, returns the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Guard.Primary < 0 || c.Guard.Minor < 0 {
		return fmt.Errorf("guard durations must not be negative")
	}
	if c.Socket.LivenessInterval.Duration() < 10*time.Millisecond {
		return fmt.Errorf("liveness_interval must be at least 10ms, got %s", c.Socket.LivenessInterval.Duration())
	}

	validDriver := false
	for _, d := range ValidDrivers() {
		if c.Device.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid device driver %q, must be one of: %v", c.Device.Driver, ValidDrivers())
	}
	if c.Device.Rows < 1 || c.Device.Rows > 8 {
		return fmt.Errorf("rows must be between 1 and 8, got %d", c.Device.Rows)
	}
	if c.Device.Cols < 1 || c.Device.Cols > 8 {
		return fmt.Errorf("cols must be between 1 and 8, got %d", c.Device.Cols)
	}
	if c.Device.KeySize < 16 || c.Device.KeySize > 512 {
		return fmt.Errorf("key_size must be between 16 and 512, got %d", c.Device.KeySize)
	}
	if c.Device.PollInterval.Duration() <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Device.Driver == DriverPanel {
		if len(c.Device.Panel.Pins) == 0 {
			return fmt.Errorf("panel driver needs at least one pin")
		}
		if c.Device.Panel.Cols < 1 {
			return fmt.Errorf("panel cols must be positive, got %d", c.Device.Panel.Cols)
		}
	}

	for _, hex := range c.Colors.Palette {
		if _, err := ParseHexColor(hex); err != nil {
			return err
		}
	}

	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", c.Audio.Volume)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	return nil
}

// SocketPath returns the configured socket path or the default.
func (c *Config) SocketPath() string {
	if c.Socket.Path != "" {
		return expandPath(c.Socket.Path)
	}
	return SocketPath()
}

// HistoryPath returns the configured history path or the default.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return expandPath(c.History.Path)
	}
	return HistoryPath()
}

// StatusAllowed reports whether a status update of type typ is shown.
func (c *Config) StatusAllowed(typ string) bool {
	if len(c.Status.Types) == 0 {
		return true
	}
	for _, t := range c.Status.Types {
		if strings.EqualFold(t, typ) {
			return true
		}
	}
	return false
}

// SoundFor returns the sound file path for the given priority name, with ~
// expanded. Empty means no file is configured.
func (a AudioConfig) SoundFor(priority string) string {
	var path string
	switch priority {
	case "high":
		path = a.Sounds.High
	case "medium":
		path = a.Sounds.Medium
	default:
		path = a.Sounds.Low
	}
	return expandPath(path)
}

// ParseHexColor parses "#rrggbb" or "rrggbb".
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
