package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/deckd/internal/api"
	"github.com/jmylchreest/deckd/internal/audio"
	"github.com/jmylchreest/deckd/internal/config"
	"github.com/jmylchreest/deckd/internal/device"
	"github.com/jmylchreest/deckd/internal/engine"
	"github.com/jmylchreest/deckd/internal/history"
	"github.com/jmylchreest/deckd/internal/model"
	"github.com/jmylchreest/deckd/internal/notify"
	"github.com/jmylchreest/deckd/internal/protocol"
	"github.com/jmylchreest/deckd/internal/render"
	"github.com/jmylchreest/deckd/internal/server"
)

const (
	pruneInterval = time.Hour
	recordTimeout = 5 * time.Second
	apiStopWait   = 2 * time.Second
)

// Options configures a daemon beyond its config file.
type Options struct {
	// ConfigPath is watched for changes. Empty disables hot reload.
	ConfigPath string
	// Driver overrides the deck driver chosen by the config.
	Driver device.Driver
	// Sender overrides the desktop notification sender.
	Sender notify.Sender
	// Chime overrides the audio manager.
	Chime Chime
}

// Chime plays the attention sound for a priority.
type Chime interface {
	PlayForPriority(priority string) error
	UpdateConfig(cfg config.AudioConfig)
	Close()
}

type record struct {
	info model.Info
	res  model.Result
}

// Daemon owns every long-lived component.
type Daemon struct {
	mu         sync.RWMutex
	cfg        *config.Config
	logger     *slog.Logger
	configPath string

	palette  *OwnerPalette
	renderer *render.Renderer
	devices  *device.Manager
	engine   *engine.Engine
	server   *server.Server
	notifier *notify.Notifier
	chime    Chime
	api      *api.Server
	watcher  *ConfigWatcher

	history  *history.Store
	records  chan record
	recordWG sync.WaitGroup

	started  time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a daemon from cfg. Nothing runs until Run.
func New(cfg *config.Config, opts Options, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		configPath: opts.ConfigPath,
		stopCh:     make(chan struct{}),
	}

	d.palette = NewOwnerPalette(cfg.Colors.Palette, logger)
	d.renderer = render.NewRenderer(cfg.Device.KeySize, render.DefaultPalette())

	driver := opts.Driver
	if driver == nil {
		var err error
		if driver, err = d.newDriver(cfg.Device); err != nil {
			return nil, err
		}
	}
	d.devices = device.NewManager(driver, logger.With("component", "device"))
	d.devices.SetPollInterval(cfg.Device.PollInterval.Duration())
	d.devices.SetIdleTimeout(cfg.Device.IdleShutdown.Duration())

	d.engine = engine.New(engine.Config{
		PrimaryGuard:     cfg.Guard.Primary.Duration(),
		MinorGuard:       cfg.Guard.Minor.Duration(),
		MuteGuarded:      cfg.Guard.Mute,
		LivenessInterval: cfg.Socket.LivenessInterval.Duration(),
		Accent:           d.palette.Accent,
	}, d.renderer, d.devices, logger.With("component", "engine"))

	d.server = server.New(server.Options{
		Path:             cfg.SocketPath(),
		LivenessInterval: cfg.Socket.LivenessInterval.Duration(),
		RequestTimeout:   cfg.Socket.RequestTimeout.Duration(),
	}, d.engine, logger.With("component", "server"))

	sender := opts.Sender
	if sender == nil {
		sender = notify.NewBusSender()
	}
	d.notifier = notify.New(sender, logger.With("component", "notify"))
	d.notifier.SetEnabled(cfg.Notify.Desktop)

	d.chime = opts.Chime
	if d.chime == nil {
		d.chime = audio.NewManager(cfg.Audio, logger.With("component", "audio"))
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			logger.Warn("history disabled", "path", cfg.HistoryPath(), "error", err)
		} else {
			d.history = store
			d.records = make(chan record, 64)
		}
	}

	if cfg.API.Listen != "" {
		d.api = api.New(d.engine, cfg.API.APIKey, logger.With("component", "api"))
		if d.history != nil {
			d.api.SetHistory(d.history)
		}
	}

	if d.configPath != "" {
		d.watcher = NewConfigWatcher(d.configPath, logger.With("component", "config"))
	}

	d.wire()
	return d, nil
}

func (d *Daemon) newDriver(cfg config.DeviceConfig) (device.Driver, error) {
	switch cfg.Driver {
	case config.DriverTerminal:
		t := device.NewTerminal(cfg.Rows, cfg.Cols)
		t.SetQuitCallback(d.Stop)
		return t, nil
	case config.DriverPanel:
		return device.NewPanel(device.PanelOptions{
			I2CBus:   cfg.Panel.I2CBus,
			Pins:     cfg.Panel.Pins,
			Cols:     cfg.Panel.Cols,
			Debounce: cfg.Panel.Debounce.Duration(),
		}, d.logger.With("component", "panel")), nil
	case config.DriverNone:
		return device.None{}, nil
	default:
		return nil, fmt.Errorf("unknown device driver %q", cfg.Driver)
	}
}

func (d *Daemon) wire() {
	d.devices.SetPressCallback(d.engine.Press)
	d.devices.SetChangeCallback(func() {
		d.engine.DeviceChanged()
		d.notifier.NotifyDevice(d.devices.Ready(), d.devices.Name())
	})
	d.devices.SetIdleCallback(func() {
		d.logger.Info("idle shutdown")
		d.Stop()
	})

	d.engine.SetDisplayCallback(d.displayed)
	d.engine.SetResolvedCallback(d.resolved)

	d.server.SetStopHandler(d.Stop)
	d.server.SetStatusFilter(d.statusAllowed)
	d.server.SetStatusProvider(d.Status)
	d.server.SetRequestHandler(func(req *protocol.PermissionRequest, resp protocol.PermissionResponse) {
		d.logger.Debug("request answered", "tool", req.ToolName, "owner", req.Owner(), "status", resp.Status)
	})

	if d.watcher != nil {
		d.watcher.SetReloadCallback(d.applyConfig)
		d.watcher.SetErrorCallback(d.notifier.NotifyConfigError)
	}
}

// displayed runs on the engine loop whenever the shown item changes.
func (d *Daemon) displayed(info *model.Info) {
	d.notifier.ItemDisplayed(info)
	if info == nil || info.Kind == model.KindStatus.String() {
		return
	}
	priority := info.Priority
	go func() {
		if err := d.chime.PlayForPriority(priority); err != nil {
			d.logger.Debug("failed to play chime", "error", err)
			d.notifier.NotifyAudioError(err)
		}
	}()
}

func (d *Daemon) resolved(info model.Info, res model.Result) {
	d.notifier.ItemResolved(info, res)
	d.logger.Debug("item resolved", "id", info.ID, "kind", info.Kind, "outcome", res.Outcome.String())
	if d.records == nil {
		return
	}
	select {
	case d.records <- record{info: info, res: res}:
	default:
		d.logger.Warn("history queue full, dropping record", "id", info.ID)
	}
}

func (d *Daemon) recordLoop() {
	defer d.recordWG.Done()

	d.prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-d.records:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			if err := d.history.Record(ctx, r.info, r.res); err != nil {
				d.logger.Warn("failed to record resolution", "id", r.info.ID, "error", err)
			}
			cancel()
		case <-ticker.C:
			d.prune()
		}
	}
}

func (d *Daemon) prune() {
	d.mu.RLock()
	retention := d.cfg.History.Retention.Duration()
	d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	n, err := d.history.Prune(ctx, retention)
	if err != nil {
		d.logger.Warn("failed to prune history", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("pruned history", "removed", n)
	}
}

func (d *Daemon) statusAllowed(typ string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg.StatusAllowed(typ)
}

// Status answers a status query.
func (d *Daemon) Status() protocol.StatusResponse {
	g := d.devices.Geometry()
	return protocol.StatusResponse{
		Type:    protocol.TypeStatusResponse,
		Device:  d.devices.Name(),
		Rows:    g.Rows,
		Cols:    g.Cols,
		Started: d.started,
		Items:   d.engine.Snapshot(),
	}
}

// applyConfig takes the hot-reloadable sections of a new config. Guard,
// socket and device settings need a restart.
func (d *Daemon) applyConfig(newCfg *config.Config) {
	d.mu.Lock()
	old := d.cfg
	if old.Guard != newCfg.Guard || old.Socket != newCfg.Socket || old.Device.Driver != newCfg.Device.Driver {
		d.logger.Warn("guard, socket and device changes take effect after a restart")
	}
	next := *old
	next.Status = newCfg.Status
	next.Colors = newCfg.Colors
	next.Audio = newCfg.Audio
	next.Notify = newCfg.Notify
	next.History.Retention = newCfg.History.Retention
	d.cfg = &next
	d.mu.Unlock()

	d.palette.SetColors(newCfg.Colors.Palette, d.logger)
	d.chime.UpdateConfig(newCfg.Audio)
	d.notifier.SetEnabled(newCfg.Notify.Desktop)
	d.engine.Redraw()
	d.notifier.NotifyConfigReloaded()
}

// Config returns the active config.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Engine returns the engine.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// SocketPath returns the socket the daemon listens on.
func (d *Daemon) SocketPath() string {
	return d.server.Addr()
}

// APIAddr returns the API listen address, or "" when the API is off.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.Addr()
}

// Stop asks Run to return. Safe to call more than once and from callbacks.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Run starts every component and blocks until ctx ends or Stop is called.
// Pending requests are answered with a disconnect on the way out.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.started = time.Now()

	engineDone := make(chan error, 1)
	go func() { engineDone <- d.engine.Run(ctx) }()

	if err := d.devices.Start(ctx); err != nil {
		cancel()
		<-engineDone
		return fmt.Errorf("failed to start device manager: %w", err)
	}
	d.notifier.Start()

	if err := d.server.Start(); err != nil {
		cancel()
		<-engineDone
		d.devices.Stop()
		d.notifier.Stop()
		if d.history != nil {
			_ = d.history.Close()
		}
		d.chime.Close()
		return err
	}

	if d.history != nil {
		d.recordWG.Add(1)
		go d.recordLoop()
	}
	if d.api != nil {
		if err := d.api.Start(d.cfg.API.Listen); err != nil {
			d.logger.Warn("api disabled", "error", err)
			d.api = nil
		}
	}
	if d.watcher != nil {
		if err := d.watcher.Start(ctx, d.cfg); err != nil {
			d.logger.Warn("config hot reload disabled", "error", err)
		}
	}

	d.logger.Info("deckd ready",
		"socket", d.server.Addr(),
		"driver", d.devices.Name(),
		"deck", d.devices.Ready(),
		"history", d.history != nil,
		"api", d.APIAddr(),
	)

	select {
	case <-ctx.Done():
	case <-d.stopCh:
	}
	d.logger.Info("shutting down")

	if err := d.server.Stop(); err != nil {
		d.logger.Debug("failed to stop socket server", "error", err)
	}
	if d.api != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), apiStopWait)
		if err := d.api.Stop(stopCtx); err != nil {
			d.logger.Debug("failed to stop api", "error", err)
		}
		stopCancel()
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}

	cancel()
	<-engineDone
	d.devices.Stop()
	d.notifier.Stop()

	if d.history != nil {
		close(d.records)
		d.recordWG.Wait()
		if err := d.history.Close(); err != nil {
			d.logger.Debug("failed to close history", "error", err)
		}
	}
	d.chime.Close()

	d.logger.Info("deckd stopped")
	return nil
}
