// Package notify mirrors deck activity as desktop notifications.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/deckd/internal/model"
)

// Level indicates the urgency of a notification.
type Level int

const (
	// LevelInfo is for informational messages (low urgency).
	LevelInfo Level = iota
	// LevelWarning is for warnings (normal urgency).
	LevelWarning
	// LevelCritical is for items waiting on a human (critical urgency).
	LevelCritical
)

const appName = "deckd"

type job struct {
	itemID string
	close  bool
	n      *Notification
}

// Notifier sends desktop notifications from a single worker goroutine, so
// callers on the engine loop never wait on the bus.
type Notifier struct {
	mu     sync.Mutex
	logger *slog.Logger
	sender Sender

	lastNotifyTime map[string]time.Time
	minInterval    time.Duration
	enabled        bool

	// item ID -> server notification ID, owned by the worker
	shown map[string]uint32

	queue   chan job
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New creates a notifier that delivers through sender.
func New(sender Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger:         logger,
		sender:         sender,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    5 * time.Second,
		enabled:        true,
		shown:          make(map[string]uint32),
		queue:          make(chan job, 32),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetMinInterval sets the minimum interval between notifications that share
// a key.
func (n *Notifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

// Start runs the delivery worker.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return
	}
	n.running = true
	go n.run()
}

// Stop stops the worker. Queued notifications are dropped.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	close(n.stopCh)
	n.mu.Unlock()
	<-n.doneCh
}

func (n *Notifier) run() {
	defer close(n.doneCh)
	for {
		select {
		case <-n.stopCh:
			return
		case j := <-n.queue:
			n.deliver(j)
		}
	}
}

func (n *Notifier) deliver(j job) {
	if j.close {
		id, ok := n.shown[j.itemID]
		if !ok {
			return
		}
		delete(n.shown, j.itemID)
		if err := n.sender.Close(id); err != nil {
			n.logger.Debug("failed to close notification", "item", j.itemID, "error", err)
		}
		return
	}

	id, err := n.sender.Send(j.n)
	if err != nil {
		n.logger.Debug("failed to send notification", "summary", j.n.Summary, "error", err)
		return
	}
	if j.itemID != "" {
		n.shown[j.itemID] = id
	}
}

func (n *Notifier) enqueue(j job) {
	select {
	case n.queue <- j:
	default:
		n.logger.Debug("notification queue full, dropping", "item", j.itemID)
	}
}

// Notify sends a notification unless one with the same key went out within
// the minimum interval.
func (n *Notifier) Notify(key, summary, body string, level Level) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.enabled {
		return
	}
	if last, ok := n.lastNotifyTime[key]; ok && time.Since(last) < n.minInterval {
		n.logger.Debug("notification rate-limited", "key", key, "summary", summary)
		return
	}
	n.lastNotifyTime[key] = time.Now()
	n.enqueue(job{n: build(summary, body, level)})
}

// ItemDisplayed notifies about a blocking item reaching the deck. The
// notification is withdrawn when the item resolves.
func (n *Notifier) ItemDisplayed(info *model.Info) {
	if info == nil {
		return
	}
	if info.Kind != model.KindConfirmation.String() && info.Kind != model.KindInteractive.String() {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.enabled {
		return
	}

	summary := "Decision needed"
	if info.Kind == model.KindInteractive.String() {
		summary = "Question waiting"
	}
	notification := build(summary, info.Summary, LevelCritical)
	notification.ExpireTimeout = 0
	n.enqueue(job{itemID: info.ID, n: notification})
}

// ItemResolved withdraws the notification for a resolved item.
func (n *Notifier) ItemResolved(info model.Info, _ model.Result) {
	n.enqueue(job{itemID: info.ID, close: true})
}

// NotifyConfigReloaded reports a successful configuration reload.
func (n *Notifier) NotifyConfigReloaded() {
	n.Notify("config-reload", "Configuration Reloaded", "deckd configuration has been reloaded.", LevelInfo)
}

// NotifyConfigError reports a configuration that failed to load.
func (n *Notifier) NotifyConfigError(err error) {
	n.Notify("config-error", "Configuration Error", "Failed to reload configuration: "+err.Error(), LevelWarning)
}

// NotifyDevice reports a deck connecting or disconnecting.
func (n *Notifier) NotifyDevice(connected bool, driver string) {
	if connected {
		n.Notify("device", "Deck Connected", "The "+driver+" deck is ready.", LevelInfo)
		return
	}
	n.Notify("device", "Deck Disconnected", "Requests fall back to the terminal until the "+driver+" deck returns.", LevelWarning)
}

// NotifyAudioError reports a chime that failed to play.
func (n *Notifier) NotifyAudioError(err error) {
	n.Notify("audio-error", "Audio Error", "Failed to play sound: "+err.Error(), LevelWarning)
}

func build(summary, body string, level Level) *Notification {
	urgency := byte(1)
	icon := "dialog-warning"
	switch level {
	case LevelInfo:
		urgency = 0
		icon = "dialog-information"
	case LevelCritical:
		urgency = 2
		icon = "dialog-question"
	}
	return &Notification{
		AppName: appName,
		AppIcon: icon,
		Summary: summary,
		Body:    body,
		Hints: map[string]dbus.Variant{
			"urgency":       dbus.MakeVariant(urgency),
			"category":      dbus.MakeVariant("device"),
			"transient":     dbus.MakeVariant(level != LevelCritical),
			"desktop-entry": dbus.MakeVariant(appName),
		},
		ExpireTimeout: defaultExpire,
	}
}
