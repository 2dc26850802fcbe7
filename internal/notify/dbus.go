package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.freedesktop.Notifications"
	busPath       = "/org/freedesktop/Notifications"
	methodNotify  = busName + ".Notify"
	methodClose   = busName + ".CloseNotification"
	defaultExpire = 5000
)

// Notification holds the parameters of an org.freedesktop.Notifications
// Notify call.
type Notification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string // alternating key, label pairs
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// Sender delivers notifications to a notification server.
type Sender interface {
	Send(n *Notification) (uint32, error)
	Close(id uint32) error
}

// BusSender sends notifications over the session bus.
type BusSender struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewBusSender creates a sender. The bus is connected on first use.
func NewBusSender() *BusSender {
	return &BusSender{}
}

func (s *BusSender) object() (dbus.BusObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		conn, err := dbus.SessionBus()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to session bus: %w", err)
		}
		s.conn = conn
	}
	return s.conn.Object(busName, dbus.ObjectPath(busPath)), nil
}

// Send implements Sender.
func (s *BusSender) Send(n *Notification) (uint32, error) {
	obj, err := s.object()
	if err != nil {
		return 0, err
	}
	actions := n.Actions
	if actions == nil {
		actions = []string{}
	}
	hints := n.Hints
	if hints == nil {
		hints = map[string]dbus.Variant{}
	}

	var id uint32
	call := obj.Call(methodNotify, 0,
		n.AppName, n.ReplacesID, n.AppIcon, n.Summary, n.Body, actions, hints, n.ExpireTimeout)
	if call.Err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", call.Err)
	}
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("failed to read notification id: %w", err)
	}
	return id, nil
}

// Close implements Sender.
func (s *BusSender) Close(id uint32) error {
	obj, err := s.object()
	if err != nil {
		return err
	}
	if err := obj.Call(methodClose, 0, id).Err; err != nil {
		return fmt.Errorf("failed to close notification %d: %w", id, err)
	}
	return nil
}
