// Package protocol defines the newline-delimited JSON messages exchanged
// over the daemon socket.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jmylchreest/deckd/internal/model"
)

// Message types.
const (
	TypePermissionRequest  = "permission_request"
	TypePermissionResponse = "permission_response"
	TypeNotification       = "notification"
	TypeStop               = "stop"
	TypeStopHook           = "stop_hook"
	TypeStatus             = "status"
	TypeStatusResponse     = "status_response"
)

// Response statuses.
const (
	StatusOK       = "ok"
	StatusNoDevice = "no_device"
	StatusError    = "error"
	StatusFallback = "fallback"
)

// Tool names with special handling.
const (
	ToolAskUserQuestion = "AskUserQuestion"
	ToolExitPlanMode    = "ExitPlanMode"
)

// MaxMessageSize bounds a single inbound line.
const MaxMessageSize = 1 << 20

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrEmpty       = errors.New("empty message")
)

// Choice is a confirmation choice on the wire.
type Choice struct {
	Label              string           `json:"label"`
	Behavior           string           `json:"behavior"`
	UpdatedPermissions []map[string]any `json:"updated_permissions,omitempty"`
	Message            string           `json:"message,omitempty"`
}

// PermissionRequest is sent by a hook client and answered once.
type PermissionRequest struct {
	Type         string          `json:"type"`
	ToolName     string          `json:"tool_name"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	Choices      []Choice        `json:"choices"`
	RawHookInput json.RawMessage `json:"raw_hook_input,omitempty"`
	ClientPID    int             `json:"client_pid"`
}

// PermissionResponse answers a PermissionRequest.
type PermissionResponse struct {
	Type         string            `json:"type"`
	Status       string            `json:"status"`
	Chosen       *Choice           `json:"chosen,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	AskAnswers   map[string]string `json:"ask_answers,omitempty"`
}

// Notification is a fire-and-forget status update.
type Notification struct {
	Type             string `json:"type"`
	NotificationType string `json:"notification_type"`
	Message          string `json:"message"`
	Title            string `json:"title,omitempty"`
	ClientPID        int    `json:"client_pid"`
}

// Control is a stop, stop_hook or status query.
type Control struct {
	Type      string `json:"type"`
	ClientPID int    `json:"client_pid,omitempty"`
}

// StatusResponse answers a status query.
type StatusResponse struct {
	Type    string       `json:"type" yaml:"-"`
	Device  string       `json:"device" yaml:"device"`
	Rows    int          `json:"rows" yaml:"rows"`
	Cols    int          `json:"cols" yaml:"cols"`
	Started time.Time    `json:"started" yaml:"started"`
	Items   []model.Info `json:"items" yaml:"items"`
}

// Owner returns the owner key for a client pid.
func Owner(pid int) string {
	if pid <= 0 {
		return ""
	}
	return strconv.Itoa(pid)
}

// Encode writes v as one JSON line.
func Encode(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadLine reads the next non-blank line. Blank lines are liveness probes.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	for {
		line, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("message exceeds %d bytes", r.Size())
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			out := make([]byte, len(trimmed))
			copy(out, trimmed)
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Decode parses one line into the concrete message for its type.
// A missing type is treated as a permission request.
func Decode(line []byte) (any, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrEmpty
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	var msg any
	switch env.Type {
	case TypePermissionRequest, "":
		msg = &PermissionRequest{}
	case TypePermissionResponse:
		msg = &PermissionResponse{}
	case TypeNotification:
		msg = &Notification{}
	case TypeStop, TypeStopHook, TypeStatus:
		msg = &Control{}
	case TypeStatusResponse:
		msg = &StatusResponse{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(line, msg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
	}
	if req, ok := msg.(*PermissionRequest); ok && req.Type == "" {
		req.Type = TypePermissionRequest
	}
	return msg, nil
}
