package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jmylchreest/deckd/internal/model"
)

// Kind returns the display item kind a request maps to. Plan exits and
// question requests without questions cannot be answered on the deck and
// become advisories.
func (r *PermissionRequest) Kind() model.Kind {
	switch r.ToolName {
	case ToolExitPlanMode:
		return model.KindAdvisory
	case ToolAskUserQuestion:
		if in, err := r.Interactive(); err != nil || len(in.Questions) == 0 {
			return model.KindAdvisory
		}
		return model.KindInteractive
	default:
		return model.KindConfirmation
	}
}

// Owner returns the owner key of the request.
func (r *PermissionRequest) Owner() string {
	return Owner(r.ClientPID)
}

// Confirmation converts the request's choices. A choice carrying permission
// updates becomes the toggle choice.
func (r *PermissionRequest) Confirmation() model.Confirmation {
	c := model.Confirmation{
		Tool:    r.ToolName,
		Detail:  r.Detail(),
		Choices: make([]model.Choice, 0, len(r.Choices)),
	}
	for _, ch := range r.Choices {
		c.Choices = append(c.Choices, model.Choice{
			Label:    ch.Label,
			Behavior: model.Behavior(ch.Behavior),
			Message:  ch.Message,
			Toggle:   len(ch.UpdatedPermissions) > 0,
			Extra:    ch.UpdatedPermissions,
		})
	}
	return c
}

// Interactive parses the questions from the tool input.
func (r *PermissionRequest) Interactive() (model.Interactive, error) {
	var in model.Interactive
	if len(r.ToolInput) == 0 {
		return in, nil
	}
	if err := json.Unmarshal(r.ToolInput, &in); err != nil {
		return in, fmt.Errorf("%w: %v", model.ErrMalformedRequest, err)
	}
	return in, nil
}

// Advisory builds the notice shown for requests that must be answered in
// the terminal.
func (r *PermissionRequest) Advisory() model.Advisory {
	msg := "Answer in the terminal"
	if r.ToolName == ToolExitPlanMode {
		msg = "Plan ready for review"
	}
	return model.Advisory{Title: r.ToolName, Message: msg}
}

// detailKeys are tried in order to summarise a tool input.
var detailKeys = []string{"command", "file_path", "path", "url", "pattern", "query", "description"}

// Detail returns a short summary of the tool input.
func (r *PermissionRequest) Detail() string {
	if len(r.ToolInput) == 0 {
		return ""
	}
	var input map[string]any
	if err := json.Unmarshal(r.ToolInput, &input); err != nil {
		return ""
	}
	for _, k := range detailKeys {
		if s, ok := input[k].(string); ok && s != "" {
			return s
		}
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := input[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ResponseFor converts an engine result into the wire response.
func ResponseFor(res model.Result) PermissionResponse {
	resp := PermissionResponse{Type: TypePermissionResponse}
	switch res.Outcome {
	case model.OutcomeCompleted:
		d := res.Decision
		switch {
		case d.Choice != nil:
			resp.Status = StatusOK
			resp.Chosen = &Choice{
				Label:              d.Choice.Label,
				Behavior:           string(d.Choice.Behavior),
				UpdatedPermissions: d.Choice.Extra,
				Message:            d.Choice.Message,
			}
		case d.Answers != nil:
			resp.Status = StatusOK
			resp.AskAnswers = d.Answers
		case d.Cancelled:
			resp.Status = StatusError
			resp.ErrorMessage = "Cancelled by user"
		default:
			resp.Status = StatusFallback
		}
	case model.OutcomeSuperseded:
		resp.Status = StatusError
		resp.ErrorMessage = "Superseded by a newer request"
	case model.OutcomeDisconnected:
		resp.Status = StatusError
		resp.ErrorMessage = "Client disconnected"
	default:
		resp.Status = StatusError
		resp.ErrorMessage = "No response"
	}
	return resp
}

// ErrorResponse builds an error response.
func ErrorResponse(status, msg string) PermissionResponse {
	return PermissionResponse{Type: TypePermissionResponse, Status: status, ErrorMessage: msg}
}

// Status converts a notification to a status payload.
func (n *Notification) Status() model.Status {
	title := n.Title
	if title == "" {
		title = humanizeType(n.NotificationType)
	}
	return model.Status{Type: n.NotificationType, Title: title, Message: n.Message}
}

func humanizeType(t string) string {
	words := strings.FieldsFunc(t, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
