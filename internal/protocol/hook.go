package protocol

import (
	"encoding/json"
	"fmt"
)

// Hook event names.
const (
	HookPermissionRequest = "PermissionRequest"
	HookNotification      = "Notification"
	HookStop              = "Stop"
)

// DenyMessage is returned to the agent when a request is denied on the deck.
const DenyMessage = "Denied via deck"

// HookInput is the JSON document an agent hook receives on stdin.
type HookInput struct {
	HookEventName         string           `json:"hook_event_name"`
	ToolName              string           `json:"tool_name"`
	ToolInput             json.RawMessage  `json:"tool_input,omitempty"`
	PermissionSuggestions []map[string]any `json:"permission_suggestions,omitempty"`
	NotificationType      string           `json:"notification_type,omitempty"`
	Message               string           `json:"message,omitempty"`
	Title                 string           `json:"title,omitempty"`
}

// ParseHookInput decodes a hook document, keeping the raw bytes for the
// daemon.
func ParseHookInput(data []byte) (*HookInput, json.RawMessage, error) {
	var in HookInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, nil, fmt.Errorf("failed to parse hook input: %w", err)
	}
	return &in, json.RawMessage(data), nil
}

// BuildRequest converts hook input into a permission request. Question
// requests carry no choices. Other tools get allow and deny, plus an
// always-allow choice built from the first permission suggestion.
func BuildRequest(in *HookInput, raw json.RawMessage, pid int) *PermissionRequest {
	req := &PermissionRequest{
		Type:         TypePermissionRequest,
		ToolName:     in.ToolName,
		ToolInput:    in.ToolInput,
		RawHookInput: raw,
		ClientPID:    pid,
		Choices:      []Choice{},
	}
	if in.ToolName == ToolAskUserQuestion {
		return req
	}

	req.Choices = append(req.Choices,
		Choice{Label: "Allow", Behavior: "allow"},
		Choice{Label: "Deny", Behavior: "deny", Message: DenyMessage},
	)
	if len(in.PermissionSuggestions) > 0 {
		req.Choices = append(req.Choices, Choice{
			Label:              "Always",
			Behavior:           "allow",
			UpdatedPermissions: in.PermissionSuggestions[:1],
		})
	}
	return req
}

// BuildNotification converts a notification hook into a message.
func BuildNotification(in *HookInput, pid int) *Notification {
	return &Notification{
		Type:             TypeNotification,
		NotificationType: in.NotificationType,
		Message:          in.Message,
		Title:            in.Title,
		ClientPID:        pid,
	}
}

// HookOutput is written to stdout to answer a permission hook.
type HookOutput struct {
	HookSpecificOutput HookSpecificOutput `json:"hookSpecificOutput"`
}

// HookSpecificOutput wraps the decision.
type HookSpecificOutput struct {
	HookEventName string       `json:"hookEventName"`
	Decision      HookDecision `json:"decision"`
}

// HookDecision is the agent-facing decision.
type HookDecision struct {
	Behavior           string           `json:"behavior"`
	UpdatedPermissions []map[string]any `json:"updatedPermissions,omitempty"`
	Message            string           `json:"message,omitempty"`
	UpdatedInput       *UpdatedInput    `json:"updatedInput,omitempty"`
}

// UpdatedInput carries question answers back to the agent.
type UpdatedInput struct {
	Questions json.RawMessage   `json:"questions"`
	Answers   map[string]string `json:"answers"`
}

// BuildHookOutput converts a chosen choice. The message is only sent for
// denials.
func BuildHookOutput(chosen *Choice) *HookOutput {
	d := HookDecision{
		Behavior:           chosen.Behavior,
		UpdatedPermissions: chosen.UpdatedPermissions,
	}
	if chosen.Behavior == "deny" {
		d.Message = chosen.Message
	}
	return &HookOutput{HookSpecificOutput: HookSpecificOutput{
		HookEventName: HookPermissionRequest,
		Decision:      d,
	}}
}

// BuildAskOutput answers a question request, echoing the original
// questions alongside the answers.
func BuildAskOutput(in *HookInput, answers map[string]string) *HookOutput {
	questions := json.RawMessage("[]")
	var input struct {
		Questions json.RawMessage `json:"questions"`
	}
	if len(in.ToolInput) > 0 && json.Unmarshal(in.ToolInput, &input) == nil && len(input.Questions) > 0 {
		questions = input.Questions
	}
	return &HookOutput{HookSpecificOutput: HookSpecificOutput{
		HookEventName: HookPermissionRequest,
		Decision: HookDecision{
			Behavior:     "allow",
			UpdatedInput: &UpdatedInput{Questions: questions, Answers: answers},
		},
	}}
}

// HookResult decides what a hook prints for a response. A nil output means
// the hook prints nothing and the agent falls back to its own prompt.
func HookResult(in *HookInput, resp *PermissionResponse) *HookOutput {
	if resp == nil || resp.Status != StatusOK {
		return nil
	}
	if in.ToolName == ToolAskUserQuestion && len(resp.AskAnswers) > 0 {
		return BuildAskOutput(in, resp.AskAnswers)
	}
	if resp.Chosen == nil {
		return nil
	}
	return BuildHookOutput(resp.Chosen)
}
