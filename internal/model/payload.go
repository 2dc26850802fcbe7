package model

// Behavior is the decision a confirmation choice stands for.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
)

// Choice is one button of a confirmation.
type Choice struct {
	Label    string   `json:"label"`
	Behavior Behavior `json:"behavior"`
	Message  string   `json:"message,omitempty"`
	// Toggle choices flip the item's sticky toggle instead of resolving it.
	Toggle bool `json:"toggle,omitempty"`
	// Extra is passed back to the producer untouched.
	Extra []map[string]any `json:"extra,omitempty"`
}

// Confirmation is the payload of a confirmation item.
type Confirmation struct {
	Tool    string   `json:"tool"`
	Detail  string   `json:"detail,omitempty"`
	Choices []Choice `json:"choices"`
}

// Validate rejects confirmations that could never be answered.
func (c *Confirmation) Validate() error {
	if len(c.Choices) == 0 {
		return ErrNoChoices
	}
	for _, ch := range c.Choices {
		if ch.Behavior != BehaviorAllow && ch.Behavior != BehaviorDeny {
			return ErrUnknownBehavior
		}
	}
	return nil
}

// ToggleChoice returns the first toggle choice, if any.
func (c *Confirmation) ToggleChoice() (Choice, bool) {
	for _, ch := range c.Choices {
		if ch.Toggle {
			return ch, true
		}
	}
	return Choice{}, false
}

// Option is one selectable answer of a question.
type Option struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Question is one page of an interactive item.
type Question struct {
	Header      string   `json:"header,omitempty"`
	Prompt      string   `json:"question"`
	MultiSelect bool     `json:"multiSelect,omitempty"`
	Options     []Option `json:"options"`
}

// Interactive is the payload of an interactive item.
type Interactive struct {
	Questions []Question `json:"questions"`
}

// Validate rejects question sets with empty pages.
func (in *Interactive) Validate() error {
	if len(in.Questions) == 0 {
		return ErrNoQuestions
	}
	// Answers are keyed by prompt.
	seen := make(map[string]bool, len(in.Questions))
	for _, q := range in.Questions {
		if len(q.Options) == 0 {
			return ErrNoOptions
		}
		if seen[q.Prompt] {
			return ErrDuplicatePrompt
		}
		seen[q.Prompt] = true
	}
	return nil
}

// Advisory is the payload of an advisory item.
type Advisory struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// Status is the payload of a status item.
type Status struct {
	Type    string `json:"type,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}
