package models

// Role identifies who produced a chat turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged turn in canonical form, independent of any
// provider wire format. A sequence is ordered and carries at most one system
// message, which if present comes first.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RequestOptions carries the per-call knobs accepted by the gateway
type RequestOptions struct {
	Provider    string  `json:"provider,omitzero"`
	Model       string  `json:"model,omitzero"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	MaxRetries  int     `json:"max_retries,omitzero"`
}

// DefaultMaxRetries is applied when RequestOptions.MaxRetries is unset
const DefaultMaxRetries = 3

// Usage reports token accounting, zero-filled when the provider omits it
type Usage struct {
	PromptTokens   int64 `json:"prompt_tokens"`
	ResponseTokens int64 `json:"response_tokens"`
}

// ChatResult is the normalized success response returned to callers. It is
// never persisted by the gateway; persistence belongs to the caller.
type ChatResult struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Usage    Usage  `json:"usage"`
}

// ValidateMessages checks the canonical sequence invariants
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return NewValidationError("messages cannot be empty", nil)
	}
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if i != 0 {
				return NewValidationError("system message must be first", nil)
			}
		case RoleUser, RoleAssistant:
		default:
			return NewValidationError("unknown message role: "+string(msg.Role), nil)
		}
	}
	return nil
}

// Validate normalizes defaults and checks option bounds
func (o *RequestOptions) Validate() error {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetries < 1 {
		return NewValidationError("max_retries must be at least 1", nil)
	}
	if o.MaxTokens <= 0 {
		return NewValidationError("max_tokens must be positive", nil)
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return NewValidationError("temperature must be in [0, 2]", nil)
	}
	return nil
}
