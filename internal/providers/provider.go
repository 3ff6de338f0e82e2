package providers

import (
	"context"

	"github.com/halcyon-labs/persona-proxy/internal/models"
)

// Request is the canonical call handed to an adapter after the gateway has
// resolved provider, model and options.
type Request struct {
	Model       string
	Messages    []models.Message
	MaxTokens   int
	Temperature float64
}

// Adapter translates canonical messages into one provider's wire format and
// normalizes its responses and errors. One implementation exists per wire
// format, selected by configured kind, never by structural inspection.
//
// Errors must come back classified as *models.AppError so the gateway can
// drive rotation, retry and fallback: 401/403 auth, 429 rate limit, timeout
// and 5xx transient, any other 4xx or malformed response fatal.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, apiKey string, req *Request) (*models.ChatResult, error)
}

// ForConfig builds the adapter for one provider entry, selected by its
// configured kind. Unrecognized kinds are treated as OpenAI-compatible since
// that is the wire format most hosted endpoints expose.
func ForConfig(cfg models.ProviderConfig) Adapter {
	switch cfg.AdapterKind() {
	case models.KindAnthropic:
		return NewAnthropicAdapter(cfg)
	case models.KindGemini:
		return NewGeminiAdapter(cfg)
	default:
		return NewOpenAIAdapter(cfg)
	}
}

// SplitSystem separates the optional leading system message from the
// conversation turns, for providers whose wire format carries system content
// in a dedicated field.
func SplitSystem(messages []models.Message) (system string, turns []models.Message) {
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		return messages[0].Content, messages[1:]
	}
	return "", messages
}
