package providers

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/halcyon-labs/persona-proxy/internal/models"
	"github.com/halcyon-labs/persona-proxy/internal/utils/clientcache"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicOption "github.com/anthropics/anthropic-sdk-go/option"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Default output budget when the caller leaves max tokens unset. The
// Messages API requires an explicit value.
const anthropicDefaultMaxTokens = 1024

// AnthropicAdapter speaks the Anthropic Messages API. System content travels
// in the dedicated system field, never inside the messages array.
type AnthropicAdapter struct {
	cfg         models.ProviderConfig
	clientCache *clientcache.Cache[*anthropic.Client]
}

// NewAnthropicAdapter creates an adapter bound to one provider entry
func NewAnthropicAdapter(cfg models.ProviderConfig) *AnthropicAdapter {
	return &AnthropicAdapter{
		cfg:         cfg,
		clientCache: clientcache.NewCache[*anthropic.Client](),
	}
}

// Name returns the configured provider name
func (a *AnthropicAdapter) Name() string {
	return a.cfg.Name
}

func (a *AnthropicAdapter) createClient(apiKey string) *anthropic.Client {
	keyHash := sha256.Sum256([]byte(apiKey + "\x00" + a.cfg.BaseURL))
	cacheKey := fmt.Sprintf("%s:%x", a.cfg.Name, keyHash[:16])

	client, err := a.clientCache.GetOrCreate(cacheKey, func() (*anthropic.Client, error) {
		fiberlog.Debugf("Creating new Anthropic client for %s (key hash: %x)", a.cfg.Name, keyHash[:4])
		return a.buildClient(apiKey), nil
	})
	if err != nil {
		return a.buildClient(apiKey)
	}
	return client
}

func (a *AnthropicAdapter) buildClient(apiKey string) *anthropic.Client {
	clientOpts := []anthropicOption.RequestOption{
		anthropicOption.WithAPIKey(apiKey),
		anthropicOption.WithMaxRetries(0),
	}

	if a.cfg.BaseURL != "" {
		clientOpts = append(clientOpts, anthropicOption.WithBaseURL(a.cfg.BaseURL))
	}

	for key, value := range a.cfg.Headers {
		clientOpts = append(clientOpts, anthropicOption.WithHeader(key, value))
	}

	client := anthropic.NewClient(clientOpts...)
	return &client
}

// Complete sends one message request and normalizes the response
func (a *AnthropicAdapter) Complete(ctx context.Context, apiKey string, req *Request) (*models.ChatResult, error) {
	client := a.createClient(apiKey)

	system, turns := SplitSystem(req.Messages)

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  buildAnthropicMessages(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	startTime := time.Now()
	message, err := client.Messages.New(ctx, params)
	duration := time.Since(startTime)

	if err != nil {
		fiberlog.Warnf("provider %s request failed after %v: %v", a.cfg.Name, duration, err)
		return nil, a.classify(err)
	}

	content := collectAnthropicText(message)
	if content == "" {
		return nil, models.NewFatalError(a.cfg.Name, "response contained no text content", nil)
	}

	fiberlog.Debugf("provider %s request completed in %v - usage: input:%d, output:%d",
		a.cfg.Name, duration, message.Usage.InputTokens, message.Usage.OutputTokens)

	return &models.ChatResult{
		Content:  content,
		Provider: a.cfg.Name,
		Model:    string(message.Model),
		Usage: models.Usage{
			PromptTokens:   message.Usage.InputTokens,
			ResponseTokens: message.Usage.OutputTokens,
		},
	}, nil
}

func (a *AnthropicAdapter) classify(err error) *models.AppError {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return classifyStatus(a.cfg.Name, apierr.StatusCode, err)
	}
	return models.NewTransientError(a.cfg.Name, err)
}

// buildAnthropicMessages converts conversation turns into message params.
// System content is handled separately by the caller.
func buildAnthropicMessages(turns []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// collectAnthropicText concatenates the text blocks of a message response
func collectAnthropicText(message *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
