package providers

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/halcyon-labs/persona-proxy/internal/models"
	"github.com/halcyon-labs/persona-proxy/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/openai/openai-go/v2"
	openaiOption "github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// OpenAIAdapter speaks the OpenAI chat completions wire format. It serves
// both api.openai.com and any compatible endpoint configured with a custom
// base URL, so several named providers can share this implementation.
type OpenAIAdapter struct {
	cfg         models.ProviderConfig
	clientCache *clientcache.Cache[*openai.Client]
}

// NewOpenAIAdapter creates an adapter bound to one provider entry
func NewOpenAIAdapter(cfg models.ProviderConfig) *OpenAIAdapter {
	return &OpenAIAdapter{
		cfg:         cfg,
		clientCache: clientcache.NewCache[*openai.Client](),
	}
}

// Name returns the configured provider name
func (a *OpenAIAdapter) Name() string {
	return a.cfg.Name
}

// createClient creates or retrieves a cached client for the given API key
func (a *OpenAIAdapter) createClient(apiKey string) *openai.Client {
	keyHash := sha256.Sum256([]byte(apiKey + "\x00" + a.cfg.BaseURL))
	cacheKey := fmt.Sprintf("%s:%x", a.cfg.Name, keyHash[:16])

	client, err := a.clientCache.GetOrCreate(cacheKey, func() (*openai.Client, error) {
		fiberlog.Debugf("Creating new OpenAI client for %s (key hash: %x)", a.cfg.Name, keyHash[:4])
		return a.buildClient(apiKey), nil
	})
	if err != nil {
		// buildClient never fails; fall through to an uncached client
		return a.buildClient(apiKey)
	}
	return client
}

func (a *OpenAIAdapter) buildClient(apiKey string) *openai.Client {
	opts := []openaiOption.RequestOption{
		openaiOption.WithAPIKey(apiKey),
		// Retry decisions belong to the caller; SDK retries would skew its
		// call accounting.
		openaiOption.WithMaxRetries(0),
	}

	if a.cfg.BaseURL != "" {
		opts = append(opts, openaiOption.WithBaseURL(a.cfg.BaseURL))
	}

	for key, value := range a.cfg.Headers {
		opts = append(opts, openaiOption.WithHeader(key, value))
	}

	if a.cfg.TimeoutMs > 0 {
		timeout := time.Duration(a.cfg.TimeoutMs) * time.Millisecond
		opts = append(opts, openaiOption.WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	client := openai.NewClient(opts...)
	return &client
}

// Complete sends one chat completion request and normalizes the response
func (a *OpenAIAdapter) Complete(ctx context.Context, apiKey string, req *Request) (*models.ChatResult, error) {
	client := a.createClient(apiKey)

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: buildOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	startTime := time.Now()
	resp, err := client.Chat.Completions.New(ctx, params)
	duration := time.Since(startTime)

	if err != nil {
		fiberlog.Warnf("provider %s request failed after %v: %v", a.cfg.Name, duration, err)
		return nil, a.classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, models.NewFatalError(a.cfg.Name, "response contained no choices", nil)
	}

	fiberlog.Debugf("provider %s request completed in %v - usage: prompt:%d, completion:%d",
		a.cfg.Name, duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return &models.ChatResult{
		Content:  resp.Choices[0].Message.Content,
		Provider: a.cfg.Name,
		Model:    resp.Model,
		Usage: models.Usage{
			PromptTokens:   resp.Usage.PromptTokens,
			ResponseTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (a *OpenAIAdapter) classify(err error) *models.AppError {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return classifyStatus(a.cfg.Name, apierr.StatusCode, err)
	}
	// No HTTP status means the request never completed: timeout, connection
	// failure or cancellation.
	return models.NewTransientError(a.cfg.Name, err)
}

// buildOpenAIMessages converts canonical messages into the SDK union type
func buildOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
