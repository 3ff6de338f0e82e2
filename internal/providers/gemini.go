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

	fiberlog "github.com/gofiber/fiber/v2/log"
	"google.golang.org/genai"
)

// GeminiAdapter speaks the Gemini GenerateContent API. Roles are remapped on
// the way in: assistant turns become model turns, and system content moves to
// the system instruction field.
type GeminiAdapter struct {
	cfg         models.ProviderConfig
	clientCache *clientcache.Cache[*genai.Client]
}

// NewGeminiAdapter creates an adapter bound to one provider entry
func NewGeminiAdapter(cfg models.ProviderConfig) *GeminiAdapter {
	return &GeminiAdapter{
		cfg:         cfg,
		clientCache: clientcache.NewCache[*genai.Client](),
	}
}

// Name returns the configured provider name
func (a *GeminiAdapter) Name() string {
	return a.cfg.Name
}

func (a *GeminiAdapter) createClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	keyHash := sha256.Sum256([]byte(apiKey + "\x00" + a.cfg.BaseURL))
	cacheKey := fmt.Sprintf("%s:%x", a.cfg.Name, keyHash[:16])

	return a.clientCache.GetOrCreate(cacheKey, func() (*genai.Client, error) {
		fiberlog.Debugf("Creating new Gemini client for %s (key hash: %x)", a.cfg.Name, keyHash[:4])
		return a.buildClient(ctx, apiKey)
	})
}

func (a *GeminiAdapter) buildClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if a.cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = a.cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// Complete sends one generate request and normalizes the response
func (a *GeminiAdapter) Complete(ctx context.Context, apiKey string, req *Request) (*models.ChatResult, error) {
	client, err := a.createClient(ctx, apiKey)
	if err != nil {
		return nil, models.NewTransientError(a.cfg.Name, err)
	}

	system, turns := SplitSystem(req.Messages)
	contents := buildGeminiContents(turns)

	genConfig := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if system != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	startTime := time.Now()
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, genConfig)
	duration := time.Since(startTime)

	if err != nil {
		fiberlog.Warnf("provider %s request failed after %v: %v", a.cfg.Name, duration, err)
		return nil, a.classify(err)
	}

	content := collectGeminiText(resp)
	if content == "" {
		return nil, models.NewFatalError(a.cfg.Name, "response contained no text content", nil)
	}

	result := &models.ChatResult{
		Content:  content,
		Provider: a.cfg.Name,
		Model:    req.Model,
	}
	if resp.UsageMetadata != nil {
		result.Usage = models.Usage{
			PromptTokens:   int64(resp.UsageMetadata.PromptTokenCount),
			ResponseTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	fiberlog.Debugf("provider %s request completed in %v - usage: prompt:%d, response:%d",
		a.cfg.Name, duration, result.Usage.PromptTokens, result.Usage.ResponseTokens)
	return result, nil
}

func (a *GeminiAdapter) classify(err error) *models.AppError {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return classifyStatus(a.cfg.Name, apierr.Code, err)
	}
	return models.NewTransientError(a.cfg.Name, err)
}

// buildGeminiContents converts conversation turns into Gemini contents.
// System content is handled separately by the caller.
func buildGeminiContents(turns []models.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		role := genai.RoleUser
		if msg.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return out
}

// collectGeminiText concatenates the text parts of the first candidate
func collectGeminiText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}
