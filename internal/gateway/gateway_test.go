package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/halcyon-labs/persona-proxy/internal/models"
	"github.com/halcyon-labs/persona-proxy/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly on Sleep and records requested delays
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

// scriptedAdapter pops one response per call and records per-key call counts
type scriptedAdapter struct {
	mu       sync.Mutex
	name     string
	script   []func() (*models.ChatResult, error)
	calls    int
	keysSeen []string
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Complete(_ context.Context, apiKey string, _ *providers.Request) (*models.ChatResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.keysSeen = append(a.keysSeen, apiKey)
	if len(a.script) == 0 {
		return nil, models.NewFatalError(a.name, "script exhausted", nil)
	}
	next := a.script[0]
	a.script = a.script[1:]
	return next()
}

func succeed(name, content string) func() (*models.ChatResult, error) {
	return func() (*models.ChatResult, error) {
		return &models.ChatResult{Content: content, Provider: name, Model: "m"}, nil
	}
}

func fail(err error) func() (*models.ChatResult, error) {
	return func() (*models.ChatResult, error) { return nil, err }
}

func repeat(f func() (*models.ChatResult, error), n int) []func() (*models.ChatResult, error) {
	out := make([]func() (*models.ChatResult, error), n)
	for i := range out {
		out[i] = f
	}
	return out
}

func newTestGateway(t *testing.T, cfgs []models.ProviderConfig, adapters map[string]providers.Adapter) (*Gateway, *Registry, *fakeClock) {
	t.Helper()
	registry, err := NewRegistry(cfgs)
	require.NoError(t, err)

	clock := newFakeClock()
	limiter := NewRateLimiter(5, 0, clock)
	gw := New(registry, limiter, RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}, adapters).WithClock(clock)
	return gw, registry, clock
}

func userMsg(content string) []models.Message {
	return []models.Message{{Role: models.RoleUser, Content: content}}
}

func defaultOpts() models.RequestOptions {
	return models.RequestOptions{MaxTokens: 256, Temperature: 1}
}

func TestChatRateLimitRotatesThenSucceeds(t *testing.T) {
	sentient := &scriptedAdapter{name: "sentient", script: []func() (*models.ChatResult, error){
		fail(models.NewRateLimitError("sentient", nil)),
		succeed("sentient", "hi"),
	}}
	openai := &scriptedAdapter{name: "openai"}

	gw, registry, _ := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1,k2", DefaultModel: "dobby"},
		{Name: "openai", APIKeys: "k3", DefaultModel: "gpt-4o-mini"},
	}, map[string]providers.Adapter{"sentient": sentient, "openai": openai})

	result, err := gw.Chat(context.Background(), userMsg("hello"), defaultOpts())
	require.NoError(t, err)

	assert.Equal(t, "hi", result.Content)
	assert.Equal(t, "sentient", result.Provider)
	assert.Equal(t, 2, sentient.calls)
	assert.Equal(t, []string{"k1", "k2"}, sentient.keysSeen)
	assert.Equal(t, 1, registry.KeyIndex("sentient"))
	assert.Equal(t, 0, openai.calls, "no fallback call expected")
}

func TestChatTransientExhaustionFallsBackThenFails(t *testing.T) {
	transient := models.NewTransientError("sentient", context.DeadlineExceeded)
	sentient := &scriptedAdapter{name: "sentient", script: repeat(fail(transient), 3)}
	openai := &scriptedAdapter{name: "openai", script: []func() (*models.ChatResult, error){
		fail(models.NewTransientError("openai", nil)),
	}}

	gw, _, clock := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1", DefaultModel: "dobby"},
		{Name: "openai", APIKeys: "k3", DefaultModel: "gpt-4o-mini"},
	}, map[string]providers.Adapter{"sentient": sentient, "openai": openai})

	opts := defaultOpts()
	opts.MaxRetries = 3
	_, err := gw.Chat(context.Background(), userMsg("hello"), opts)

	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrorTypeAllProvidersFailed, appErr.Type)
	assert.Equal(t, "openai", appErr.Provider, "terminal error names the last provider tried")

	assert.Equal(t, 3, sentient.calls, "exactly maxRetries calls to the primary")
	assert.Equal(t, 1, openai.calls, "exactly one fallback call per alternate")
	// Backoff between attempts 1-2 and 2-3, doubling from the initial delay
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.sleeps)
}

func TestChatFatalAbortsRetriesAndFallsBack(t *testing.T) {
	sentient := &scriptedAdapter{name: "sentient", script: []func() (*models.ChatResult, error){
		fail(models.NewFatalError("sentient", "bad request", nil)),
	}}
	openai := &scriptedAdapter{name: "openai", script: []func() (*models.ChatResult, error){
		succeed("openai", "rescued"),
	}}

	gw, _, clock := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1", DefaultModel: "dobby"},
		{Name: "openai", APIKeys: "k3", DefaultModel: "gpt-4o-mini"},
	}, map[string]providers.Adapter{"sentient": sentient, "openai": openai})

	opts := defaultOpts()
	opts.MaxRetries = 3
	result, err := gw.Chat(context.Background(), userMsg("hello"), opts)
	require.NoError(t, err)

	assert.Equal(t, "rescued", result.Content)
	assert.Equal(t, 1, sentient.calls, "fatal error must not consume remaining retries")
	assert.Equal(t, 1, openai.calls)
	assert.Empty(t, clock.sleeps, "fatal errors never back off")
}

func TestChatKeyRotationCyclesAllKeys(t *testing.T) {
	const keyCount = 3
	auth := models.NewAuthError("sentient", 401, nil)
	sentient := &scriptedAdapter{name: "sentient", script: repeat(fail(auth), keyCount)}

	gw, registry, _ := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1,k2,k3", DefaultModel: "dobby"},
	}, map[string]providers.Adapter{"sentient": sentient})

	opts := defaultOpts()
	opts.MaxRetries = keyCount
	_, err := gw.Chat(context.Background(), userMsg("hello"), opts)
	require.Error(t, err)

	// K consecutive auth failures cycle through all keys exactly once
	assert.Equal(t, []string{"k1", "k2", "k3"}, sentient.keysSeen)
	assert.Equal(t, 0, registry.KeyIndex("sentient"), "index wraps back to the start")
}

func TestChatExplicitUnknownProviderFailsFast(t *testing.T) {
	sentient := &scriptedAdapter{name: "sentient", script: []func() (*models.ChatResult, error){succeed("sentient", "hi")}}

	gw, _, _ := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1", DefaultModel: "dobby"},
	}, map[string]providers.Adapter{"sentient": sentient})

	opts := defaultOpts()
	opts.Provider = "mistral"
	_, err := gw.Chat(context.Background(), userMsg("hello"), opts)

	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrorTypeProviderUnavailable, appErr.Type)
	assert.Equal(t, 0, sentient.calls, "no retry and no fallback on explicit unknown provider")
}

func TestChatExplicitKeylessProviderFailsFast(t *testing.T) {
	gw, _, _ := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1", DefaultModel: "dobby"},
		{Name: "anthropic", DefaultModel: "claude-sonnet-4-20250514"},
	}, map[string]providers.Adapter{})

	opts := defaultOpts()
	opts.Provider = "anthropic"
	_, err := gw.Chat(context.Background(), userMsg("hello"), opts)

	require.Error(t, err)
	appErr := err.(*models.AppError)
	assert.Equal(t, models.ErrorTypeProviderUnavailable, appErr.Type)
}

func TestChatValidation(t *testing.T) {
	gw, _, _ := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1", DefaultModel: "dobby"},
	}, map[string]providers.Adapter{})

	tests := []struct {
		name     string
		messages []models.Message
		opts     models.RequestOptions
	}{
		{"empty messages", nil, defaultOpts()},
		{"zero max tokens", userMsg("hi"), models.RequestOptions{Temperature: 1}},
		{"temperature too high", userMsg("hi"), models.RequestOptions{MaxTokens: 10, Temperature: 2.5}},
		{"negative retries", userMsg("hi"), models.RequestOptions{MaxTokens: 10, Temperature: 1, MaxRetries: -1}},
		{"system not first", []models.Message{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleSystem, Content: "be nice"},
		}, defaultOpts()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.Chat(context.Background(), tt.messages, tt.opts)
			require.Error(t, err)
			appErr, ok := err.(*models.AppError)
			require.True(t, ok)
			assert.Equal(t, models.ErrorTypeValidation, appErr.Type)
		})
	}
}

func TestChatSkipsKeylessProvidersDuringFallback(t *testing.T) {
	sentient := &scriptedAdapter{name: "sentient", script: []func() (*models.ChatResult, error){
		fail(models.NewFatalError("sentient", "nope", nil)),
	}}
	gemini := &scriptedAdapter{name: "gemini", script: []func() (*models.ChatResult, error){
		succeed("gemini", "from gemini"),
	}}

	gw, _, _ := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1", DefaultModel: "dobby"},
		{Name: "anthropic", DefaultModel: "claude-sonnet-4-20250514"}, // no keys
		{Name: "gemini", APIKeys: "k9", DefaultModel: "gemini-2.0-flash"},
	}, map[string]providers.Adapter{"sentient": sentient, "gemini": gemini})

	result, err := gw.Chat(context.Background(), userMsg("hello"), defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, "from gemini", result.Content)
}

func TestAvailableProvidersIsIdempotent(t *testing.T) {
	gw, _, _ := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1", DefaultModel: "dobby"},
		{Name: "openai", DefaultModel: "gpt-4o-mini"},
	}, map[string]providers.Adapter{})

	first := gw.AvailableProviders()
	second := gw.AvailableProviders()

	assert.Equal(t, map[string]bool{"sentient": true, "openai": false}, first)
	assert.Equal(t, first, second)
}

func TestChatDefaultModelFromProviderConfig(t *testing.T) {
	var seenModel string
	adapter := &captureAdapter{name: "sentient", onComplete: func(req *providers.Request) {
		seenModel = req.Model
	}}

	gw, _, _ := newTestGateway(t, []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1", DefaultModel: "dobby-70b"},
	}, map[string]providers.Adapter{"sentient": adapter})

	_, err := gw.Chat(context.Background(), userMsg("hello"), defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, "dobby-70b", seenModel)
}

type captureAdapter struct {
	name       string
	onComplete func(*providers.Request)
}

func (a *captureAdapter) Name() string { return a.name }

func (a *captureAdapter) Complete(_ context.Context, _ string, req *providers.Request) (*models.ChatResult, error) {
	if a.onComplete != nil {
		a.onComplete(req)
	}
	return &models.ChatResult{Content: "ok", Provider: a.name, Model: req.Model}, nil
}
