package gateway

import (
	"context"
	"fmt"

	"github.com/halcyon-labs/persona-proxy/internal/models"
	"github.com/halcyon-labs/persona-proxy/internal/providers"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// State tracks where a chat call is in its retry/fallback lifecycle
type State int

const (
	StateAttempting State = iota
	StateRotating
	StateBackoff
	StateFallback
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "Attempting"
	case StateRotating:
		return "Rotating"
	case StateBackoff:
		return "Backoff"
	case StateFallback:
		return "Fallback"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Gateway is the public entry point for chat calls. It resolves a provider,
// loops attempts with key rotation and backoff, falls back across the
// remaining providers, and returns a normalized result. All dependencies are
// passed in at construction so tests get isolated instances.
type Gateway struct {
	registry *Registry
	limiter  *RateLimiter
	retry    RetryPolicy
	adapters map[string]providers.Adapter
	clock    Clock
}

// New creates a gateway from explicitly constructed collaborators
func New(registry *Registry, limiter *RateLimiter, retry RetryPolicy, adapters map[string]providers.Adapter) *Gateway {
	return &Gateway{
		registry: registry,
		limiter:  limiter,
		retry:    retry,
		adapters: adapters,
		clock:    SystemClock(),
	}
}

// WithClock swaps the clock used for backoff sleeps. Intended for tests.
func (g *Gateway) WithClock(clock Clock) *Gateway {
	g.clock = clock
	return g
}

// AvailableProviders returns the configured-state mapping for diagnostics
func (g *Gateway) AvailableProviders() map[string]bool {
	return g.registry.Available()
}

// Chat runs one chat call to completion: at most opts.MaxRetries calls to
// the resolved provider, then at most one call to each remaining provider in
// priority order. It returns exactly one success or one terminal error.
func (g *Gateway) Chat(ctx context.Context, messages []models.Message, opts models.RequestOptions) (*models.ChatResult, error) {
	if err := models.ValidateMessages(messages); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	primary, err := g.resolveProvider(opts.Provider)
	if err != nil {
		return nil, err
	}

	result, lastProvider, lastErr := g.runPrimary(ctx, primary, messages, opts)
	if result != nil {
		return result, nil
	}

	result, fbProvider, fbErr := g.runFallback(ctx, primary, messages, opts)
	if result != nil {
		return result, nil
	}
	if fbErr != nil {
		lastProvider, lastErr = fbProvider, fbErr
	}

	fiberlog.Errorf("gateway: %s: all providers failed, last error from %s: %v", StateFailed, lastProvider, lastErr)
	return nil, models.NewAllProvidersFailedError(lastProvider, lastErr)
}

// resolveProvider picks the provider for the attempt loop. An explicitly
// requested provider that is unknown or keyless fails fast with no retry and
// no fallback.
func (g *Gateway) resolveProvider(requested string) (string, error) {
	if requested != "" {
		if !g.registry.Has(requested) || !g.registry.IsAvailable(requested) {
			return "", models.NewProviderUnavailableError(requested)
		}
		return requested, nil
	}
	return g.registry.DefaultProvider()
}

// runPrimary drives the bounded attempt loop against the resolved provider.
// It returns a result on success, otherwise the last classified error.
func (g *Gateway) runPrimary(ctx context.Context, provider string, messages []models.Message, opts models.RequestOptions) (*models.ChatResult, string, error) {
	var lastErr *models.AppError

	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		fiberlog.Infof("gateway: %s provider=%s attempt=%d/%d", StateAttempting, provider, attempt+1, opts.MaxRetries)

		result, err := g.dispatch(ctx, provider, messages, opts)
		if err == nil {
			fiberlog.Infof("gateway: %s provider=%s attempt=%d", StateSucceeded, provider, attempt+1)
			return result, provider, nil
		}

		lastErr = models.Classify(provider, err)

		switch lastErr.Type {
		case models.ErrorTypeAuth, models.ErrorTypeRateLimit:
			// Rotate and go straight to the next attempt
			fiberlog.Warnf("gateway: %s provider=%s attempt=%d error=%s", StateRotating, provider, attempt+1, lastErr.Type)
			g.registry.Rotate(provider)

		case models.ErrorTypeTransient:
			if attempt+1 >= opts.MaxRetries {
				continue
			}
			delay := g.retry.Delay(attempt)
			fiberlog.Warnf("gateway: %s provider=%s attempt=%d delay=%s", StateBackoff, provider, attempt+1, delay)
			if err := g.clock.Sleep(ctx, delay); err != nil {
				// Deadline hit during backoff; hand over to fallback with the
				// transient error we were backing off from.
				return nil, provider, lastErr
			}

		default:
			// Fatal: abort the loop without exhausting remaining retries
			fiberlog.Warnf("gateway: %s provider=%s attempt=%d fatal: %v", StateFallback, provider, attempt+1, lastErr)
			return nil, provider, lastErr
		}
	}

	return nil, provider, lastErr
}

// runFallback tries each remaining configured provider once, in priority
// order, and returns the first success.
func (g *Gateway) runFallback(ctx context.Context, exclude string, messages []models.Message, opts models.RequestOptions) (*models.ChatResult, string, error) {
	var (
		lastProvider string
		lastErr      error
	)

	for _, name := range g.registry.Priority() {
		if name == exclude || !g.registry.IsAvailable(name) {
			continue
		}

		fiberlog.Infof("gateway: %s trying provider=%s", StateFallback, name)
		result, err := g.dispatch(ctx, name, messages, opts)
		if err == nil {
			fiberlog.Infof("gateway: %s provider=%s via fallback", StateSucceeded, name)
			return result, name, nil
		}

		lastProvider, lastErr = name, models.Classify(name, err)
		fiberlog.Warnf("gateway: %s provider=%s failed: %v", StateFallback, name, lastErr)
	}

	return nil, lastProvider, lastErr
}

// dispatch performs exactly one adapter call under the shared limiter. The
// concurrency slot is released as soon as the call returns, never held
// across backoff sleeps.
func (g *Gateway) dispatch(ctx context.Context, provider string, messages []models.Message, opts models.RequestOptions) (*models.ChatResult, error) {
	adapter, ok := g.adapters[provider]
	if !ok {
		return nil, models.NewProviderUnavailableError(provider)
	}

	key, err := g.registry.CurrentKey(provider)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		if cfg, ok := g.registry.Config(provider); ok {
			model = cfg.DefaultModel
		}
	}

	if err := g.limiter.Acquire(ctx); err != nil {
		// A deadline while queued counts as a transient failure for retry
		// accounting.
		return nil, models.NewTransientError(provider, err)
	}
	defer g.limiter.Release()

	return adapter.Complete(ctx, key, &providers.Request{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
}
