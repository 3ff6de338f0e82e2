package gateway

import (
	"sync"

	"github.com/halcyon-labs/persona-proxy/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Registry holds the per-provider ordered credential lists and the current
// key index for each. It is built once from configuration; the only mutation
// afterward is index rotation.
type Registry struct {
	mu    sync.RWMutex
	order []string
	state map[string]*providerState
}

type providerState struct {
	config models.ProviderConfig
	keys   []string
	index  int
}

// NewRegistry builds a registry from providers in priority order. At least
// one provider must carry a credential or construction fails.
func NewRegistry(providers []models.ProviderConfig) (*Registry, error) {
	r := &Registry{
		state: make(map[string]*providerState, len(providers)),
	}

	configured := false
	for _, cfg := range providers {
		keys := cfg.Keys()
		if len(keys) > 0 {
			configured = true
		}
		r.order = append(r.order, cfg.Name)
		r.state[cfg.Name] = &providerState{config: cfg, keys: keys}
	}

	if !configured {
		return nil, models.NewConfigurationError("no provider has any configured credentials")
	}

	return r, nil
}

// Has reports whether the provider is known to the registry at all
func (r *Registry) Has(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.state[provider]
	return ok
}

// IsAvailable reports whether the provider has at least one credential
func (r *Registry) IsAvailable(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.state[provider]
	return ok && len(st.keys) > 0
}

// CurrentKey returns the credential at the provider's current index
func (r *Registry) CurrentKey(provider string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.state[provider]
	if !ok || len(st.keys) == 0 {
		return "", models.NewProviderUnavailableError(provider)
	}
	return st.keys[st.index], nil
}

// Rotate advances the provider's key index cyclically and returns the new
// index. Providers with zero or one key are left untouched. Rotation never
// grows or shrinks the key list; the index stays in bounds under concurrent
// rotations because the whole advance happens under the lock.
func (r *Registry) Rotate(provider string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.state[provider]
	if !ok || len(st.keys) <= 1 {
		return 0
	}

	st.index = (st.index + 1) % len(st.keys)
	fiberlog.Infof("registry: rotated %s credentials to index %d/%d", provider, st.index, len(st.keys))
	return st.index
}

// KeyIndex returns the provider's current key index, for diagnostics
func (r *Registry) KeyIndex(provider string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.state[provider]; ok {
		return st.index
	}
	return 0
}

// KeyCount returns how many credentials the provider carries
func (r *Registry) KeyCount(provider string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.state[provider]; ok {
		return len(st.keys)
	}
	return 0
}

// Config returns the static configuration for a provider
func (r *Registry) Config(provider string) (models.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.state[provider]; ok {
		return st.config, true
	}
	return models.ProviderConfig{}, false
}

// DefaultProvider returns the first provider in priority order with at least
// one credential. Construction guarantees one exists; the error path covers
// callers composing registries by hand.
func (r *Registry) DefaultProvider() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if len(r.state[name].keys) > 0 {
			return name, nil
		}
	}
	return "", models.NewConfigurationError("no provider has any configured credentials")
}

// Priority returns the provider names in configured priority order
func (r *Registry) Priority() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Available returns the provider -> configured mapping used by health and
// diagnostic callers. The mapping reflects construction-time configuration
// and never changes between calls.
func (r *Registry) Available() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.order))
	for name, st := range r.state {
		out[name] = len(st.keys) > 0
	}
	return out
}
