package gateway

import (
	"sync"
	"testing"

	"github.com/halcyon-labs/persona-proxy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProviders() []models.ProviderConfig {
	return []models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1,k2", DefaultModel: "dobby"},
		{Name: "openai", APIKeys: "k3", DefaultModel: "gpt-4o-mini"},
		{Name: "anthropic", DefaultModel: "claude-sonnet-4-20250514"},
	}
}

func TestNewRegistryRequiresAtLeastOneKey(t *testing.T) {
	_, err := NewRegistry([]models.ProviderConfig{
		{Name: "sentient", DefaultModel: "dobby"},
		{Name: "openai", DefaultModel: "gpt-4o-mini"},
	})

	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrorTypeConfiguration, appErr.Type)
}

func TestRotateCyclesWithoutRepeating(t *testing.T) {
	r, err := NewRegistry(testProviders())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for range r.KeyCount("sentient") {
		key, err := r.CurrentKey("sentient")
		require.NoError(t, err)
		assert.False(t, seen[key], "key %s repeated before full cycle", key)
		seen[key] = true
		r.Rotate("sentient")
	}

	// Back at the start after a full cycle
	key, err := r.CurrentKey("sentient")
	require.NoError(t, err)
	assert.Equal(t, "k1", key)
}

func TestRotateSingleKeyIsNoop(t *testing.T) {
	r, err := NewRegistry(testProviders())
	require.NoError(t, err)

	r.Rotate("openai")
	assert.Equal(t, 0, r.KeyIndex("openai"))
}

func TestCurrentKeyUnavailableProvider(t *testing.T) {
	r, err := NewRegistry(testProviders())
	require.NoError(t, err)

	_, err = r.CurrentKey("anthropic")
	require.Error(t, err)
	appErr := err.(*models.AppError)
	assert.Equal(t, models.ErrorTypeProviderUnavailable, appErr.Type)

	_, err = r.CurrentKey("unknown")
	require.Error(t, err)
}

func TestDefaultProviderFollowsPriorityOrder(t *testing.T) {
	r, err := NewRegistry([]models.ProviderConfig{
		{Name: "sentient", DefaultModel: "dobby"}, // no keys
		{Name: "openai", APIKeys: "k3", DefaultModel: "gpt-4o-mini"},
	})
	require.NoError(t, err)

	name, err := r.DefaultProvider()
	require.NoError(t, err)
	assert.Equal(t, "openai", name)
}

func TestAvailableMapping(t *testing.T) {
	r, err := NewRegistry(testProviders())
	require.NoError(t, err)

	want := map[string]bool{"sentient": true, "openai": true, "anthropic": false}
	assert.Equal(t, want, r.Available())
	assert.Equal(t, want, r.Available(), "repeat reads are identical")
}

func TestConcurrentRotationStaysInBounds(t *testing.T) {
	r, err := NewRegistry([]models.ProviderConfig{
		{Name: "sentient", APIKeys: "k1,k2,k3", DefaultModel: "dobby"},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx := r.Rotate("sentient")
			assert.GreaterOrEqual(t, idx, 0)
			assert.Less(t, idx, 3)
		}()
	}
	wg.Wait()

	key, err := r.CurrentKey("sentient")
	require.NoError(t, err)
	assert.Contains(t, []string{"k1", "k2", "k3"}, key)
}
