package clientcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateRunsFactoryOnce(t *testing.T) {
	cache := NewCache[*int]()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.GetOrCreate("openai:k1", func() (*int, error) {
				n := int(calls.Add(1))
				return &n, nil
			})
			assert.NoError(t, err)
			assert.NotNil(t, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrCreateDoesNotCacheErrors(t *testing.T) {
	cache := NewCache[*int]()

	_, err := cache.GetOrCreate("bad", func() (*int, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	n := 7
	v, err := cache.GetOrCreate("bad", func() (*int, error) {
		return &n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, &n, v)
}

func TestDelete(t *testing.T) {
	cache := NewCache[int]()

	_, err := cache.GetOrCreate("k", func() (int, error) { return 1, nil })
	require.NoError(t, err)

	cache.Delete("k")

	v, err := cache.GetOrCreate("k", func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
