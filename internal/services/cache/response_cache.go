package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/halcyon-labs/persona-proxy/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "persona-proxy:chat:"

// ResponseCache stores completed chat results keyed by the exact request
// shape. Identical prompts with identical options reuse the same answer
// until the entry expires.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a response cache over an existing redis client
func New(client *redis.Client, ttl time.Duration) *ResponseCache {
	return &ResponseCache{client: client, ttl: ttl}
}

// cacheKey hashes messages and the options that change the answer. Provider
// and model are part of the key: a different backend may answer differently.
func cacheKey(messages []models.Message, opts models.RequestOptions) (string, error) {
	payload, err := json.Marshal(struct {
		Messages    []models.Message `json:"messages"`
		Provider    string           `json:"provider"`
		Model       string           `json:"model"`
		MaxTokens   int              `json:"max_tokens"`
		Temperature float64          `json:"temperature"`
	}{messages, opts.Provider, opts.Model, opts.MaxTokens, opts.Temperature})
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(payload)
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16]), nil
}

// Get returns the cached result for this request, or nil on a miss. Cache
// failures degrade to a miss so the chat path never depends on redis health.
func (c *ResponseCache) Get(ctx context.Context, messages []models.Message, opts models.RequestOptions) *models.ChatResult {
	key, err := cacheKey(messages, opts)
	if err != nil {
		return nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			fiberlog.Warnf("cache: get failed: %v", err)
		}
		return nil
	}

	var result models.ChatResult
	if err := json.Unmarshal(data, &result); err != nil {
		fiberlog.Warnf("cache: dropping undecodable entry %s: %v", key, err)
		c.client.Del(ctx, key)
		return nil
	}

	fiberlog.Debugf("cache: hit %s", key)
	return &result
}

// Set stores a successful result
func (c *ResponseCache) Set(ctx context.Context, messages []models.Message, opts models.RequestOptions, result *models.ChatResult) {
	key, err := cacheKey(messages, opts)
	if err != nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		fiberlog.Warnf("cache: set failed: %v", err)
	}
}
