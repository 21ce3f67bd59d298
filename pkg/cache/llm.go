package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/core"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// CachedLLM decorates an LLM with completion caching. Identical prompts with
// identical generation options hit the cache instead of the provider, which
// makes repeated adaptation runs over the same sample set cheap.
type CachedLLM struct {
	core.LLM
	cache Cache
	keys  *KeyGenerator
	ttl   time.Duration
}

// CachedLLMOption configures a CachedLLM.
type CachedLLMOption func(*CachedLLM)

// WithTTL sets the TTL applied to cached completions (0 = cache default).
func WithTTL(ttl time.Duration) CachedLLMOption {
	return func(c *CachedLLM) {
		c.ttl = ttl
	}
}

// WithKeyPrefix sets the cache key prefix.
func WithKeyPrefix(prefix string) CachedLLMOption {
	return func(c *CachedLLM) {
		c.keys = NewKeyGenerator(prefix)
	}
}

// NewCachedLLM wraps base with completion caching backed by cache.
func NewCachedLLM(base core.LLM, cache Cache, opts ...CachedLLMOption) *CachedLLM {
	c := &CachedLLM{
		LLM:   base,
		cache: cache,
		keys:  NewKeyGenerator(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unwrap returns the underlying LLM.
func (c *CachedLLM) Unwrap() core.LLM {
	return c.LLM
}

// Generate returns a cached completion when one exists, otherwise calls the
// underlying LLM and stores the result. Cache failures degrade to a plain
// provider call, never to a request failure.
func (c *CachedLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	logger := logging.GetLogger()
	key := c.keys.GenerateKey(c.ModelID(), prompt, options)

	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var resp core.LLMResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			logger.Debug(ctx, "cache hit for model %s", c.ModelID())
			return &resp, nil
		}
		// Corrupt entry: drop it and fall through to the provider
		_ = c.cache.Delete(ctx, key)
	} else if err != nil {
		logger.Warn(ctx, "cache get failed: %v", err)
	}

	resp, err := c.LLM.Generate(ctx, prompt, options...)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			logger.Warn(ctx, "cache set failed: %v", err)
		}
	}

	return resp, nil
}

// GenerateWithJSON caches the decoded JSON object under a separate key space.
func (c *CachedLLM) GenerateWithJSON(ctx context.Context, prompt string, options ...core.GenerateOption) (map[string]interface{}, error) {
	logger := logging.GetLogger()
	key := c.keys.GenerateJSONKey(c.ModelID(), prompt, options)

	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var result map[string]interface{}
		if err := json.Unmarshal(data, &result); err == nil {
			logger.Debug(ctx, "cache hit for model %s (json)", c.ModelID())
			return result, nil
		}
		_ = c.cache.Delete(ctx, key)
	} else if err != nil {
		logger.Warn(ctx, "cache get failed: %v", err)
	}

	result, err := c.LLM.GenerateWithJSON(ctx, prompt, options...)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			logger.Warn(ctx, "cache set failed: %v", err)
		}
	}

	return result, nil
}
