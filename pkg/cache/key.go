package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/XiaoConstantine/ace-go/pkg/core"
)

// KeyGenerator generates cache keys for LLM requests.
type KeyGenerator struct {
	prefix string
}

// NewKeyGenerator creates a new cache key generator.
func NewKeyGenerator(prefix string) *KeyGenerator {
	if prefix == "" {
		prefix = "ace_"
	}
	return &KeyGenerator{prefix: prefix}
}

// GenerateKey creates a deterministic cache key from LLM request parameters.
func (g *KeyGenerator) GenerateKey(modelID string, prompt string, options []core.GenerateOption) string {
	opts := g.mergeOptions(options)
	keyData := g.createKeyData(modelID, prompt, opts)

	h := sha256.New()
	h.Write([]byte(keyData))
	hash := hex.EncodeToString(h.Sum(nil))

	// Truncated hash keeps keys readable in the sqlite table
	return fmt.Sprintf("%s%s_%s", g.prefix, modelID, hash[:16])
}

// GenerateJSONKey creates a cache key for JSON-decoded requests. Kept
// distinct from GenerateKey so text and JSON completions never collide.
func (g *KeyGenerator) GenerateJSONKey(modelID string, prompt string, options []core.GenerateOption) string {
	opts := g.mergeOptions(options)
	keyData := g.createKeyData(modelID, prompt, opts)

	h := sha256.New()
	h.Write([]byte(keyData))
	hash := hex.EncodeToString(h.Sum(nil))

	return fmt.Sprintf("%sjson_%s_%s", g.prefix, modelID, hash[:16])
}

// mergeOptions combines multiple generate options into a single config.
func (g *KeyGenerator) mergeOptions(options []core.GenerateOption) *core.GenerateOptions {
	config := core.NewGenerateOptions()
	for _, opt := range options {
		opt(config)
	}
	return config
}

// createKeyData creates a normalized string representation of request parameters.
func (g *KeyGenerator) createKeyData(modelID string, prompt string, config *core.GenerateOptions) string {
	normalizedPrompt := strings.TrimSpace(prompt)
	params := g.optionsToString(config)
	return fmt.Sprintf("%s|%s|%s", modelID, normalizedPrompt, params)
}

// optionsToString converts generate config to a deterministic string.
func (g *KeyGenerator) optionsToString(config *core.GenerateOptions) string {
	var params []string

	params = append(params, fmt.Sprintf("temp:%.2f", config.Temperature))
	params = append(params, fmt.Sprintf("max:%d", config.MaxTokens))

	if config.TopP > 0 {
		params = append(params, fmt.Sprintf("topp:%.2f", config.TopP))
	}

	if config.PresencePenalty != 0 {
		params = append(params, fmt.Sprintf("presence:%.2f", config.PresencePenalty))
	}

	if config.FrequencyPenalty != 0 {
		params = append(params, fmt.Sprintf("frequency:%.2f", config.FrequencyPenalty))
	}

	if len(config.Stop) > 0 {
		stops := make([]string, len(config.Stop))
		copy(stops, config.Stop)
		sort.Strings(stops)
		params = append(params, fmt.Sprintf("stop:%s", strings.Join(stops, ",")))
	}

	sort.Strings(params)

	return strings.Join(params, "|")
}
