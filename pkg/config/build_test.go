package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/pkg/cache"
	"github.com/XiaoConstantine/ace-go/pkg/core"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

func ollamaConfig() *Config {
	cfg := Default()
	cfg.LLM = LLMConfig{Provider: "ollama", ModelID: "llama3.2"}
	cfg.Playbook.Path = ""
	return cfg
}

func TestQualifiedModelID(t *testing.T) {
	tests := []struct {
		name     string
		llm      LLMConfig
		expected core.ModelID
	}{
		{"Anthropic bare model", LLMConfig{Provider: "anthropic", ModelID: "claude-sonnet-4-5"}, "anthropic:claude-sonnet-4-5"},
		{"Already qualified", LLMConfig{Provider: "ollama", ModelID: "ollama:llama3.2"}, "ollama:llama3.2"},
		{"Ollama bare model", LLMConfig{Provider: "ollama", ModelID: "llama3.2"}, "ollama:llama3.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.llm.QualifiedModelID())
		})
	}
}

func TestBuildLLM_CacheWrapping(t *testing.T) {
	t.Run("Enabled cache wraps the provider", func(t *testing.T) {
		cfg := ollamaConfig()
		cfg.Cache = CacheConfig{Enabled: true, Backend: "memory"}

		llm, err := cfg.BuildLLM()
		require.NoError(t, err)

		cached, ok := llm.(*cache.CachedLLM)
		require.True(t, ok, "expected the cache decorator, got %T", llm)
		assert.NotNil(t, cached.Unwrap())
	})

	t.Run("Disabled cache returns the bare chain", func(t *testing.T) {
		cfg := ollamaConfig()
		cfg.Cache.Enabled = false

		llm, err := cfg.BuildLLM()
		require.NoError(t, err)

		_, ok := llm.(*cache.CachedLLM)
		assert.False(t, ok)
	})

	t.Run("Missing API key fails for anthropic", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := Default()
		cfg.LLM.APIKeyEnv = "ACE_NO_SUCH_KEY_VAR"

		llm, err := cfg.BuildLLM()
		assert.Error(t, err)
		assert.Nil(t, llm)
		assert.True(t, errors.HasCode(err, errors.InvalidInput))
	})
}

func TestMergerConfigMapping(t *testing.T) {
	cfg := Default()
	cfg.Playbook.MaxBullets = 40
	cfg.Playbook.SimilarityThreshold = 0.7
	cfg.Playbook.PruneMargin = 3
	cfg.Playbook.MinEvidence = 8

	mc := cfg.MergerConfig()
	assert.Equal(t, 40, mc.MaxBullets)
	assert.Equal(t, 0.7, mc.SimilarityThreshold)
	assert.Equal(t, 3, mc.PruneMargin)
	assert.Equal(t, 8, mc.MinEvidence)

	t.Run("Unset thresholds keep defaults", func(t *testing.T) {
		cfg := Default()
		def := playbook.DefaultMergerConfig()

		mc := cfg.MergerConfig()
		assert.Equal(t, cfg.Playbook.MaxBullets, mc.MaxBullets)
		assert.Equal(t, def.SimilarityThreshold, mc.SimilarityThreshold)
		assert.Equal(t, def.PruneMargin, mc.PruneMargin)
		assert.Equal(t, def.MinEvidence, mc.MinEvidence)
	})

	t.Run("Explicit zero max_bullets disables maintenance", func(t *testing.T) {
		cfg := Default()
		cfg.Playbook.MaxBullets = 0
		assert.Equal(t, 0, cfg.MergerConfig().MaxBullets)
	})
}

func TestLoadPlaybook(t *testing.T) {
	t.Run("Empty path starts empty", func(t *testing.T) {
		cfg := Default()
		cfg.Playbook.Path = ""

		pb, err := cfg.LoadPlaybook()
		require.NoError(t, err)
		assert.Equal(t, 0, pb.Len())
	})

	t.Run("Missing file starts empty", func(t *testing.T) {
		cfg := Default()
		cfg.Playbook.Path = filepath.Join(t.TempDir(), "absent.json")

		pb, err := cfg.LoadPlaybook()
		require.NoError(t, err)
		assert.Equal(t, 0, pb.Len())
	})

	t.Run("Existing snapshot is loaded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playbook.json")
		seed := playbook.New()
		merger := playbook.NewMerger(seed)
		_, err := merger.Apply(context.Background(), &playbook.DeltaBatch{
			Operations: []playbook.DeltaOperation{
				playbook.AddOp("math", "decompose the problem"),
			},
		})
		require.NoError(t, err)
		require.NoError(t, seed.Save(path))

		cfg := Default()
		cfg.Playbook.Path = path

		pb, err := cfg.LoadPlaybook()
		require.NoError(t, err)
		assert.Equal(t, 1, pb.Len())
	})
}

func TestBuildOfflineAdapter(t *testing.T) {
	cfg := ollamaConfig()

	adapter, err := cfg.BuildOfflineAdapter()
	require.NoError(t, err)
	require.NotNil(t, adapter)
	assert.Equal(t, 0, adapter.Playbook().Len())
}

func TestBuildOnlineAdapter_SeedsFromSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playbook.json")
	seed := playbook.New()
	merger := playbook.NewMerger(seed)
	_, err := merger.Apply(context.Background(), &playbook.DeltaBatch{
		Operations: []playbook.DeltaOperation{
			playbook.AddOp("math", "verify by substitution"),
		},
	})
	require.NoError(t, err)
	require.NoError(t, seed.Save(path))

	cfg := ollamaConfig()
	cfg.Playbook.Path = path

	adapter, err := cfg.BuildOnlineAdapter()
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.Playbook().Len())
}

func TestGenerateOptions(t *testing.T) {
	llm := LLMConfig{MaxTokens: 1024, Temperature: 0.2}
	assert.Len(t, llm.GenerateOptions(), 2)

	llm = LLMConfig{}
	assert.Empty(t, llm.GenerateOptions())
}

func TestLogSeverity(t *testing.T) {
	cfg := Default()
	assert.Equal(t, logging.INFO, cfg.LogSeverity())

	cfg.Logging.Level = "DEBUG"
	assert.Equal(t, logging.DEBUG, cfg.LogSeverity())
}
