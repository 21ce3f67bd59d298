package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOptions(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		opts := NewGenerateOptions()
		assert.Equal(t, 8192, opts.MaxTokens)
		assert.Equal(t, 0.5, opts.Temperature)
	})

	t.Run("FunctionalOptions", func(t *testing.T) {
		opts := NewGenerateOptions()
		for _, opt := range []GenerateOption{
			WithMaxTokens(1024),
			WithTemperature(0.0),
			WithTopP(0.9),
			WithPresencePenalty(0.1),
			WithFrequencyPenalty(0.2),
			WithStopSequences("###", "END"),
		} {
			opt(opts)
		}

		assert.Equal(t, 1024, opts.MaxTokens)
		assert.Equal(t, 0.0, opts.Temperature)
		assert.Equal(t, 0.9, opts.TopP)
		assert.Equal(t, 0.1, opts.PresencePenalty)
		assert.Equal(t, 0.2, opts.FrequencyPenalty)
		assert.Equal(t, []string{"###", "END"}, opts.Stop)
	})
}

func TestBaseLLM(t *testing.T) {
	endpoint := &EndpointConfig{
		BaseURL:    "http://localhost:11434",
		TimeoutSec: 5,
	}
	llm := NewBaseLLM("ollama", "ollama:llama3.2", []Capability{CapabilityCompletion, CapabilityChat}, endpoint)

	assert.Equal(t, "ollama", llm.ProviderName())
	assert.Equal(t, "ollama:llama3.2", llm.ModelID())
	assert.Contains(t, llm.Capabilities(), CapabilityChat)
	assert.Same(t, endpoint, llm.GetEndpointConfig())
	require.NotNil(t, llm.GetHTTPClient())
	assert.Equal(t, int64(5), int64(llm.GetHTTPClient().Timeout.Seconds()))
}

func TestValidateEndpointConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *EndpointConfig
		wantErr bool
	}{
		{
			name:    "NilConfigIsValid",
			cfg:     nil,
			wantErr: false,
		},
		{
			name:    "MissingBaseURL",
			cfg:     &EndpointConfig{},
			wantErr: true,
		},
		{
			name:    "TimeoutDefaulted",
			cfg:     &EndpointConfig{BaseURL: "http://localhost", TimeoutSec: 0},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpointConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.cfg != nil {
				assert.Equal(t, 30, tt.cfg.TimeoutSec)
			}
		})
	}
}

func TestGlobalConfig(t *testing.T) {
	t.Cleanup(func() {
		SetDefaultLLM(nil)
		SetConcurrencyOptions(1)
	})

	llm := newFlakyLLM(0, nil)
	SetDefaultLLM(llm)
	assert.Same(t, LLM(llm), GetDefaultLLM())

	SetConcurrencyOptions(8)
	assert.Equal(t, 8, GetConcurrencyLevel())

	SetConcurrencyOptions(-1)
	assert.Equal(t, 1, GetConcurrencyLevel(), "invalid level resets to default")
}
