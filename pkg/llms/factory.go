package llms

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/XiaoConstantine/ace-go/pkg/core"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// NewLLM creates a new LLM instance based on the provided model ID. The
// returned LLM retries transient provider failures and records its model in
// the execution context.
func NewLLM(apiKey string, modelID core.ModelID) (core.LLM, error) {
	var llm core.LLM
	var err error
	switch {
	case modelID == core.ModelAnthropicHaiku || modelID == core.ModelAnthropicSonnet || modelID == core.ModelAnthropicOpus:
		llm, err = NewAnthropicLLM(apiKey, anthropic.Model(modelID))
	case strings.HasPrefix(string(modelID), "anthropic:"):
		llm, err = NewAnthropicLLM(apiKey, anthropic.Model(strings.TrimPrefix(string(modelID), "anthropic:")))
	case strings.HasPrefix(string(modelID), "ollama:"):
		llm, err = NewOllamaLLM("http://localhost:11434", strings.TrimPrefix(string(modelID), "ollama:"))
	default:
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "unsupported model ID"),
			errors.Fields{"model": string(modelID)})
	}
	if err != nil {
		return nil, err
	}
	return core.Chain(llm,
		func(l core.LLM) core.LLM { return core.NewRetryLLM(l, core.DefaultRetryConfig()) },
		func(l core.LLM) core.LLM { return core.NewModelContextDecorator(l) },
	), nil
}
