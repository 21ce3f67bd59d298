package llms

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/ace-go/pkg/core"
	errs "github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/utils"
)

// AnthropicLLM implements the core.LLM interface for Anthropic's models.
type AnthropicLLM struct {
	client *anthropic.Client
	*core.BaseLLM
}

// Model name compatibility layer for older configuration files.
var modelNameMapping = map[string]anthropic.Model{
	"claude-3-opus-20240229":     anthropic.ModelClaudeOpus4_1_20250805,
	"claude-3-sonnet-20240229":   anthropic.ModelClaudeSonnet4_5_20250929,
	"claude-3-haiku-20240307":    anthropic.ModelClaude_3_Haiku_20240307,
	"claude-3.5-sonnet-20241022": anthropic.ModelClaudeSonnet4_5_20250929,
	"claude-3-5-sonnet-20240620": anthropic.ModelClaudeSonnet4_5_20250929,
	"claude-3-opus":              anthropic.ModelClaudeOpus4_1_20250805,
	"claude-3-sonnet":            anthropic.ModelClaudeSonnet4_5_20250929,
	"claude-3-haiku":             anthropic.ModelClaude_3_Haiku_20240307,
}

// normalizeModelName maps old model names to current official ones. Unknown
// names pass through untouched so new models work without a mapping update.
func normalizeModelName(name string) anthropic.Model {
	if normalized, ok := modelNameMapping[name]; ok {
		return normalized
	}
	return anthropic.Model(name)
}

// isValidAnthropicModel checks if the model is a valid Anthropic model.
func isValidAnthropicModel(model string) bool {
	validPrefixes := []string{
		"claude-3",
		"claude-4",
		"claude-haiku",
		"claude-sonnet",
		"claude-opus",
	}

	for _, prefix := range validPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// NewAnthropicLLM creates a new AnthropicLLM instance. An empty apiKey falls
// back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicLLM(apiKey string, model anthropic.Model, opts ...option.RequestOption) (*AnthropicLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errs.New(errs.InvalidInput, "Anthropic API key is required")
	}

	normalized := normalizeModelName(string(model))
	if !isValidAnthropicModel(string(normalized)) {
		return nil, errs.WithFields(
			errs.New(errs.InvalidInput, "unsupported Anthropic model"),
			errs.Fields{"model": string(model)})
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(clientOpts...)

	capabilities := []core.Capability{
		core.CapabilityCompletion,
		core.CapabilityChat,
		core.CapabilityJSON,
		core.CapabilityStreaming,
	}

	return &AnthropicLLM{
		client:  &client,
		BaseLLM: core.NewBaseLLM("anthropic", core.ModelID(normalized), capabilities, nil),
	}, nil
}

// wrapAnthropicError classifies provider failures so callers can decide what
// to retry. 429s come back as RateLimited, everything else as ProviderError.
func wrapAnthropicError(err error, message string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := errs.ProviderError
		if apiErr.StatusCode == http.StatusTooManyRequests {
			code = errs.RateLimited
		}
		return errs.WithFields(
			errs.Wrap(err, code, message),
			errs.Fields{"status_code": apiErr.StatusCode})
	}
	return errs.Wrap(err, errs.ProviderError, message)
}

// Generate implements the core.LLM interface.
func (a *AnthropicLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	logger := logging.GetLogger()
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: anthropic.Model(a.ModelID()),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens:   int64(opts.MaxTokens),
		Temperature: anthropic.Float(opts.Temperature),
	})

	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
		}
		return nil, errs.WithFields(
			wrapAnthropicError(err, "failed to generate response"),
			errs.Fields{
				"model":      a.ModelID(),
				"max_tokens": opts.MaxTokens,
			})
	}

	if message == nil || len(message.Content) == 0 {
		return nil, errs.New(errs.InvalidResponse, "received empty content from Anthropic API")
	}

	// Extract text from response using union type methods
	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	usage := &core.TokenInfo{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}

	logger.Debug(ctx, "Anthropic response: %d prompt tokens, %d completion tokens", message.Usage.InputTokens, message.Usage.OutputTokens)

	return &core.LLMResponse{Content: responseText, Usage: usage}, nil
}

// GenerateWithJSON implements the core.LLM interface.
func (a *AnthropicLLM) GenerateWithJSON(ctx context.Context, prompt string, options ...core.GenerateOption) (map[string]interface{}, error) {
	response, err := a.Generate(ctx, prompt, options...)
	if err != nil {
		return nil, err
	}

	return utils.ParseJSONResponse(response.Content)
}

// StreamGenerate implements streaming text generation using the official SDK's iterator pattern.
func (a *AnthropicLLM) StreamGenerate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.StreamResponse, error) {
	logger := logging.GetLogger()
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	chunkChan := make(chan core.StreamChunk)
	streamCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(chunkChan)
		defer cancelFunc()

		// Sends race with the consumer calling Cancel and walking away;
		// selecting on the stream context keeps this goroutine from
		// blocking forever on the unbuffered channel.
		send := func(chunk core.StreamChunk) bool {
			select {
			case chunkChan <- chunk:
				return true
			case <-streamCtx.Done():
				return false
			}
		}

		stream := a.client.Messages.NewStreaming(streamCtx, anthropic.MessageNewParams{
			Model: anthropic.Model(a.ModelID()),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewTextBlock(prompt),
				),
			},
			MaxTokens:   int64(opts.MaxTokens),
			Temperature: anthropic.Float(opts.Temperature),
		})

		defer stream.Close()

		var tokenInfo core.TokenInfo

		for stream.Next() {
			event := stream.Current()

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if textDelta := variant.Delta.AsTextDelta(); textDelta.Text != "" {
					if !send(core.StreamChunk{Content: textDelta.Text}) {
						return
					}
				}

			case anthropic.MessageStartEvent:
				tokenInfo.PromptTokens = int(variant.Message.Usage.InputTokens)

			case anthropic.MessageDeltaEvent:
				tokenInfo.CompletionTokens = int(variant.Usage.OutputTokens)
				tokenInfo.TotalTokens = tokenInfo.PromptTokens + tokenInfo.CompletionTokens

				if !send(core.StreamChunk{Usage: &tokenInfo}) {
					return
				}

			case anthropic.MessageStopEvent:
				if !send(core.StreamChunk{Done: true}) {
					return
				}

			case anthropic.ContentBlockStartEvent:
				// Beginning of a content block, nothing to do

			default:
				logger.Debug(streamCtx, "Received event type: %T", event)
			}
		}

		if err := stream.Err(); err != nil {
			var apiErr *anthropic.Error
			if errors.As(err, &apiErr) {
				logger.Error(streamCtx, "Anthropic streaming error: status code %d", apiErr.StatusCode)
			}
			send(core.StreamChunk{Error: wrapAnthropicError(err, "streaming failed")})
		}
	}()

	return &core.StreamResponse{
		ChunkChannel: chunkChan,
		Cancel:       cancelFunc,
	}, nil
}
