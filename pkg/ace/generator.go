package ace

import (
	"context"

	"github.com/XiaoConstantine/ace-go/pkg/core"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
	"github.com/XiaoConstantine/ace-go/pkg/utils"
)

// DefaultMaxParseRetries bounds how many times a role re-asks the model
// after a malformed structured response.
const DefaultMaxParseRetries = 3

// Generator produces answers using the current playbook of strategies. It
// never mutates the playbook; it reads a snapshot.
type Generator struct {
	llm        core.LLM
	template   string
	maxRetries int
	genOpts    []core.GenerateOption
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorTemplate replaces the default prompt template. The template
// receives, in order: playbook, reflection, question, context.
func WithGeneratorTemplate(template string) GeneratorOption {
	return func(g *Generator) { g.template = template }
}

// WithGeneratorRetries sets the malformed-output retry budget.
func WithGeneratorRetries(n int) GeneratorOption {
	return func(g *Generator) { g.maxRetries = n }
}

// WithGeneratorGenerateOptions sets generation parameters (max tokens,
// temperature) passed on every completion call.
func WithGeneratorGenerateOptions(opts ...core.GenerateOption) GeneratorOption {
	return func(g *Generator) { g.genOpts = opts }
}

// NewGenerator creates a generator backed by the given LLM.
func NewGenerator(llm core.LLM, opts ...GeneratorOption) *Generator {
	g := &Generator{
		llm:        llm,
		template:   generatorPromptTemplate,
		maxRetries: DefaultMaxParseRetries,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateRequest carries one generation task.
type GenerateRequest struct {
	Question string
	Context  string
	Playbook *playbook.Snapshot
	// Reflection is the rendered window of recent reflections, fed back so
	// the generator can avoid repeating diagnosed mistakes.
	Reflection string
}

// Generate renders the playbook into the prompt, asks the model, and parses
// the strict-JSON answer. Malformed output is retried with a format reminder
// appended; an exhausted budget returns a GenerationFailed error.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GeneratorOutput, error) {
	if req.Playbook == nil {
		return nil, errors.New(errors.InvalidInput, "generate request carries no playbook snapshot")
	}

	basePrompt := renderTemplate(g.template,
		req.Playbook.Prompt,
		formatOptional(req.Reflection),
		req.Question,
		formatOptional(req.Context))

	logger := logging.GetLogger()
	prompt := basePrompt
	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if err := errors.CheckContext(ctx, "generation"); err != nil {
			return nil, err
		}

		response, err := g.llm.Generate(ctx, prompt, g.genOpts...)
		if err != nil {
			return nil, errors.Wrap(err, errors.GenerationFailed, "generator completion failed")
		}

		data, err := utils.ParseLLMJSON(response.Content)
		if err != nil {
			lastErr = err
			logger.Debug(ctx, "generator attempt %d returned malformed JSON: %v", attempt+1, err)
			prompt = basePrompt + formatReminder
			continue
		}
		return parseGeneratorOutput(data), nil
	}
	return nil, errors.Wrap(lastErr, errors.GenerationFailed, "generator failed to produce valid JSON")
}

func parseGeneratorOutput(data map[string]any) *GeneratorOutput {
	out := &GeneratorOutput{
		Reasoning:   stringField(data, "reasoning"),
		FinalAnswer: stringField(data, "final_answer"),
		Raw:         data,
	}
	if ids, ok := data["bullet_ids"].([]any); ok {
		for _, item := range ids {
			if s, ok := item.(string); ok {
				out.BulletIDs = append(out.BulletIDs, s)
			}
		}
	}
	return out
}

func stringField(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
