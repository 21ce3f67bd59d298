package ace

import (
	"context"

	"github.com/XiaoConstantine/ace-go/pkg/core"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
	"github.com/XiaoConstantine/ace-go/pkg/utils"
)

// Reflector diagnoses a generator trajectory against environment feedback,
// tagging the bullets the generator used as helpful, harmful, or neutral.
// It is a pure function of its inputs; the drivers own the refinement loop.
type Reflector struct {
	llm        core.LLM
	template   string
	maxRetries int
	genOpts    []core.GenerateOption
}

// ReflectorOption configures a Reflector.
type ReflectorOption func(*Reflector)

// WithReflectorTemplate replaces the default prompt template. The template
// receives, in order: question, reasoning, prediction, ground truth,
// feedback, playbook excerpt.
func WithReflectorTemplate(template string) ReflectorOption {
	return func(r *Reflector) { r.template = template }
}

// WithReflectorRetries sets the malformed-output retry budget.
func WithReflectorRetries(n int) ReflectorOption {
	return func(r *Reflector) { r.maxRetries = n }
}

// WithReflectorGenerateOptions sets generation parameters passed on every
// completion call.
func WithReflectorGenerateOptions(opts ...core.GenerateOption) ReflectorOption {
	return func(r *Reflector) { r.genOpts = opts }
}

// NewReflector creates a reflector backed by the given LLM.
func NewReflector(llm core.LLM, opts ...ReflectorOption) *Reflector {
	r := &Reflector{
		llm:        llm,
		template:   reflectorPromptTemplate,
		maxRetries: DefaultMaxParseRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReflectRequest carries one diagnosis task.
type ReflectRequest struct {
	Question    string
	Output      *GeneratorOutput
	Playbook    *playbook.Snapshot
	GroundTruth string
	Feedback    string
	// RefinementRound is informational: which round of the driver's
	// refinement loop this invocation belongs to.
	RefinementRound int
}

// Reflect analyzes the trajectory and returns the diagnosis. Only the
// bullets the generator cited are excerpted into the prompt. Malformed
// output is retried with a format reminder; an exhausted budget returns a
// ReflectionFailed error.
func (r *Reflector) Reflect(ctx context.Context, req ReflectRequest) (*ReflectorOutput, error) {
	if req.Output == nil {
		return nil, errors.New(errors.InvalidInput, "reflect request carries no generator output")
	}
	if req.Playbook == nil {
		return nil, errors.New(errors.InvalidInput, "reflect request carries no playbook snapshot")
	}

	excerpt := req.Playbook.Excerpt(req.Output.BulletIDs)
	if excerpt == "" {
		excerpt = "(no bullets referenced)"
	}
	basePrompt := renderTemplate(r.template,
		req.Question,
		req.Output.Reasoning,
		req.Output.FinalAnswer,
		formatOptional(req.GroundTruth),
		formatOptional(req.Feedback),
		excerpt)

	logger := logging.GetLogger()
	prompt := basePrompt
	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := errors.CheckContext(ctx, "reflection"); err != nil {
			return nil, err
		}

		response, err := r.llm.Generate(ctx, prompt, r.genOpts...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ReflectionFailed, "reflector completion failed")
		}

		data, err := utils.ParseLLMJSON(response.Content)
		if err != nil {
			lastErr = err
			logger.Debug(ctx, "reflector attempt %d (round %d) returned malformed JSON: %v",
				attempt+1, req.RefinementRound, err)
			prompt = basePrompt + formatReminder
			continue
		}
		return parseReflectorOutput(data), nil
	}
	return nil, errors.Wrap(lastErr, errors.ReflectionFailed, "reflector failed to produce valid JSON")
}

func parseReflectorOutput(data map[string]any) *ReflectorOutput {
	out := &ReflectorOutput{
		Reasoning:           stringField(data, "reasoning"),
		ErrorIdentification: stringField(data, "error_identification"),
		RootCauseAnalysis:   stringField(data, "root_cause_analysis"),
		CorrectApproach:     stringField(data, "correct_approach"),
		KeyInsight:          stringField(data, "key_insight"),
		Raw:                 data,
	}
	if tags, ok := data["bullet_tags"].([]any); ok {
		for _, item := range tags {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id := stringField(entry, "id")
			tag, valid := playbook.ParseTag(stringField(entry, "tag"))
			if id == "" || !valid {
				continue
			}
			out.BulletTags = append(out.BulletTags, BulletTag{ID: id, Tag: tag})
		}
	}
	return out
}
