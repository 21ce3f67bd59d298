package ace

import (
	"context"

	"github.com/XiaoConstantine/ace-go/pkg/core"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
	"github.com/XiaoConstantine/ace-go/pkg/utils"
)

// DefaultContextBudget is the token budget for new bullet content proposed
// by one curator invocation.
const DefaultContextBudget = 2048

// Curator converts a reflection plus playbook statistics into an ordered
// delta batch. It proposes updates; the merger applies them.
type Curator struct {
	llm           core.LLM
	template      string
	maxRetries    int
	contextBudget int
	genOpts       []core.GenerateOption
}

// CuratorOption configures a Curator.
type CuratorOption func(*Curator)

// WithCuratorTemplate replaces the default prompt template. The template
// receives, in order: progress, stats, reflection, playbook, question
// context.
func WithCuratorTemplate(template string) CuratorOption {
	return func(c *Curator) { c.template = template }
}

// WithCuratorRetries sets the malformed-output retry budget.
func WithCuratorRetries(n int) CuratorOption {
	return func(c *Curator) { c.maxRetries = n }
}

// WithContextBudget caps the estimated tokens of ADD content accepted from
// one curation. Zero disables the cap.
func WithContextBudget(tokens int) CuratorOption {
	return func(c *Curator) { c.contextBudget = tokens }
}

// WithCuratorGenerateOptions sets generation parameters passed on every
// completion call.
func WithCuratorGenerateOptions(opts ...core.GenerateOption) CuratorOption {
	return func(c *Curator) { c.genOpts = opts }
}

// NewCurator creates a curator backed by the given LLM.
func NewCurator(llm core.LLM, opts ...CuratorOption) *Curator {
	c := &Curator{
		llm:           llm,
		template:      curatorPromptTemplate,
		maxRetries:    DefaultMaxParseRetries,
		contextBudget: DefaultContextBudget,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurateRequest carries one curation task.
type CurateRequest struct {
	Reflection *ReflectorOutput
	Playbook   *playbook.Snapshot
	// QuestionContext describes the task the reflection came from: question,
	// context, metadata, feedback, ground truth.
	QuestionContext string
	// Progress is a human-readable position in the run, e.g.
	// "epoch 2/3 · sample 5/8".
	Progress string
}

// Curate asks the model for delta operations and parses them into a batch.
// ADD operations beyond the context budget are dropped and counted in the
// output. Malformed output is retried with a format reminder; an exhausted
// budget returns a CurationFailed error.
func (c *Curator) Curate(ctx context.Context, req CurateRequest) (*CuratorOutput, error) {
	if req.Reflection == nil {
		return nil, errors.New(errors.InvalidInput, "curate request carries no reflection")
	}
	if req.Playbook == nil {
		return nil, errors.New(errors.InvalidInput, "curate request carries no playbook snapshot")
	}

	basePrompt := renderTemplate(c.template,
		req.Progress,
		statsJSON(req.Playbook.Stats),
		req.Reflection.Rendered(),
		req.Playbook.Prompt,
		req.QuestionContext)

	logger := logging.GetLogger()
	prompt := basePrompt
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := errors.CheckContext(ctx, "curation"); err != nil {
			return nil, err
		}

		response, err := c.llm.Generate(ctx, prompt, c.genOpts...)
		if err != nil {
			return nil, errors.Wrap(err, errors.CurationFailed, "curator completion failed")
		}

		data, err := utils.ParseLLMJSON(response.Content)
		if err != nil {
			lastErr = err
			logger.Debug(ctx, "curator attempt %d returned malformed JSON: %v", attempt+1, err)
			prompt = basePrompt + formatReminder
			continue
		}

		batch, err := playbook.ParseDeltaBatch(data)
		if err != nil {
			lastErr = err
			logger.Debug(ctx, "curator attempt %d returned an invalid delta: %v", attempt+1, err)
			prompt = basePrompt + formatReminder
			continue
		}

		out := &CuratorOutput{Delta: batch, Raw: data}
		c.enforceBudget(ctx, out)
		return out, nil
	}
	return nil, errors.Wrap(lastErr, errors.CurationFailed, "curator failed to produce a valid delta")
}

// enforceBudget drops ADD operations once their cumulative estimated token
// count exceeds the configured budget. Non-ADD operations always pass.
func (c *Curator) enforceBudget(ctx context.Context, out *CuratorOutput) {
	if c.contextBudget <= 0 {
		return
	}

	spent := 0
	kept := out.Delta.Operations[:0]
	for _, op := range out.Delta.Operations {
		if op.Type != playbook.OpAdd {
			kept = append(kept, op)
			continue
		}
		cost := estimateTokens(op.Content)
		if spent+cost > c.contextBudget {
			out.DroppedAdds++
			continue
		}
		spent += cost
		kept = append(kept, op)
	}
	out.Delta.Operations = kept
	if out.DroppedAdds > 0 {
		logging.GetLogger().Warn(ctx, "curator dropped %d ADD operations over the %d-token context budget",
			out.DroppedAdds, c.contextBudget)
	}
}

// estimateTokens uses the rough 4-characters-per-token heuristic.
func estimateTokens(s string) int {
	return len(s) / 4
}
