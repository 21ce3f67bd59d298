package ace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

const (
	// DefaultReflectionWindow is how many recent reflections feed back into
	// generation.
	DefaultReflectionWindow = 3
	// DefaultMaxRefinementRounds bounds reflector re-invocations for
	// low-confidence output.
	DefaultMaxRefinementRounds = 1
)

// AdapterOption configures an adaptation driver.
type AdapterOption func(*adapterBase)

// WithReflectionWindow sets how many recent reflections are kept and fed
// back into subsequent generations.
func WithReflectionWindow(n int) AdapterOption {
	return func(a *adapterBase) { a.reflectionWindow = n }
}

// WithMaxRefinementRounds sets how many times a low-confidence reflection is
// re-requested before being accepted as-is.
func WithMaxRefinementRounds(n int) AdapterOption {
	return func(a *adapterBase) { a.maxRefinementRounds = n }
}

// adapterBase is the pipeline shared by the offline and online drivers:
// GENERATE, EVALUATE, REFLECT, CURATE, MERGE, one merge per sample, applied
// before the next sample starts.
type adapterBase struct {
	merger    *playbook.Merger
	generator *Generator
	reflector *Reflector
	curator   *Curator

	reflectionWindow    int
	maxRefinementRounds int

	recentReflections []string
}

func newAdapterBase(merger *playbook.Merger, generator *Generator, reflector *Reflector, curator *Curator, opts []AdapterOption) adapterBase {
	a := adapterBase{
		merger:              merger,
		generator:           generator,
		reflector:           reflector,
		curator:             curator,
		reflectionWindow:    DefaultReflectionWindow,
		maxRefinementRounds: DefaultMaxRefinementRounds,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Playbook returns the store this adapter evolves.
func (a *adapterBase) Playbook() *playbook.Playbook {
	return a.merger.Playbook()
}

func (a *adapterBase) reflectionContext() string {
	return strings.Join(a.recentReflections, "\n---\n")
}

func (a *adapterBase) rememberReflection(reflection *ReflectorOutput) {
	a.recentReflections = append(a.recentReflections, reflection.Rendered())
	if len(a.recentReflections) > a.reflectionWindow {
		a.recentReflections = a.recentReflections[len(a.recentReflections)-a.reflectionWindow:]
	}
}

func questionContext(sample Sample, envResult *EnvironmentResult) string {
	metadata, _ := json.Marshal(sample.Metadata)
	parts := []string{
		"question: " + sample.Question,
		"context: " + sample.Context,
		"metadata: " + string(metadata),
		"feedback: " + envResult.Feedback,
		"ground_truth: " + envResult.GroundTruth,
	}
	return strings.Join(parts, "\n")
}

func progressString(epoch, totalEpochs, step, totalSteps int) string {
	return fmt.Sprintf("epoch %d/%d · sample %d/%d", epoch, totalEpochs, step, totalSteps)
}

// processSample runs one sample through the full pipeline. Failures are
// recorded on the returned StepResult rather than aborting the caller's
// loop; whatever stages completed are preserved for inspection.
func (a *adapterBase) processSample(ctx context.Context, sample Sample, env TaskEnvironment, epoch, totalEpochs, step, totalSteps int) *StepResult {
	logger := logging.GetLogger()
	progress := progressString(epoch, totalEpochs, step, totalSteps)
	result := &StepResult{
		StepID: uuid.New().String(),
		Sample: sample,
	}

	ctx, endTask := logging.TraceTask(ctx, "adaptation.step")
	defer endTask()

	start := time.Now()
	defer func() {
		a.emitTrace(ctx, result, epoch, step, time.Since(start))
	}()

	snap := a.Playbook().Snapshot()
	output, err := a.generator.Generate(ctx, GenerateRequest{
		Question:   sample.Question,
		Context:    sample.Context,
		Playbook:   snap,
		Reflection: a.reflectionContext(),
	})
	if err != nil {
		result.Err = err
		logger.Error(ctx, "step %s: generation failed: %v", result.StepID, err)
		return result
	}
	result.Output = output

	envResult, err := env.Evaluate(ctx, sample, output)
	if err != nil {
		result.Err = err
		logger.Error(ctx, "step %s: evaluation failed: %v", result.StepID, err)
		return result
	}
	result.Environment = envResult

	reflection, err := a.reflect(ctx, sample, output, snap, envResult)
	if err != nil {
		result.Err = err
		logger.Error(ctx, "step %s: reflection failed: %v", result.StepID, err)
		return result
	}
	result.Reflection = reflection
	a.rememberReflection(reflection)

	curated, err := a.curator.Curate(ctx, CurateRequest{
		Reflection:      reflection,
		Playbook:        snap,
		QuestionContext: questionContext(sample, envResult),
		Progress:        progress,
	})
	if err != nil {
		result.Err = err
		logger.Error(ctx, "step %s: curation failed: %v", result.StepID, err)
		return result
	}
	result.Curator = curated

	// The reflection's bullet verdicts ride in front of the curator's
	// operations so the sample performs exactly one merge.
	batch := foldBulletTags(reflection.BulletTags, curated.Delta)
	report, err := a.merger.Apply(ctx, batch)
	if err != nil {
		result.Err = err
		logger.Error(ctx, "step %s: merge failed: %v", result.StepID, err)
		return result
	}
	result.Report = report
	result.Snapshot = a.Playbook().AsPrompt()
	return result
}

// emitTrace records the step outcome, and the merge counters when the step
// reached its merge, onto the trace session riding in ctx, if any.
func (a *adapterBase) emitTrace(ctx context.Context, result *StepResult, epoch, sample int, elapsed time.Duration) {
	session := logging.GetTraceSession(ctx)
	if session == nil {
		return
	}
	logger := logging.GetLogger()

	var answer, feedback string
	if result.Output != nil {
		answer = result.Output.FinalAnswer
	}
	if result.Environment != nil {
		feedback = result.Environment.Feedback
	}
	if err := session.EmitStep(result.StepID, epoch, sample, answer, feedback, result.Err, elapsed.Milliseconds()); err != nil {
		logger.Warn(ctx, "step %s: trace emit failed: %v", result.StepID, err)
	}

	if result.Report == nil {
		return
	}
	r := result.Report
	if err := session.EmitMerge(result.StepID, len(r.Added), len(r.Updated), len(r.Tagged), len(r.Removed), len(r.Deduplicated), len(r.Anomalies)); err != nil {
		logger.Warn(ctx, "step %s: trace emit failed: %v", result.StepID, err)
	}
}

// reflect runs the bounded refinement loop: the reflector is re-invoked
// while its output is low-confidence, up to the configured rounds. The last
// output wins either way.
func (a *adapterBase) reflect(ctx context.Context, sample Sample, output *GeneratorOutput, snap *playbook.Snapshot, envResult *EnvironmentResult) (*ReflectorOutput, error) {
	rounds := a.maxRefinementRounds
	if rounds < 1 {
		rounds = 1
	}

	var reflection *ReflectorOutput
	for round := 0; round < rounds; round++ {
		candidate, err := a.reflector.Reflect(ctx, ReflectRequest{
			Question:        sample.Question,
			Output:          output,
			Playbook:        snap,
			GroundTruth:     envResult.GroundTruth,
			Feedback:        envResult.Feedback,
			RefinementRound: round,
		})
		if err != nil {
			return nil, err
		}
		reflection = candidate
		if !reflection.LowConfidence() {
			break
		}
	}
	return reflection, nil
}

// foldBulletTags converts reflector verdicts into leading TAG operations on
// the curator's batch.
func foldBulletTags(tags []BulletTag, delta *playbook.DeltaBatch) *playbook.DeltaBatch {
	if len(tags) == 0 {
		return delta
	}
	ops := make([]playbook.DeltaOperation, 0, len(tags)+len(delta.Operations))
	for _, tag := range tags {
		ops = append(ops, playbook.TagOp(tag.ID, tag.Tag))
	}
	ops = append(ops, delta.Operations...)
	return &playbook.DeltaBatch{Reasoning: delta.Reasoning, Operations: ops}
}

// OfflineAdapter evolves a playbook over a fixed training set for several
// epochs, useful for building a strong initial playbook before deployment.
type OfflineAdapter struct {
	adapterBase
}

// NewOfflineAdapter creates the multi-epoch driver. The merger identifies
// the playbook being trained.
func NewOfflineAdapter(merger *playbook.Merger, generator *Generator, reflector *Reflector, curator *Curator, opts ...AdapterOption) *OfflineAdapter {
	return &OfflineAdapter{newAdapterBase(merger, generator, reflector, curator, opts)}
}

// Run processes every sample once per epoch, merging after each sample so
// later samples (and later epochs) generate against the evolved playbook.
// Per-sample failures are recorded in their StepResult and the run
// continues; a canceled context stops the run and returns the results so
// far with a Cancelled error.
func (a *OfflineAdapter) Run(ctx context.Context, samples []Sample, env TaskEnvironment, epochs int) ([]StepResult, error) {
	if epochs < 1 {
		return nil, errors.New(errors.InvalidInput, "epochs must be at least 1")
	}

	logger := logging.GetLogger()
	runID := uuid.New().String()
	logger.Info(ctx, "offline run %s: %d samples, %d epochs", runID, len(samples), epochs)

	results := make([]StepResult, 0, len(samples)*epochs)
	for epoch := 1; epoch <= epochs; epoch++ {
		logger.Debug(ctx, "offline run %s: epoch %d/%d", runID, epoch, epochs)
		for i, sample := range samples {
			if err := errors.CheckContext(ctx, "offline adaptation"); err != nil {
				return results, err
			}
			result := a.processSample(ctx, sample, env, epoch, epochs, i+1, len(samples))
			results = append(results, *result)
			if errors.HasCode(result.Err, errors.Cancelled) {
				return results, result.Err
			}
		}
	}
	logger.Info(ctx, "offline run %s complete: %d steps, playbook now %d bullets",
		runID, len(results), a.Playbook().Len())
	return results, nil
}

// OnlineAdapter evolves a playbook continuously, one task at a time, so an
// agent keeps improving during deployment.
type OnlineAdapter struct {
	adapterBase
	step int
}

// NewOnlineAdapter creates the sequential driver. The merger identifies the
// playbook being evolved; seed it via playbook.Load to continue from
// offline training.
func NewOnlineAdapter(merger *playbook.Merger, generator *Generator, reflector *Reflector, curator *Curator, opts ...AdapterOption) *OnlineAdapter {
	return &OnlineAdapter{adapterBase: newAdapterBase(merger, generator, reflector, curator, opts)}
}

// Process runs one task through the pipeline and merges its outcome. The
// returned error mirrors StepResult.Err.
func (a *OnlineAdapter) Process(ctx context.Context, sample Sample, env TaskEnvironment) (*StepResult, error) {
	a.step++
	result := a.processSample(ctx, sample, env, 1, 1, a.step, a.step)
	return result, result.Err
}

// Run processes a stream of samples sequentially. Each task generates
// against every previously processed task's merge. Per-sample failures are
// recorded and the stream continues; cancellation stops it with the results
// so far.
func (a *OnlineAdapter) Run(ctx context.Context, samples []Sample, env TaskEnvironment) ([]StepResult, error) {
	logger := logging.GetLogger()
	runID := uuid.New().String()
	logger.Info(ctx, "online run %s: %d samples", runID, len(samples))

	results := make([]StepResult, 0, len(samples))
	for _, sample := range samples {
		if err := errors.CheckContext(ctx, "online adaptation"); err != nil {
			return results, err
		}
		result, err := a.Process(ctx, sample, env)
		results = append(results, *result)
		if errors.HasCode(err, errors.Cancelled) {
			return results, err
		}
	}
	return results, nil
}
