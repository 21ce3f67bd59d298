package ace

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/ace-go/pkg/core"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// SampleScore is one sample's measurement.
type SampleScore struct {
	Sample      Sample
	Output      *GeneratorOutput
	Environment *EnvironmentResult
	Err         error
}

// BatchReport aggregates a batch evaluation.
type BatchReport struct {
	Scores []SampleScore
	// Accuracy averages the environments' "accuracy" metric over samples
	// that completed.
	Accuracy float64
	Failed   int
}

// EvaluateBatch measures how the current playbook performs on a sample set
// without adapting it: concurrent generation and scoring over read-only
// snapshots, no reflection, no merges. Use it for train/test measurement
// around an adaptation run.
func EvaluateBatch(ctx context.Context, pb *playbook.Playbook, gen *Generator, samples []Sample, env TaskEnvironment, concurrency int) (*BatchReport, error) {
	if len(samples) == 0 {
		return &BatchReport{}, nil
	}
	if concurrency < 1 {
		concurrency = core.GetConcurrencyLevel()
	}

	// One snapshot serves the whole batch: nothing merges during
	// measurement, and every worker must see the same playbook anyway.
	snap := pb.Snapshot()

	report := &BatchReport{Scores: make([]SampleScore, len(samples))}
	p := pool.New().WithMaxGoroutines(concurrency)
	for i := range samples {
		i := i
		p.Go(func() {
			report.Scores[i] = scoreSample(ctx, gen, snap, samples[i], env)
		})
	}
	p.Wait()

	if err := errors.CheckContext(ctx, "batch evaluation"); err != nil {
		return report, err
	}

	completed := 0
	var total float64
	for _, score := range report.Scores {
		if score.Err != nil {
			report.Failed++
			continue
		}
		completed++
		total += score.Environment.Metrics["accuracy"]
	}
	if completed > 0 {
		report.Accuracy = total / float64(completed)
	}
	logging.GetLogger().Info(ctx, "batch evaluation: %d samples, accuracy %.3f, %d failed",
		len(samples), report.Accuracy, report.Failed)
	return report, nil
}

func scoreSample(ctx context.Context, gen *Generator, snap *playbook.Snapshot, sample Sample, env TaskEnvironment) SampleScore {
	score := SampleScore{Sample: sample}

	output, err := gen.Generate(ctx, GenerateRequest{
		Question: sample.Question,
		Context:  sample.Context,
		Playbook: snap,
	})
	if err != nil {
		score.Err = err
		return score
	}
	score.Output = output

	envResult, err := env.Evaluate(ctx, sample, output)
	if err != nil {
		score.Err = err
		return score
	}
	score.Environment = envResult
	return score
}
