package ace

import (
	"context"
	"fmt"
	"strings"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// AnswerMatchEnvironment is the baseline environment: the final answer is
// compared against the sample's ground truth, exactly and then normalized
// (lowercase, trimmed, collapsed whitespace).
type AnswerMatchEnvironment struct{}

// NewAnswerMatchEnvironment creates the baseline answer checker.
func NewAnswerMatchEnvironment() *AnswerMatchEnvironment {
	return &AnswerMatchEnvironment{}
}

// Evaluate scores the generator output against the sample's ground truth.
func (e *AnswerMatchEnvironment) Evaluate(ctx context.Context, sample Sample, output *GeneratorOutput) (*EnvironmentResult, error) {
	if output == nil {
		return nil, errors.New(errors.InvalidInput, "evaluate received no generator output")
	}
	if err := errors.CheckContext(ctx, "evaluation"); err != nil {
		return nil, err
	}

	correct := answersMatch(output.FinalAnswer, sample.GroundTruth)
	result := &EnvironmentResult{
		GroundTruth: sample.GroundTruth,
		Metrics:     map[string]float64{"accuracy": 0},
	}
	if correct {
		result.Feedback = "Correct."
		result.Metrics["accuracy"] = 1
	} else {
		result.Feedback = fmt.Sprintf("Incorrect. Expected %q, got %q.", sample.GroundTruth, output.FinalAnswer)
	}
	return result, nil
}

func answersMatch(prediction, groundTruth string) bool {
	if prediction == groundTruth {
		return true
	}
	return normalizeAnswer(prediction) == normalizeAnswer(groundTruth)
}

func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
