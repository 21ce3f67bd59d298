package ace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// Sample is a single task instance presented to the adaptation loop.
type Sample struct {
	Question    string         `json:"question"`
	Context     string         `json:"context,omitempty"`
	GroundTruth string         `json:"ground_truth,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EnvironmentResult is the feedback a task environment returns after
// scoring a generator output.
type EnvironmentResult struct {
	Feedback    string             `json:"feedback"`
	GroundTruth string             `json:"ground_truth,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// TaskEnvironment scores generator outputs. The feedback string should be
// informative enough for the reflector to diagnose what went wrong.
type TaskEnvironment interface {
	Evaluate(ctx context.Context, sample Sample, output *GeneratorOutput) (*EnvironmentResult, error)
}

// GeneratorOutput is the generator's parsed answer.
type GeneratorOutput struct {
	Reasoning   string         `json:"reasoning"`
	FinalAnswer string         `json:"final_answer"`
	BulletIDs   []string       `json:"bullet_ids"`
	Raw         map[string]any `json:"-"`
}

// BulletTag is the reflector's verdict on one bullet the generator used.
type BulletTag struct {
	ID  string       `json:"id"`
	Tag playbook.Tag `json:"tag"`
}

// ReflectorOutput is the reflector's diagnosis of a trajectory.
type ReflectorOutput struct {
	Reasoning           string         `json:"reasoning"`
	ErrorIdentification string         `json:"error_identification"`
	RootCauseAnalysis   string         `json:"root_cause_analysis"`
	CorrectApproach     string         `json:"correct_approach"`
	KeyInsight          string         `json:"key_insight"`
	BulletTags          []BulletTag    `json:"bullet_tags"`
	Raw                 map[string]any `json:"-"`
}

// LowConfidence reports whether the reflection produced nothing actionable:
// no bullet verdicts and no reusable insight. The drivers re-invoke the
// reflector while this holds, up to their refinement budget.
func (r *ReflectorOutput) LowConfidence() bool {
	return len(r.BulletTags) == 0 && r.KeyInsight == ""
}

// Rendered serializes the reflection for reuse as generator context.
func (r *ReflectorOutput) Rendered() string {
	data, err := json.Marshal(r.Raw)
	if err != nil || len(r.Raw) == 0 {
		return fmt.Sprintf("key_insight: %s\ncorrect_approach: %s", r.KeyInsight, r.CorrectApproach)
	}
	return string(data)
}

// CuratorOutput is the curator's proposed playbook update.
type CuratorOutput struct {
	Delta       *playbook.DeltaBatch `json:"delta"`
	DroppedAdds int                  `json:"dropped_adds,omitempty"`
	Raw         map[string]any       `json:"-"`
}

// StepResult records everything one sample produced on its way through the
// pipeline. Err is set when the sample failed; the other fields hold
// whatever stages completed before the failure.
type StepResult struct {
	StepID      string
	Sample      Sample
	Output      *GeneratorOutput
	Environment *EnvironmentResult
	Reflection  *ReflectorOutput
	Curator     *CuratorOutput
	Report      *playbook.MergeReport
	Snapshot    string
	Err         error
}
