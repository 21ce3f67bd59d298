package ace

import (
	"encoding/json"
	"fmt"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// Prompt templates for the three roles. Each role accepts a custom template
// through its options; these defaults are adapted from the ACE paper.

const generatorPromptTemplate = `You are an expert assistant that must solve the task using the provided playbook of strategies.
Apply relevant bullets, avoid known mistakes, and show step-by-step reasoning.

Playbook:
%s

Recent reflection:
%s

Question:
%s

Additional context:
%s

Respond with a compact JSON object:
{
  "reasoning": "<step-by-step chain of thought>",
  "bullet_ids": ["<id1>", "<id2>", "..."],
  "final_answer": "<concise final answer>"
}`

const reflectorPromptTemplate = `You are a senior reviewer diagnosing the generator's trajectory.
Use the playbook, model reasoning, and feedback to identify mistakes and actionable insights.
Output must be a single valid JSON object. Do NOT include analysis text or explanations outside the JSON.
Begin the response with ` + "`{`" + ` and end with ` + "`}`" + `.

Question:
%s
Model reasoning:
%s
Model prediction: %s
Ground truth (if available): %s
Feedback: %s
Playbook excerpts consulted:
%s

Return JSON:
{
  "reasoning": "<analysis>",
  "error_identification": "<what went wrong>",
  "root_cause_analysis": "<why it happened>",
  "correct_approach": "<what should be done>",
  "key_insight": "<reusable takeaway>",
  "bullet_tags": [
    {"id": "<bullet-id>", "tag": "helpful|harmful|neutral"}
  ]
}`

const curatorPromptTemplate = `You are the curator of the strategy playbook. Merge the latest reflection into structured updates.
Only add genuinely new material. Do not regenerate the entire playbook.
Respond with a single valid JSON object only, no analysis or extra narration.

Training progress: %s
Playbook stats: %s

Recent reflection:
%s

Current playbook:
%s

Question context:
%s

Respond with JSON:
{
  "reasoning": "<how you decided on the updates>",
  "operations": [
    {
      "type": "ADD|UPDATE|TAG|REMOVE",
      "section": "<section name>",
      "content": "<bullet text>",
      "bullet_id": "<optional existing id>",
      "metadata": {"helpful": 1, "harmful": 0}
    }
  ]
}
If no updates are required, return an empty list for "operations".`

// formatReminder is appended to a role's prompt after a malformed response,
// before the next attempt.
const formatReminder = "\n\nReminder: output a single valid JSON object only. Escape all double quotes inside strings and do not add any text outside the JSON."

const noneValue = "(none)"

func formatOptional(s string) string {
	if s == "" {
		return noneValue
	}
	return s
}

// renderTemplate substitutes role prompt arguments positionally, so custom
// templates only need to keep the verb order documented on each role.
func renderTemplate(template string, args ...any) string {
	return fmt.Sprintf(template, args...)
}

func statsJSON(stats playbook.Stats) string {
	data, err := json.Marshal(stats)
	if err != nil {
		return "{}"
	}
	return string(data)
}
