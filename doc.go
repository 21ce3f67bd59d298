// Package ace is a Go implementation of Agentic Context Engineering: agents
// that improve themselves by evolving a playbook of strategies instead of
// updating model weights.
//
// The system runs tasks through a three-role pipeline: a Generator answers
// using the current playbook, a Reflector diagnoses the answer against
// environment feedback, and a Curator converts the lessons into delta
// operations. The deltas are merged back into the playbook before the next
// task runs.
//
// Key Packages:
//
//   - pkg/playbook: the evolving store. Bullets with helpful/harmful/neutral
//     counters grouped into sections, delta operations (ADD, UPDATE, TAG,
//     REMOVE), a serializing Merger with semantic dedup and grow-and-refine
//     maintenance, and locked JSON persistence.
//
//   - pkg/ace: the three roles, their prompts, offline and online adaptation
//     drivers, task environments, and concurrent batch evaluation.
//
//   - pkg/llms: LLM providers (Anthropic via the official SDK, Ollama over
//     HTTP) behind the core.LLM interface, with a model-id factory.
//
//   - pkg/cache: completion caching (in-memory LRU or SQLite) as an LLM
//     decorator, so repeated runs over the same samples skip the provider.
//
//   - pkg/datasets: training-sample loaders: JSONL files and the GSM8K
//     benchmark via parquet.
//
//   - pkg/config: YAML configuration surface with validation.
//
// See examples/ for runnable programs and pkg/ace for the pipeline API.
package ace
