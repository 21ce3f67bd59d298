// Package ace implements Agentic Context Engineering (ACE) for self-improving agents.
//
// ACE evolves a playbook of strategies by running tasks through a three-role
// pipeline and merging the lessons back into the playbook:
//
//   - Generator: answers a task using the current playbook of strategies
//   - Reflector: diagnoses the answer against environment feedback, tagging
//     the bullets the generator used as helpful, harmful, or neutral
//   - Curator: converts the reflection into delta operations on the playbook
//
// Two drivers orchestrate the pipeline. OfflineAdapter iterates a fixed
// training set for several epochs to build an initial playbook; OnlineAdapter
// processes tasks one at a time so a deployed agent keeps improving. Both
// merge after every sample, so each task generates against everything learned
// before it.
//
// # Basic Usage
//
//	llm, _ := llms.NewLLM(apiKey, "anthropic:claude-haiku-4-5")
//	merger := playbook.NewMerger(playbook.New())
//
//	adapter := ace.NewOfflineAdapter(merger,
//	    ace.NewGenerator(llm),
//	    ace.NewReflector(llm),
//	    ace.NewCurator(llm))
//
//	samples := []ace.Sample{
//	    {Question: "What is 2+2?", GroundTruth: "4"},
//	}
//	results, err := adapter.Run(ctx, samples, ace.NewAnswerMatchEnvironment(), 3)
//
// The evolved playbook persists with playbook.Save and reloads with
// playbook.Load for later online adaptation.
//
// EvaluateBatch measures a playbook on a sample set without adapting it,
// for train/test comparisons around an adaptation run.
package ace
