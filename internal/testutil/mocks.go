// Package testutil provides test doubles shared across packages.
package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/XiaoConstantine/ace-go/pkg/core"
	"github.com/XiaoConstantine/ace-go/pkg/utils"
)

// MockLLM is a testify mock implementation of core.LLM.
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	args := m.Called(ctx, prompt, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if response, ok := args.Get(0).(*core.LLMResponse); ok {
		return response, args.Error(1)
	}
	// Fall back to string conversion for simple cases.
	return &core.LLMResponse{Content: args.String(0)}, args.Error(1)
}

func (m *MockLLM) GenerateWithJSON(ctx context.Context, prompt string, opts ...core.GenerateOption) (map[string]interface{}, error) {
	args := m.Called(ctx, prompt, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockLLM) StreamGenerate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.StreamResponse, error) {
	args := m.Called(ctx, prompt, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if response, ok := args.Get(0).(*core.StreamResponse); ok {
		return response, args.Error(1)
	}

	// Fall back to streaming a plain string in one chunk.
	chunks := make(chan core.StreamChunk, 2)
	chunks <- core.StreamChunk{Content: args.String(0)}
	chunks <- core.StreamChunk{Done: true}
	close(chunks)
	return &core.StreamResponse{ChunkChannel: chunks, Cancel: func() {}}, args.Error(1)
}

func (m *MockLLM) ProviderName() string {
	return "mock"
}

func (m *MockLLM) ModelID() string {
	return "mock-model"
}

func (m *MockLLM) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityCompletion, core.CapabilityJSON}
}

// ScriptedLLM returns canned responses in order, recording every prompt it
// saw. It drives role pipelines through deterministic conversations without
// testify expectations.
type ScriptedLLM struct {
	mu        sync.Mutex
	responses []scripted
	calls     int
	Prompts   []string
}

type scripted struct {
	content string
	err     error
}

// NewScriptedLLM creates a scripted LLM with the given responses.
func NewScriptedLLM(responses ...string) *ScriptedLLM {
	s := &ScriptedLLM{}
	for _, r := range responses {
		s.responses = append(s.responses, scripted{content: r})
	}
	return s
}

// Enqueue appends another response to the script.
func (s *ScriptedLLM) Enqueue(content string) *ScriptedLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scripted{content: content})
	return s
}

// EnqueueError appends a failing response to the script.
func (s *ScriptedLLM) EnqueueError(err error) *ScriptedLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scripted{err: err})
	return s
}

// Calls reports how many completions were requested.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *ScriptedLLM) next(prompt string) (scripted, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	if s.calls >= len(s.responses) {
		s.calls++
		return scripted{}, false
	}
	r := s.responses[s.calls]
	s.calls++
	return r, true
}

func (s *ScriptedLLM) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := s.next(prompt)
	if !ok {
		// Off the end of the script: answer with an empty object so role
		// parsers still succeed.
		return &core.LLMResponse{Content: "{}"}, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return &core.LLMResponse{Content: r.content}, nil
}

func (s *ScriptedLLM) GenerateWithJSON(ctx context.Context, prompt string, opts ...core.GenerateOption) (map[string]interface{}, error) {
	response, err := s.Generate(ctx, prompt, opts...)
	if err != nil {
		return nil, err
	}
	return utils.ParseJSONResponse(response.Content)
}

func (s *ScriptedLLM) StreamGenerate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.StreamResponse, error) {
	response, err := s.Generate(ctx, prompt, opts...)
	if err != nil {
		return nil, err
	}
	chunks := make(chan core.StreamChunk, 2)
	chunks <- core.StreamChunk{Content: response.Content}
	chunks <- core.StreamChunk{Done: true}
	close(chunks)
	return &core.StreamResponse{ChunkChannel: chunks, Cancel: func() {}}, nil
}

func (s *ScriptedLLM) ProviderName() string {
	return "scripted"
}

func (s *ScriptedLLM) ModelID() string {
	return "scripted-model"
}

func (s *ScriptedLLM) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityCompletion, core.CapabilityJSON}
}
