package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/core"
)

type TraceEventType string

const (
	TraceEventSession TraceEventType = "session"
	TraceEventSpan    TraceEventType = "span"
	TraceEventLLMCall TraceEventType = "llm_call"
	TraceEventStep    TraceEventType = "step"
	TraceEventMerge   TraceEventType = "merge"
	TraceEventError   TraceEventType = "error"
)

// Context key for trace session.
type traceSessionKeyType struct{}

var traceSessionKey = traceSessionKeyType{}

// WithTraceSession adds a TraceSession to the context.
func WithTraceSession(ctx context.Context, session *TraceSession) context.Context {
	return context.WithValue(ctx, traceSessionKey, session)
}

// GetTraceSession retrieves the TraceSession from context.
func GetTraceSession(ctx context.Context) *TraceSession {
	if session, ok := ctx.Value(traceSessionKey).(*TraceSession); ok {
		return session
	}
	return nil
}

type TraceEvent struct {
	Type      TraceEventType         `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	TraceID   string                 `json:"trace_id"`
	SpanID    string                 `json:"span_id,omitempty"`
	ParentID  string                 `json:"parent_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// TraceOutput appends trace events to a JSONL file with optional size-based
// rotation.
type TraceOutput struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	rotateSize int64
	curSize    int64
	maxFiles   int
}

type TraceOutputOption func(*TraceOutput)

func WithTraceRotation(maxSize int64, maxFiles int) TraceOutputOption {
	return func(t *TraceOutput) {
		t.rotateSize = maxSize
		t.maxFiles = maxFiles
	}
}

func NewTraceOutput(path string, opts ...TraceOutputOption) (*TraceOutput, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	info, err := file.Stat()
	var curSize int64 = 0
	if err == nil {
		curSize = info.Size()
	}

	output := &TraceOutput{
		file:    file,
		path:    path,
		curSize: curSize,
	}

	for _, opt := range opts {
		opt(output)
	}

	return output, nil
}

func (t *TraceOutput) Write(event TraceEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trace event: %w", err)
	}
	data = append(data, '\n')

	entrySize := int64(len(data))
	if t.rotateSize > 0 && (t.curSize+entrySize) >= t.rotateSize {
		if err := t.rotate(); err != nil {
			return fmt.Errorf("failed to rotate trace file: %w", err)
		}
		t.curSize = 0
	}

	n, err := t.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write trace event: %w", err)
	}

	t.curSize += int64(n)
	return nil
}

func (t *TraceOutput) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Sync()
}

func (t *TraceOutput) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

func (t *TraceOutput) rotate() error {
	if err := t.file.Close(); err != nil {
		return err
	}

	backupPath := fmt.Sprintf("%s.%s", t.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(t.path, backupPath); err != nil {
		return err
	}

	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	t.file = file
	t.curSize = 0

	if t.maxFiles > 0 {
		if err := t.cleanOldTraceFiles(); err != nil {
			fmt.Fprintf(os.Stderr, "Error cleaning old trace files: %v\n", err)
		}
	}

	return nil
}

func (t *TraceOutput) cleanOldTraceFiles() error {
	dir := filepath.Dir(t.path)
	base := filepath.Base(t.path)

	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var traceFiles []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		name := file.Name()
		if filepath.Base(t.path) != name && len(name) > len(base) && name[:len(base)] == base {
			traceFiles = append(traceFiles, filepath.Join(dir, name))
		}
	}

	if len(traceFiles) > t.maxFiles {
		for i := 0; i < len(traceFiles)-t.maxFiles; i++ {
			if err := os.Remove(traceFiles[i]); err != nil {
				return err
			}
		}
	}

	return nil
}

// TraceSession records the events of one adaptation run (offline epochs or an
// online stream) as a JSONL trace.
type TraceSession struct {
	output    *TraceOutput
	traceID   string
	startTime time.Time
	mu        sync.Mutex
}

func NewTraceSession(path string, opts ...TraceOutputOption) (*TraceSession, error) {
	output, err := NewTraceOutput(path, opts...)
	if err != nil {
		return nil, err
	}

	session := &TraceSession{
		output:    output,
		traceID:   generateTraceID(),
		startTime: time.Now(),
	}

	if err := session.emitSessionStart(nil); err != nil {
		output.Close()
		return nil, err
	}

	return session, nil
}

// StartTraceSession opens a session reusing the trace ID from the execution
// state in ctx when present.
func StartTraceSession(ctx context.Context, path string, metadata map[string]any) (*TraceSession, error) {
	output, err := NewTraceOutput(path)
	if err != nil {
		return nil, err
	}

	traceID := ""
	if state := core.GetExecutionState(ctx); state != nil {
		traceID = state.GetTraceID()
	}
	if traceID == "" {
		traceID = generateTraceID()
	}

	session := &TraceSession{
		output:    output,
		traceID:   traceID,
		startTime: time.Now(),
	}

	if err := session.emitSessionStart(metadata); err != nil {
		output.Close()
		return nil, err
	}

	return session, nil
}

func (s *TraceSession) TraceID() string {
	return s.traceID
}

func (s *TraceSession) emitSessionStart(metadata map[string]any) error {
	data := map[string]interface{}{
		"start_time": s.startTime,
	}
	for k, v := range metadata {
		data[k] = v
	}

	return s.output.Write(TraceEvent{
		Type:      TraceEventSession,
		Timestamp: s.startTime,
		TraceID:   s.traceID,
		Data:      data,
	})
}

func (s *TraceSession) EmitSpanStart(spanID, parentID, operation string, inputs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := map[string]interface{}{
		"event":     "start",
		"operation": operation,
	}
	if inputs != nil {
		data["inputs"] = inputs
	}

	return s.output.Write(TraceEvent{
		Type:      TraceEventSpan,
		Timestamp: time.Now(),
		TraceID:   s.traceID,
		SpanID:    spanID,
		ParentID:  parentID,
		Data:      data,
	})
}

func (s *TraceSession) EmitSpanEnd(spanID string, outputs map[string]any, err error, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := map[string]interface{}{
		"event":       "end",
		"duration_ms": durationMs,
	}
	if outputs != nil {
		data["outputs"] = outputs
	}
	if err != nil {
		data["error"] = err.Error()
	}

	return s.output.Write(TraceEvent{
		Type:      TraceEventSpan,
		Timestamp: time.Now(),
		TraceID:   s.traceID,
		SpanID:    spanID,
		Data:      data,
	})
}

func (s *TraceSession) EmitLLMCall(spanID, provider, model, prompt, response string, usage *core.TokenInfo, latencyMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := map[string]interface{}{
		"provider":   provider,
		"model":      model,
		"prompt":     prompt,
		"response":   response,
		"latency_ms": latencyMs,
	}

	if usage != nil {
		data["usage"] = map[string]interface{}{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		}
	}

	return s.output.Write(TraceEvent{
		Type:      TraceEventLLMCall,
		Timestamp: time.Now(),
		TraceID:   s.traceID,
		SpanID:    spanID,
		Data:      data,
	})
}

// EmitStep records the outcome of one adaptation step.
func (s *TraceSession) EmitStep(spanID string, epoch, sample int, answer, feedback string, err error, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := map[string]interface{}{
		"epoch":       epoch,
		"sample":      sample,
		"answer":      answer,
		"feedback":    feedback,
		"duration_ms": durationMs,
	}
	if err != nil {
		data["error"] = err.Error()
	}

	return s.output.Write(TraceEvent{
		Type:      TraceEventStep,
		Timestamp: time.Now(),
		TraceID:   s.traceID,
		SpanID:    spanID,
		Data:      data,
	})
}

// EmitMerge records the result of applying one delta batch.
func (s *TraceSession) EmitMerge(spanID string, added, updated, tagged, removed, deduplicated, anomalies int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := map[string]interface{}{
		"added":        added,
		"updated":      updated,
		"tagged":       tagged,
		"removed":      removed,
		"deduplicated": deduplicated,
		"anomalies":    anomalies,
	}

	return s.output.Write(TraceEvent{
		Type:      TraceEventMerge,
		Timestamp: time.Now(),
		TraceID:   s.traceID,
		SpanID:    spanID,
		Data:      data,
	})
}

func (s *TraceSession) EmitError(spanID, errorType, message string, recoverable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := map[string]interface{}{
		"error_type":  errorType,
		"message":     message,
		"recoverable": recoverable,
	}

	return s.output.Write(TraceEvent{
		Type:      TraceEventError,
		Timestamp: time.Now(),
		TraceID:   s.traceID,
		SpanID:    spanID,
		Data:      data,
	})
}

func (s *TraceSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.output.Flush(); err != nil {
		return err
	}
	return s.output.Close()
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
