package logging

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/pkg/core"
)

// bufferOutput collects entries in memory for assertions.
type bufferOutput struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (b *bufferOutput) Write(e LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	return nil
}

func (b *bufferOutput) Sync() error  { return nil }
func (b *bufferOutput) Close() error { return nil }

func (b *bufferOutput) all() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func TestLoggerSeverityFiltering(t *testing.T) {
	buf := &bufferOutput{}
	logger := NewLogger(Config{Severity: WARN, Outputs: []Output{buf}})

	ctx := context.Background()
	logger.Debug(ctx, "dropped")
	logger.Info(ctx, "dropped too")
	logger.Warn(ctx, "kept")
	logger.Error(ctx, "kept: %d", 42)

	entries := buf.all()
	require.Len(t, entries, 2)
	assert.Equal(t, WARN, entries[0].Severity)
	assert.Equal(t, "kept", entries[0].Message)
	assert.Equal(t, "kept: 42", entries[1].Message)
	assert.NotEmpty(t, entries[0].File)
}

func TestLoggerDefaultFields(t *testing.T) {
	buf := &bufferOutput{}
	logger := NewLogger(Config{
		Severity:      INFO,
		Outputs:       []Output{buf},
		DefaultFields: map[string]interface{}{"component": "merger"},
	})

	logger.Info(context.Background(), "applied batch")

	entries := buf.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "merger", entries[0].Fields["component"])
}

func TestLoggerTraceCorrelation(t *testing.T) {
	buf := &bufferOutput{}
	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{buf}})

	ctx := core.WithExecutionState(context.Background())
	logger.Info(ctx, "with trace")

	entries := buf.all()
	require.Len(t, entries, 1)
	assert.Equal(t, core.GetExecutionState(ctx).GetTraceID(), entries[0].TraceID)
}

func TestLoggerContextModelID(t *testing.T) {
	buf := &bufferOutput{}
	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{buf}})

	ctx := WithModelID(context.Background(), "test-model")
	logger.Info(ctx, "annotated")

	entries := buf.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "test-model", entries[0].ModelID)
}

func TestPromptCompletion(t *testing.T) {
	buf := &bufferOutput{}
	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{buf}})

	logger.PromptCompletion(context.Background(), "2+2?", "4", &core.TokenInfo{TotalTokens: 7})

	entries := buf.all()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "2+2?")

	// Suppressed above DEBUG
	quiet := NewLogger(Config{Severity: INFO, Outputs: []Output{buf}})
	quiet.PromptCompletion(context.Background(), "p", "c", nil)
	assert.Len(t, buf.all(), 1)
}

func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	t.Cleanup(func() { SetLogger(original) })

	custom := NewLogger(Config{Severity: ERROR})
	SetLogger(custom)
	assert.Same(t, custom, GetLogger())
}

func TestConsoleOutputFormatting(t *testing.T) {
	var buf bytes.Buffer
	out := &ConsoleOutput{writer: &buf, color: false}

	logger := NewLogger(Config{Severity: INFO, Outputs: []Output{out}})
	logger.Info(context.Background(), "playbook saved")

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "playbook saved")
	assert.False(t, strings.Contains(line, "\033["), "no ANSI codes when color disabled")
}
