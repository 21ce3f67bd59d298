package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/pkg/core"
)

func readTraceEvents(t *testing.T, path string) []TraceEvent {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []TraceEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event TraceEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestTraceSessionEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.trace.jsonl")

	session, err := NewTraceSession(path)
	require.NoError(t, err)

	require.NoError(t, session.EmitSpanStart("span-1", "", "generate", map[string]any{"question": "2+2?"}))
	require.NoError(t, session.EmitSpanEnd("span-1", map[string]any{"answer": "4"}, nil, 12))
	require.NoError(t, session.EmitStep("span-1", 1, 0, "4", "correct", nil, 40))
	require.NoError(t, session.EmitMerge("span-1", 2, 0, 1, 0, 1, 0))
	require.NoError(t, session.EmitError("span-1", "generation_failed", "malformed output", true))
	require.NoError(t, session.Close())

	events := readTraceEvents(t, path)
	require.Len(t, events, 6)

	assert.Equal(t, TraceEventSession, events[0].Type)
	assert.Equal(t, TraceEventSpan, events[1].Type)
	assert.Equal(t, TraceEventStep, events[3].Type)
	assert.Equal(t, TraceEventMerge, events[4].Type)
	assert.Equal(t, TraceEventError, events[5].Type)

	for _, e := range events {
		assert.Equal(t, session.TraceID(), e.TraceID)
	}

	assert.EqualValues(t, 2, events[4].Data["added"])
	assert.EqualValues(t, 1, events[4].Data["deduplicated"])
}

func TestStartTraceSessionReusesTraceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.trace.jsonl")

	ctx := core.WithExecutionState(context.Background())
	session, err := StartTraceSession(ctx, path, map[string]any{"samples": 4})
	require.NoError(t, err)
	defer session.Close()

	assert.Equal(t, core.GetExecutionState(ctx).GetTraceID(), session.TraceID())

	events := readTraceEvents(t, path)
	require.Len(t, events, 1)
	assert.EqualValues(t, 4, events[0].Data["samples"])
}

func TestTraceOutputRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.trace.jsonl")

	out, err := NewTraceOutput(path, WithTraceRotation(256, 2))
	require.NoError(t, err)

	big := make([]byte, 128)
	for i := range big {
		big[i] = 'a'
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, out.Write(TraceEvent{
			Type:    TraceEventStep,
			TraceID: "t",
			Data:    map[string]interface{}{"pad": string(big)},
		}))
	}
	require.NoError(t, out.Close())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "rotation should leave backup files")
}
