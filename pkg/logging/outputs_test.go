package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleOutputColors(t *testing.T) {
	var buf bytes.Buffer
	out := &ConsoleOutput{writer: &buf, color: true}

	err := out.Write(LogEntry{
		Time:     time.Now().UnixNano(),
		Severity: ERROR,
		Message:  "boom",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "\033[31m", "ERROR renders red")
}

func TestConsoleOutputTruncatesPrompts(t *testing.T) {
	var buf bytes.Buffer
	out := &ConsoleOutput{writer: &buf, color: false}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}

	err := out.Write(LogEntry{
		Time:     time.Now().UnixNano(),
		Severity: DEBUG,
		Message:  "llm call",
		Fields:   map[string]interface{}{"prompt": string(long)},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "...")
	assert.Less(t, len(buf.String()), 300)
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	out, err := NewFileOutput(path)
	require.NoError(t, err)

	err = out.Write(LogEntry{
		Time:     time.Now().UnixNano(),
		Severity: INFO,
		Message:  "merge applied",
		TraceID:  "abc123",
		Fields:   map[string]interface{}{"added": 2},
	})
	require.NoError(t, err)
	require.NoError(t, out.Sync())
	require.NoError(t, out.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded fileEntry
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &decoded))
	assert.Equal(t, "merge applied", decoded.Message)
	assert.Equal(t, "INFO", decoded.Severity)
	assert.Equal(t, "abc123", decoded.TraceID)
	assert.EqualValues(t, 2, decoded.Fields["added"])
}

func TestNewConsoleOutputOptions(t *testing.T) {
	out := NewConsoleOutput(true, WithColor(false))
	assert.False(t, out.color)
	assert.Equal(t, os.Stderr, out.writer)
}
