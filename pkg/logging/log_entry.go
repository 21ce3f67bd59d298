package logging

import (
	"github.com/XiaoConstantine/ace-go/pkg/core"
)

// LogEntry represents a structured log record with fields relevant to LLM
// operations.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Trace correlation
	TraceID string

	// LLM-specific fields
	ModelID   string          // The LLM model being used
	TokenInfo *core.TokenInfo // Token usage information
	Latency   int64           // Operation duration in milliseconds

	// General structured data
	Fields map[string]interface{}
}
