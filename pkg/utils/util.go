package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONResponse attempts to parse a string response as JSON.
func ParseJSONResponse(response string) (map[string]interface{}, error) {
	var result map[string]interface{}
	err := json.Unmarshal([]byte(response), &result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response as JSON: %w", err)
	}
	return result, nil
}

// ParseLLMJSON parses a JSON object out of raw model output. Models wrap
// objects in markdown fences or lead with prose despite instructions, so the
// raw text is tried first and then the outermost braced region.
func ParseLLMJSON(response string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(response)
	if result, err := ParseJSONResponse(trimmed); err == nil {
		return result, nil
	}

	if fenced := extractFencedBlock(trimmed); fenced != "" {
		if result, err := ParseJSONResponse(fenced); err == nil {
			return result, nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return ParseJSONResponse(trimmed[start : end+1])
	}
	return nil, fmt.Errorf("no JSON object found in response")
}

// extractFencedBlock returns the contents of the first markdown code fence,
// or "" when there is none.
func extractFencedBlock(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		// Drop the language hint on the fence line.
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
