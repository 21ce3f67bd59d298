package utils

import (
	"reflect"
	"testing"
)

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]interface{}
		wantErr  bool
	}{
		{
			name:     "Valid JSON object",
			input:    `{"key": "value", "number": 42}`,
			expected: map[string]interface{}{"key": "value", "number": float64(42)},
			wantErr:  false,
		},
		{
			name:     "Empty JSON object",
			input:    `{}`,
			expected: map[string]interface{}{},
			wantErr:  false,
		},
		{
			name:     "JSON with nested object",
			input:    `{"outer": {"inner": "value"}}`,
			expected: map[string]interface{}{"outer": map[string]interface{}{"inner": "value"}},
			wantErr:  false,
		},
		{
			name:     "JSON with array",
			input:    `{"array": [1, 2, 3]}`,
			expected: map[string]interface{}{"array": []interface{}{float64(1), float64(2), float64(3)}},
			wantErr:  false,
		},
		{
			name:     "Invalid JSON",
			input:    `{"key": "value"`,
			expected: nil,
			wantErr:  true,
		},
		{
			name:     "Empty string",
			input:    "",
			expected: nil,
			wantErr:  true,
		},
		{
			name:     "Non-object JSON",
			input:    `["array", "items"]`,
			expected: nil,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseJSONResponse(tt.input)

			if (err != nil) != tt.wantErr {
				t.Errorf("ParseJSONResponse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ParseJSONResponse() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestParseLLMJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]interface{}
		wantErr  bool
	}{
		{
			name:     "Bare JSON object",
			input:    `{"answer": "4"}`,
			expected: map[string]interface{}{"answer": "4"},
			wantErr:  false,
		},
		{
			name:     "Surrounding whitespace",
			input:    "  \n{\"answer\": \"4\"}\n  ",
			expected: map[string]interface{}{"answer": "4"},
			wantErr:  false,
		},
		{
			name:     "Markdown fence with language hint",
			input:    "```json\n{\"answer\": \"4\"}\n```",
			expected: map[string]interface{}{"answer": "4"},
			wantErr:  false,
		},
		{
			name:     "Markdown fence without language hint",
			input:    "```\n{\"answer\": \"4\"}\n```",
			expected: map[string]interface{}{"answer": "4"},
			wantErr:  false,
		},
		{
			name:     "Leading prose before object",
			input:    "Here is the result you asked for: {\"answer\": \"4\"} Hope that helps!",
			expected: map[string]interface{}{"answer": "4"},
			wantErr:  false,
		},
		{
			name:    "No JSON at all",
			input:   "I could not produce an answer.",
			wantErr: true,
		},
		{
			name:    "Unbalanced braces",
			input:   `{"answer": "4"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLLMJSON(tt.input)

			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLLMJSON() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ParseLLMJSON() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestExtractFencedBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "No fence", input: "plain text", expected: ""},
		{name: "Unclosed fence", input: "```json\n{}", expected: ""},
		{name: "Closed fence", input: "```json\n{\"a\": 1}\n```", expected: `{"a": 1}`},
		{name: "Fence without hint", input: "```\ncontent\n```", expected: "content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractFencedBlock(tt.input); got != tt.expected {
				t.Errorf("extractFencedBlock() = %q, want %q", got, tt.expected)
			}
		})
	}
}
