package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json fence with surrounding prose",
			input:    "Sure! ```json\n{\"type\":\"explore\", \"unitOverview\": \"x\"}\n``` Hope that helps!",
			expected: `{"type":"explore", "unitOverview": "x"}`,
		},
		{
			name:     "uppercase json tag",
			input:    "```JSON\n  {\"a\": 1}  \n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "json fence preferred over earlier generic fence",
			input:    "```\n{\"wrong\": true}\n```\n```json\n{\"right\": true}\n```",
			expected: `{"right": true}`,
		},
		{
			name:     "generic fence with language line",
			input:    "Here:\n```javascript\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "generic fence without language line",
			input:    "```\n{\"a\": [1, 2]}\n```",
			expected: `{"a": [1, 2]}`,
		},
		{
			name:     "prose fence skipped",
			input:    "```text\nno json here\n```\n```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "bare braces in prose",
			input:    "The answer is {\"a\": {\"b\": 2}} as requested.",
			expected: `{"a": {"b": 2}}`,
		},
		{
			name:     "unterminated fence falls back to braces",
			input:    "```json\n{\"a\": 1}",
			expected: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtractJSON_FencedInteriorIsReturnedTrimmed(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"type":"values","values":[{"name":"Respect"}]}`,
		"{\n  \"nested\": {\"deep\": [1, 2, 3]}\n}",
	}
	for _, body := range bodies {
		got, err := ExtractJSON("prefix\n```json\n\n  " + body + "\t\n```\nsuffix")
		require.NoError(t, err)
		assert.Equal(t, body, got)
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	for _, input := range []string{"", "I cannot help with that.", "} reversed {"} {
		_, err := ExtractJSON(input)
		var target *NoJSONFoundError
		require.ErrorAs(t, err, &target, input)
	}
}

func TestNoJSONFoundError_Message(t *testing.T) {
	assert.Contains(t, (&NoJSONFoundError{}).Error(), "empty")
	assert.Contains(t, (&NoJSONFoundError{Excerpt: "hello"}).Error(), `"hello"`)
}
