package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	IsAtomic  bool   `json:"is_atomic"`
	Reasoning string `json:"reasoning"`
}

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want payload
	}{
		{
			name: "direct JSON",
			text: `{"is_atomic": true, "reasoning": "single step"}`,
			want: payload{IsAtomic: true, Reasoning: "single step"},
		},
		{
			name: "fenced block",
			text: "Here is my answer:\n```json\n{\"is_atomic\": false, \"reasoning\": \"needs split\"}\n```\nDone.",
			want: payload{IsAtomic: false, Reasoning: "needs split"},
		},
		{
			name: "fence without language tag",
			text: "```\n{\"is_atomic\": true, \"reasoning\": \"ok\"}\n```",
			want: payload{IsAtomic: true, Reasoning: "ok"},
		},
		{
			name: "brace matched in prose",
			text: `The verdict is {"is_atomic": true, "reasoning": "has {braces} inside"} as requested.`,
			want: payload{IsAtomic: true, Reasoning: "has {braces} inside"},
		},
		{
			name: "braces inside strings do not confuse the scanner",
			text: `prefix {"is_atomic": false, "reasoning": "quote \" and } brace"} suffix`,
			want: payload{IsAtomic: false, Reasoning: `quote " and } brace`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			require.NoError(t, ExtractObject(tt.text, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractObjectFailures(t *testing.T) {
	var got payload
	assert.Error(t, ExtractObject("", &got))
	assert.Error(t, ExtractObject("no json here at all", &got))
	assert.Error(t, ExtractObject("{unbalanced", &got))
}

func TestCanonicalMarshalSortsKeys(t *testing.T) {
	a, err := CanonicalMarshal(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	b, err := CanonicalMarshal(map[string]any{"a": 2, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestCanonicalMarshalStableForStructs(t *testing.T) {
	type s struct {
		Z int    `json:"z"`
		A string `json:"a"`
	}
	out, err := CanonicalMarshal(s{Z: 1, A: "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","z":1}`, string(out))
}
