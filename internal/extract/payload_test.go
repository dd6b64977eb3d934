package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want map[string]any
	}{
		{
			name: "trailing comma",
			text: `Thanks! {"cdl_class":"A","confirmed":true,}`,
			want: map[string]any{"cdl_class": "A", "confirmed": true},
		},
		{
			name: "fenced block",
			text: "Great.\n```json\n{\"years_experience\": 4, \"meets_requirement\": true}\n```",
			want: map[string]any{"years_experience": float64(4), "meets_requirement": true},
		},
		{
			name: "nested object",
			text: `prefix {"outer": {"inner": 2}} suffix`,
			want: map[string]any{"outer": map[string]any{"inner": float64(2)}},
		},
		{
			name: "prose braces before payload",
			text: `I {think} so. {"cdl_class":"B","confirmed":true}`,
			want: map[string]any{"cdl_class": "B", "confirmed": true},
		},
		{
			name: "unterminated",
			text: `{"cdl_class": "A", "confirmed": true`,
			want: map[string]any{"cdl_class": "A", "confirmed": true},
		},
		{
			name: "python literals and single quotes",
			text: `{'hazmat': True, 'tanker': None}`,
			want: map[string]any{"hazmat": true, "tanker": nil},
		},
		{
			name: "unquoted keys",
			text: `{years_experience: 5, meets_requirement: true}`,
			want: map[string]any{"years_experience": float64(5), "meets_requirement": true},
		},
		{
			name: "brace inside string",
			text: `{"message": "use } carefully", "ok": true}`,
			want: map[string]any{"message": "use } carefully", "ok": true},
		},
		{
			name: "no object",
			text: "I have a class A license",
		},
		{
			name: "array only",
			text: `[1, 2, 3]`,
		},
		{
			name: "empty",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Object(tt.text)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCandidatesDeduplicatesFencedBlock(t *testing.T) {
	t.Parallel()

	got := Candidates("```json\n{\"a\":1}\n```")
	assert.Equal(t, []string{`{"a":1}`}, got)
}

func TestCandidatesBounded(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < maxCandidates*2; i++ {
		b.WriteString(`{"n":`)
		b.WriteString(strings.Repeat("1", i+1))
		b.WriteString("} ")
	}
	assert.Len(t, Candidates(b.String()), maxCandidates)
}

func TestRepair(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma", `{"a":1,}`, `{"a":1}`},
		{"single quotes and bare key", `{a: 'x'}`, `{"a": "x"}`},
		{"unclosed array and object", `{"a": [1, 2,`, `{"a": [1, 2]}`},
		{"mismatched closer", `{"a": [1}`, `{"a": [1]}`},
		{"stray closer", `{"a": 1}}`, `{"a": 1}`},
		{"leading plus", `{"n": +3}`, `{"n": 3}`},
		{"bare value with spaces", `{"state": Texas panhandle}`, `{"state": "Texas panhandle"}`},
		{"valid input unchanged", `{"a": true, "b": null}`, `{"a": true, "b": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Repair(tt.in))
		})
	}
}

func TestRepairProducesValidJSON(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"{\"a\": 1 // note\n}",
		`{"a": /* inline */ 2}`,
		"{'msg': 'line one\nline two'}",
		`{"quote": 'he said "yes"'}`,
		`{"a": undefined, "b": NaN, "c": FALSE}`,
	}
	for _, in := range inputs {
		out := Repair(in)
		require.True(t, json.Valid([]byte(out)), "input %q repaired to %q", in, out)
	}
}
