package utils

import "testing"

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{"non-positive limit hides the text", "I have a class A CDL", 0, ""},
		{"short reply kept", "class A", 10, "class A"},
		{"long reply cut", `{"cdl_class": "A"}`, 6, `{"cdl_...`},
		{"surrounding whitespace trimmed first", "\n  ```json\n", 5, "```js..."},
		{"cuts on runes", "Привет, водитель", 6, "Привет..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
