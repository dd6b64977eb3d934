// Package extract recovers the structured answer a model embeds in its reply
// and separates it from the conversational text shown to the candidate.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// maxCandidates bounds the brace scan on pathological inputs.
const maxCandidates = 64

var fencedObject = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")

// Object returns the first JSON object found in text, or nil. Candidates are
// tried in order: the fenced block, then every brace-balanced substring by
// start position. Each candidate is parsed strictly and, failing that, after
// Repair. Arrays and scalars are skipped.
func Object(text string) map[string]any {
	for _, candidate := range Candidates(text) {
		if obj, ok := parseObject(candidate); ok {
			return obj
		}
	}
	return nil
}

// Candidates lists the substrings of text that may hold a JSON object.
func Candidates(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) bool {
		if _, dup := seen[s]; dup {
			return true
		}
		seen[s] = struct{}{}
		out = append(out, s)
		return len(out) < maxCandidates
	}

	if m := fencedObject.FindStringSubmatch(text); m != nil {
		add(m[1])
	}

	truncated := false
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, ok := matchBrace(text, i)
		if !ok {
			// An unterminated object is kept once so Repair can close it.
			if !truncated {
				truncated = true
				if !add(text[i:]) {
					break
				}
			}
			continue
		}
		if !add(text[i : end+1]) {
			break
		}
	}
	return out
}

// matchBrace returns the index of the brace closing the one at start,
// skipping braces inside string literals.
func matchBrace(s string, start int) (int, bool) {
	var (
		depth    int
		inString bool
		escape   bool
	)
	for i := start; i < len(s); i++ {
		b := s[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func parseObject(candidate string) (map[string]any, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil, false
	}
	if obj, ok := decodeObject(candidate); ok {
		return obj, true
	}
	repaired := Repair(candidate)
	if repaired == candidate {
		return nil, false
	}
	return decodeObject(repaired)
}

func decodeObject(s string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return nil, false
	}
	return obj, true
}
