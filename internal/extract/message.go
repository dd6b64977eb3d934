package extract

import (
	"regexp"
	"strings"
)

var (
	fencedBlock   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*[\\[{].*?```")
	leadInLine    = regexp.MustCompile(`(?im)^[^\n]*(?:will now provide|assessment|evaluation)[^\n]*:[ \t]*$`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// CleanMessage strips structured payloads and lead-in lines from text so
// that only the conversational part remains.
func CleanMessage(text string) string {
	cleaned := strings.ReplaceAll(text, "\r\n", "\n")
	cleaned = fencedBlock.ReplaceAllString(cleaned, "")
	cleaned = removeObjects(cleaned)
	cleaned = leadInLine.ReplaceAllString(cleaned, "")
	cleaned = blankLineRuns.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

type span struct {
	start, end int
}

// removeObjects deletes balanced objects that look like data and parse,
// working from the last match back so earlier offsets stay valid.
func removeObjects(text string) string {
	var spans []span
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, ok := matchBrace(text, i)
		if !ok {
			continue
		}
		candidate := text[i : end+1]
		if strings.Contains(candidate, `"`) && strings.Contains(candidate, ":") {
			if _, parsed := parseObject(candidate); parsed {
				spans = append(spans, span{start: i, end: end + 1})
				i = end
			}
		}
	}

	for j := len(spans) - 1; j >= 0; j-- {
		text = text[:spans[j].start] + text[spans[j].end:]
	}
	return text
}
