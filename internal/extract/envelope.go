package extract

import (
	"math"
	"strconv"
	"strings"

	"github.com/spigell/driver-screener/internal/requirement"
)

// Envelope keys every structured reply may carry besides the answer fields.
const (
	KeyAssessment         = "assessment"
	KeyConfidence         = "confidence"
	KeyMessage            = "message"
	KeyNeedsClarification = "needs_clarification"
)

// Envelope is the model's own judgment and the text meant for the candidate.
type Envelope struct {
	// Assessment is empty when absent or not a known status.
	Assessment requirement.Status
	// Confidence is nil when absent or outside [0, 1].
	Confidence *float64
	Message    string
}

// Decompose splits obj into its envelope and the residual answer fields.
// obj is not modified.
func Decompose(obj map[string]any) (Envelope, map[string]any) {
	var env Envelope
	if obj == nil {
		return env, nil
	}

	if s, ok := obj[KeyAssessment].(string); ok {
		if st, err := requirement.ParseStatus(s); err == nil {
			env.Assessment = st
		}
	}
	if f, ok := coerceFloat(obj[KeyConfidence]); ok && f >= 0 && f <= 1 {
		env.Confidence = &f
	}
	if s, ok := obj[KeyMessage].(string); ok {
		env.Message = strings.TrimSpace(s)
	}

	residual := make(map[string]any, len(obj))
	for k, v := range obj {
		switch k {
		case KeyAssessment, KeyConfidence, KeyMessage:
			continue
		}
		residual[k] = v
	}
	return env, residual
}

// NeedsClarification reports whether the residual answer explicitly asks for
// another turn.
func NeedsClarification(residual map[string]any) bool {
	switch v := residual[KeyNeedsClarification].(type) {
	case bool:
		return v
	case string:
		lower := strings.ToLower(strings.TrimSpace(v))
		return lower == "true" || lower == "yes"
	default:
		return false
	}
}

func coerceFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
