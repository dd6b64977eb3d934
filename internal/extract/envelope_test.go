package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/driver-screener/internal/requirement"
)

func TestDecompose(t *testing.T) {
	t.Parallel()

	obj := map[string]any{
		"assessment": "met",
		"confidence": "0.8",
		"message":    "  Thanks, that works.  ",
		"cdl_class":  "A",
		"confirmed":  true,
	}

	env, residual := Decompose(obj)

	assert.Equal(t, requirement.StatusMet, env.Assessment)
	require.NotNil(t, env.Confidence)
	assert.InDelta(t, 0.8, *env.Confidence, 1e-9)
	assert.Equal(t, "Thanks, that works.", env.Message)
	assert.Equal(t, map[string]any{"cdl_class": "A", "confirmed": true}, residual)
	assert.Len(t, obj, 5)
}

func TestDecomposeIgnoresInvalidEnvelope(t *testing.T) {
	t.Parallel()

	env, residual := Decompose(map[string]any{
		"assessment": "maybe",
		"confidence": 1.5,
		"message":    42.0,
		"age":        30.0,
	})

	assert.Empty(t, env.Assessment)
	assert.Nil(t, env.Confidence)
	assert.Empty(t, env.Message)
	assert.Equal(t, map[string]any{"age": 30.0}, residual)
}

func TestDecomposeNil(t *testing.T) {
	t.Parallel()

	env, residual := Decompose(nil)
	assert.Equal(t, Envelope{}, env)
	assert.Nil(t, residual)
}

func TestNeedsClarification(t *testing.T) {
	t.Parallel()

	assert.True(t, NeedsClarification(map[string]any{"needs_clarification": true}))
	assert.True(t, NeedsClarification(map[string]any{"needs_clarification": " Yes "}))
	assert.False(t, NeedsClarification(map[string]any{"needs_clarification": false}))
	assert.False(t, NeedsClarification(map[string]any{"needs_clarification": 1.0}))
	assert.False(t, NeedsClarification(nil))
}
