package ai

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func chunks(parts []string, failAt int, failErr error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, p := range parts {
			if i == failAt {
				yield("", failErr)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestCollect(t *testing.T) {
	var (
		forwarded []string
		completed string
	)
	text, err := Collect(chunks([]string{"Hello", "", " there", "!"}, -1, nil), StreamHandlers{
		OnChunk:    func(c string) { forwarded = append(forwarded, c) },
		OnComplete: func(s string) { completed = s },
		OnError:    func(error) { t.Fatal("unexpected error callback") },
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello there!", text)
	assert.Equal(t, []string{"Hello", " there", "!"}, forwarded)
	assert.Equal(t, "Hello there!", completed)
}

func TestCollectDiscardsOnError(t *testing.T) {
	boom := errors.New("connection reset")
	var (
		forwarded []string
		reported  error
		completed bool
	)

	text, err := Collect(chunks([]string{"partial ", "answer", "never"}, 2, boom), StreamHandlers{
		OnChunk:    func(c string) { forwarded = append(forwarded, c) },
		OnComplete: func(string) { completed = true },
		OnError:    func(err error) { reported = err },
	})

	require.ErrorIs(t, err, boom)
	assert.Empty(t, text)
	assert.Equal(t, []string{"partial ", "answer"}, forwarded)
	assert.ErrorIs(t, reported, boom)
	assert.False(t, completed)
}

func TestCollectEmpty(t *testing.T) {
	_, err := Collect(chunks([]string{" ", ""}, -1, nil), StreamHandlers{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSplitSystem(t *testing.T) {
	system, turns := SplitSystem([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "  "},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleSystem, Content: "ask about CDL"},
	})

	assert.Equal(t, "be brief\n\nask about CDL", system)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}, turns)
}

func TestScripted(t *testing.T) {
	ctx := context.Background()
	s := NewScripted("first reply", "second reply here")

	resp, err := s.Generate(ctx, []Message{{Role: RoleUser, Content: "a"}})
	require.NoError(t, err)
	assert.Equal(t, "first reply", resp.Text)

	var forwarded []string
	text, err := Collect(s.Stream(ctx, nil), StreamHandlers{OnChunk: func(c string) { forwarded = append(forwarded, c) }})
	require.NoError(t, err)
	assert.Equal(t, "second reply here", text)
	assert.Equal(t, []string{"second ", "reply ", "here"}, forwarded)

	_, err = s.Generate(ctx, nil)
	assert.ErrorIs(t, err, ErrScriptExhausted)

	s.Fallback = "ok"
	resp, err = s.Generate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Len(t, s.Calls(), 4)
}

func TestScriptedHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScripted("unused")
	_, err := s.Generate(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Collect(s.Stream(ctx, nil), StreamHandlers{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Calls())
}
