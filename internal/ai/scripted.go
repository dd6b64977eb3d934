package ai

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
)

// ErrScriptExhausted is returned when a Scripted generator runs out of replies.
var ErrScriptExhausted = errors.New("scripted generator has no replies left")

// Scripted replays canned replies in order. It backs transcript replays and
// tests. Safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	// Fallback is returned once replies are exhausted. Empty means error.
	Fallback string
	calls    [][]Message
}

func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) next(messages []Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, append([]Message(nil), messages...))
	if len(s.replies) == 0 {
		if s.Fallback == "" {
			return "", ErrScriptExhausted
		}
		return s.Fallback, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *Scripted) Generate(ctx context.Context, messages []Message) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	text, err := s.next(messages)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text, Model: "scripted"}, nil
}

// Stream yields the next reply word by word.
func (s *Scripted) Stream(ctx context.Context, messages []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}
		text, err := s.next(messages)
		if err != nil {
			yield("", err)
			return
		}
		for _, chunk := range strings.SplitAfter(text, " ") {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Calls returns the message lists received so far.
func (s *Scripted) Calls() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Message(nil), s.calls...)
}
