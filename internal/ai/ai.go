// Package ai defines the text-generation contract the screening engine talks
// to. Providers live in subpackages.
package ai

import (
	"context"
	"errors"
	"iter"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type Response struct {
	Text  string
	Model string
}

// Generator produces the next assistant turn for a message list. Retries,
// timeouts and quotas belong to the implementation.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
	// Stream yields text chunks. Iteration stops at the first error.
	Stream(ctx context.Context, messages []Message) iter.Seq2[string, error]
}

// StreamHandlers receive the progress of a collected stream. Any of them may
// be nil.
type StreamHandlers struct {
	OnChunk    func(chunk string)
	OnComplete func(text string)
	OnError    func(err error)
}

var ErrEmptyResponse = errors.New("generator returned empty response")

// Collect drains stream, forwarding each chunk and accumulating the text.
// When the stream fails the partial text is discarded and the error returned.
func Collect(stream iter.Seq2[string, error], h StreamHandlers) (string, error) {
	var b strings.Builder
	for chunk, err := range stream {
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			return "", err
		}
		if chunk == "" {
			continue
		}
		b.WriteString(chunk)
		if h.OnChunk != nil {
			h.OnChunk(chunk)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		if h.OnError != nil {
			h.OnError(ErrEmptyResponse)
		}
		return "", ErrEmptyResponse
	}
	if h.OnComplete != nil {
		h.OnComplete(text)
	}
	return text, nil
}

// SplitSystem separates system instructions from the conversation turns.
// Multiple system messages are joined with blank lines.
func SplitSystem(messages []Message) (string, []Message) {
	var (
		system []string
		turns  = make([]Message, 0, len(messages))
	)
	for _, m := range messages {
		if m.Role == RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}
