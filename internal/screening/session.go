package screening

import (
	"context"
	"fmt"

	"github.com/spigell/driver-screener/internal/prompt"
	"github.com/spigell/driver-screener/internal/requirement"
)

// Session is the state one inbound message is handled against. It is built
// per request and never shared between requests.
type Session struct {
	Conversation Conversation
	Job          Job
	// Requirements are ordered by ascending priority.
	Requirements []ConversationRequirement
	// Window limits screening to the first N requirements. Zero means all.
	Window int
	// Current is the requirement the candidate is answering, nil when no
	// requirement is pending.
	Current *ConversationRequirement
}

// LoadSession reads the conversation, its job and its requirements. Every
// requirement's criteria are validated so configuration errors surface
// before any answer is evaluated.
func LoadSession(ctx context.Context, store Store, conversationID string, window int) (*Session, error) {
	conv, err := store.Conversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	job, err := store.Job(ctx, conv.JobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", conv.JobID, err)
	}
	reqs, err := store.Requirements(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}
	for _, r := range reqs {
		if err := r.Type.Check(); err != nil {
			return nil, err
		}
		if err := requirement.ValidateCriteria(r.Criteria); err != nil {
			return nil, fmt.Errorf("requirement %s: %w", r.ID, err)
		}
	}

	s := &Session{Conversation: conv, Job: job, Requirements: reqs, Window: window}

	next, err := store.NextPending(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("next pending requirement: %w", err)
	}
	if next != nil && s.inWindow(next.ID) {
		s.Current = next
	}
	return s, nil
}

// Screened returns the requirements inside the window.
func (s *Session) Screened() []ConversationRequirement {
	if s.Window <= 0 || s.Window >= len(s.Requirements) {
		return s.Requirements
	}
	return s.Requirements[:s.Window]
}

// NextPending returns the first PENDING requirement inside the window.
func (s *Session) NextPending() *ConversationRequirement {
	for _, r := range s.Screened() {
		if r.Status == requirement.StatusPending {
			return &r
		}
	}
	return nil
}

// Apply records out on the requirement with the given id.
func (s *Session) Apply(id string, out Outcome) {
	for i := range s.Requirements {
		if s.Requirements[i].ID != id {
			continue
		}
		s.Requirements[i].Status = out.Status
		s.Requirements[i].Value = out.Value
		s.Requirements[i].EvaluatedAt = out.EvaluatedAt
		s.Requirements[i].FollowUps = out.FollowUps
	}
}

// Progress counts resolved requirements inside the window.
func (s *Session) Progress() prompt.Progress {
	screened := s.Screened()
	p := prompt.Progress{Total: len(screened)}
	for _, r := range screened {
		if r.Status.Resolved() {
			p.Resolved++
		}
	}
	return p
}

// Outcomes summarizes the screened requirements for the closing message.
func (s *Session) Outcomes() []prompt.Outcome {
	screened := s.Screened()
	out := make([]prompt.Outcome, 0, len(screened))
	for _, r := range screened {
		out = append(out, prompt.Outcome{Type: r.Type, Status: r.Status})
	}
	return out
}

func (s *Session) PromptJob() prompt.Job {
	return prompt.Job{Title: s.Job.Title, Company: s.Job.Company, Location: s.Job.Location}
}

func (s *Session) inWindow(id string) bool {
	for _, r := range s.Screened() {
		if r.ID == id {
			return true
		}
	}
	return false
}

func promptRequirement(r ConversationRequirement) prompt.Requirement {
	return prompt.Requirement{Type: r.Type, Criteria: r.Criteria}
}
