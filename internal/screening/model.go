// Package screening drives a candidate conversation through the job's
// requirements: it evaluates each answer, bounds clarification turns and
// decides the next phase.
package screening

import (
	"fmt"
	"strings"
	"time"

	"github.com/spigell/driver-screener/internal/requirement"
)

// State is the conversation phase.
type State string

const (
	StatePending             State = "PENDING"
	StateStart               State = "START"
	StateOnRequirements      State = "ON_REQUIREMENTS"
	StateOnFollowUpQuestions State = "ON_FOLLOWUP_QUESTIONS"
	StateDone                State = "DONE"
)

// Decision is the final outcome carried by a finished conversation.
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionDenied   Decision = "DENIED"
	// DecisionWithdrawn is stored as USER_CANCELED.
	DecisionWithdrawn Decision = "USER_CANCELED"
)

type Sender string

const (
	SenderUser      Sender = "USER"
	SenderAssistant Sender = "ASSISTANT"
	SenderSystem    Sender = "SYSTEM"
)

func ParseState(s string) (State, error) {
	switch st := State(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatePending, StateStart, StateOnRequirements, StateOnFollowUpQuestions, StateDone:
		return st, nil
	default:
		return "", fmt.Errorf("unknown conversation state %q", s)
	}
}

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DecisionPending, DecisionApproved, DecisionDenied, DecisionWithdrawn:
		return d, nil
	default:
		return "", fmt.Errorf("unknown screening decision %q", s)
	}
}

// Job is a job posting with its screening requirements.
type Job struct {
	ID                string
	Title             string
	Company           string
	Location          string
	FollowUpQuestions []string
	Requirements      []JobRequirement
}

// JobRequirement is one requirement as the job author declared it. Lower
// priority values are asked first.
type JobRequirement struct {
	ID       string
	Type     requirement.Type
	Priority int
	Criteria requirement.Criteria
}

type Conversation struct {
	ID            string
	JobID         string
	CandidateName string
	State         State
	Decision      Decision
	Active        bool
	// FollowUpIndex is the number of follow-up questions already answered.
	FollowUpIndex int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ConversationRequirement is the screening progress of one job requirement
// within a conversation.
type ConversationRequirement struct {
	ID               string
	ConversationID   string
	JobRequirementID string
	Type             requirement.Type
	Priority         int
	Criteria         requirement.Criteria
	Status           requirement.Status
	Value            requirement.Value
	EvaluatedAt      *time.Time
	// MessageID is the candidate message that last touched the requirement.
	MessageID string
	// FollowUps counts ambiguous answers received so far.
	FollowUps int
}

// Required reports whether a NOT_MET outcome denies the candidate.
func (r ConversationRequirement) Required() bool {
	return r.Criteria != nil && r.Criteria.IsRequired()
}

type Message struct {
	ID             string
	ConversationID string
	Sender         Sender
	Content        string
	CreatedAt      time.Time
}
