package screening

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/driver-screener/internal/requirement"
)

var (
	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound            = errors.New("not found")
	ErrConversationClosed  = errors.New("conversation is closed")
	ErrConversationStarted = errors.New("conversation already started")
	ErrNotStarted          = errors.New("conversation has not started")
)

// Store is the persistence the engine relies on. Implementations own their
// consistency; the engine never holds locks.
type Store interface {
	Conversation(ctx context.Context, id string) (Conversation, error)
	Job(ctx context.Context, id string) (Job, error)
	// Requirements lists the conversation's requirements by ascending
	// priority. Ties keep a stable order.
	Requirements(ctx context.Context, conversationID string) ([]ConversationRequirement, error)
	// NextPending returns the PENDING requirement with the lowest priority,
	// or nil when none is left.
	NextPending(ctx context.Context, conversationID string) (*ConversationRequirement, error)
	// UpdateRequirement writes all fields of u in one step.
	UpdateRequirement(ctx context.Context, u RequirementUpdate) error
	UpdateConversation(ctx context.Context, u ConversationUpdate) error
	SaveMessage(ctx context.Context, m Message) (Message, error)
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}

type RequirementUpdate struct {
	ID          string
	Status      requirement.Status
	Value       requirement.Value
	EvaluatedAt *time.Time
	MessageID   string
	FollowUps   int
}

type ConversationUpdate struct {
	ID            string
	State         State
	Decision      Decision
	Active        bool
	FollowUpIndex int
}
