package screening

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spigell/driver-screener/internal/requirement"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu            sync.Mutex
	seq           int
	jobs          map[string]Job
	conversations map[string]Conversation
	requirements  map[string][]ConversationRequirement
	messages      map[string][]Message

	failUpdates error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:          map[string]Job{},
		conversations: map[string]Conversation{},
		requirements:  map[string][]ConversationRequirement{},
		messages:      map[string][]Message{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// open registers job and creates a PENDING conversation for it.
func (m *memStore) open(job Job, candidate string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == "" {
		job.ID = m.nextID("job")
	}
	for i := range job.Requirements {
		if job.Requirements[i].ID == "" {
			job.Requirements[i].ID = m.nextID("jr")
		}
	}
	m.jobs[job.ID] = job

	conv := Conversation{
		ID:            m.nextID("conv"),
		JobID:         job.ID,
		CandidateName: candidate,
		State:         StatePending,
		Decision:      DecisionPending,
		Active:        true,
		CreatedAt:     time.Now(),
	}
	m.conversations[conv.ID] = conv

	reqs := make([]ConversationRequirement, 0, len(job.Requirements))
	for _, jr := range job.Requirements {
		reqs = append(reqs, ConversationRequirement{
			ID:               m.nextID("req"),
			ConversationID:   conv.ID,
			JobRequirementID: jr.ID,
			Type:             jr.Type,
			Priority:         jr.Priority,
			Criteria:         jr.Criteria,
			Status:           requirement.StatusPending,
		})
	}
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Priority < reqs[j].Priority })
	m.requirements[conv.ID] = reqs
	return conv.ID
}

func (m *memStore) Conversation(_ context.Context, id string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (m *memStore) Job(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (m *memStore) Requirements(_ context.Context, conversationID string) ([]ConversationRequirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ConversationRequirement(nil), m.requirements[conversationID]...), nil
}

func (m *memStore) NextPending(_ context.Context, conversationID string) (*ConversationRequirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requirements[conversationID] {
		if r.Status == requirement.StatusPending {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateRequirement(_ context.Context, u RequirementUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates != nil {
		return m.failUpdates
	}
	for convID, reqs := range m.requirements {
		for i := range reqs {
			if reqs[i].ID != u.ID {
				continue
			}
			reqs[i].Status = u.Status
			reqs[i].Value = u.Value
			reqs[i].EvaluatedAt = u.EvaluatedAt
			reqs[i].MessageID = u.MessageID
			reqs[i].FollowUps = u.FollowUps
			m.requirements[convID] = reqs
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) UpdateConversation(_ context.Context, u ConversationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[u.ID]
	if !ok {
		return ErrNotFound
	}
	c.State = u.State
	c.Decision = u.Decision
	c.Active = u.Active
	c.FollowUpIndex = u.FollowUpIndex
	c.UpdatedAt = time.Now()
	m.conversations[u.ID] = c
	return nil
}

func (m *memStore) SaveMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return Message{}, ErrNotFound
	}
	msg.ID = m.nextID("msg")
	msg.CreatedAt = time.Now()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return msg, nil
}

func (m *memStore) Messages(_ context.Context, conversationID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages[conversationID]...), nil
}

func (m *memStore) requirement(conversationID string, t requirement.Type) ConversationRequirement {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requirements[conversationID] {
		if r.Type == t {
			return r
		}
	}
	return ConversationRequirement{}
}

var _ Store = (*memStore)(nil)
