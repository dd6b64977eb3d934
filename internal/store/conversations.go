package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spigell/driver-screener/internal/requirement"
	"github.com/spigell/driver-screener/internal/screening"
)

// ErrResolved is returned when an update would change a resolved status.
var ErrResolved = errors.New("requirement already resolved")

const requirementColumns = `cr.id, cr.conversation_id, cr.job_requirement_id, jr.type, jr.priority, jr.criteria_json,
cr.status, cr.value_json, cr.evaluated_at, cr.message_id, cr.followup_count`

const requirementOrder = `ORDER BY jr.priority ASC, jr.position ASC`

// CreateConversation opens a PENDING conversation for jobID with one
// PENDING requirement per job requirement.
func (s *Store) CreateConversation(ctx context.Context, jobID, candidate string) (screening.Conversation, error) {
	now := s.now().UTC()
	conv := screening.Conversation{
		ID:            uuid.NewString(),
		JobID:         jobID,
		CandidateName: candidate,
		State:         screening.StatePending,
		Decision:      screening.DecisionPending,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return screening.Conversation{}, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE id=?`, jobID).Scan(&exists); err != nil {
		return screening.Conversation{}, err
	}
	if exists == 0 {
		return screening.Conversation{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO conversations(id, job_id, candidate_name, state, decision, is_active, followup_index, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		conv.ID, jobID, candidate, string(conv.State), string(conv.Decision), 1, 0, formatTime(now), formatTime(now)); err != nil {
		return screening.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM job_requirements WHERE job_id=? ORDER BY priority ASC, position ASC`, jobID)
	if err != nil {
		return screening.Conversation{}, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return screening.Conversation{}, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return screening.Conversation{}, err
	}

	for _, jrID := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_requirements(id, conversation_id, job_requirement_id, status, followup_count)
VALUES (?,?,?,?,0)`, uuid.NewString(), conv.ID, jrID, string(requirement.StatusPending)); err != nil {
			return screening.Conversation{}, fmt.Errorf("insert conversation requirement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return screening.Conversation{}, err
	}
	return conv, nil
}

func (s *Store) Conversation(ctx context.Context, id string) (screening.Conversation, error) {
	var (
		c                    screening.Conversation
		state, decision      string
		active               int
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, job_id, candidate_name, state, decision, is_active, followup_index, created_at, updated_at
FROM conversations WHERE id=?`, id).
		Scan(&c.ID, &c.JobID, &c.CandidateName, &state, &decision, &active, &c.FollowUpIndex, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return c, err
	}

	if c.State, err = screening.ParseState(state); err != nil {
		return c, err
	}
	if c.Decision, err = screening.ParseDecision(decision); err != nil {
		return c, err
	}
	c.Active = active != 0
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, fmt.Errorf("conversation created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return c, fmt.Errorf("conversation updated_at: %w", err)
	}
	return c, nil
}

// Conversations lists conversations of a job, newest first. An empty jobID
// lists all.
func (s *Store) Conversations(ctx context.Context, jobID string) ([]screening.Conversation, error) {
	query := `SELECT id FROM conversations`
	args := []any{}
	if jobID != "" {
		query += ` WHERE job_id=?`
		args = append(args, jobID)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]screening.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.Conversation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) UpdateConversation(ctx context.Context, u screening.ConversationUpdate) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET state=?, decision=?, is_active=?, followup_index=?, updated_at=? WHERE id=?`,
		string(u.State), string(u.Decision), boolToInt(u.Active), u.FollowUpIndex, s.timestamp(), u.ID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return expectOne(res, "conversation", u.ID)
}

func (s *Store) Requirements(ctx context.Context, conversationID string) ([]screening.ConversationRequirement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+requirementColumns+`
FROM conversation_requirements cr JOIN job_requirements jr ON jr.id = cr.job_requirement_id
WHERE cr.conversation_id=? `+requirementOrder, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []screening.ConversationRequirement
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) NextPending(ctx context.Context, conversationID string) (*screening.ConversationRequirement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requirementColumns+`
FROM conversation_requirements cr JOIN job_requirements jr ON jr.id = cr.job_requirement_id
WHERE cr.conversation_id=? AND cr.status=? `+requirementOrder+` LIMIT 1`, conversationID, string(requirement.StatusPending))
	r, err := scanRequirement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRequirement writes the update in one transaction. A resolved status
// can be rewritten only with the same status.
func (s *Store) UpdateRequirement(ctx context.Context, u screening.RequirementUpdate) error {
	var value sql.NullString
	if u.Value != nil {
		raw, err := json.Marshal(u.Value)
		if err != nil {
			return fmt.Errorf("encode requirement value: %w", err)
		}
		value = sql.NullString{String: string(raw), Valid: true}
	}
	var evaluatedAt sql.NullString
	if u.EvaluatedAt != nil {
		evaluatedAt = sql.NullString{String: formatTime(*u.EvaluatedAt), Valid: true}
	}
	var messageID sql.NullString
	if u.MessageID != "" {
		messageID = sql.NullString{String: u.MessageID, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM conversation_requirements WHERE id=?`, u.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("requirement %s: %w", u.ID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !requirement.Status(current).CanTransition(u.Status) {
		return fmt.Errorf("requirement %s is %s: %w", u.ID, current, ErrResolved)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversation_requirements
SET status=?, value_json=?, evaluated_at=?, message_id=?, followup_count=? WHERE id=?`,
		string(u.Status), value, evaluatedAt, messageID, u.FollowUps, u.ID); err != nil {
		return fmt.Errorf("update requirement: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SaveMessage(ctx context.Context, m screening.Message) (screening.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO messages(id, conversation_id, sender, content, created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.ConversationID, string(m.Sender), m.Content, formatTime(m.CreatedAt)); err != nil {
		return screening.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Messages returns the conversation's messages in insertion order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]screening.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, conversation_id, sender, content, created_at FROM messages
WHERE conversation_id=? ORDER BY rowid ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []screening.Message
	for rows.Next() {
		var (
			m             screening.Message
			sender, stamp string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Content, &stamp); err != nil {
			return nil, err
		}
		m.Sender = screening.Sender(sender)
		if m.CreatedAt, err = parseTime(stamp); err != nil {
			return nil, fmt.Errorf("message created_at: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequirement(row scanner) (screening.ConversationRequirement, error) {
	var (
		r                     screening.ConversationRequirement
		typ, criteria, status string
		value, evaluatedAt    sql.NullString
		messageID             sql.NullString
	)
	if err := row.Scan(&r.ID, &r.ConversationID, &r.JobRequirementID, &typ, &r.Priority, &criteria,
		&status, &value, &evaluatedAt, &messageID, &r.FollowUps); err != nil {
		return r, err
	}

	var err error
	r.Type = requirement.Type(typ)
	if r.Criteria, err = requirement.ParseCriteria(r.Type, []byte(criteria)); err != nil {
		return r, fmt.Errorf("requirement %s: %w", r.ID, err)
	}
	if r.Status, err = requirement.ParseStatus(status); err != nil {
		return r, err
	}
	if value.Valid {
		if r.Value, err = requirement.UnmarshalValue(r.Type, []byte(value.String)); err != nil {
			return r, fmt.Errorf("requirement %s value: %w", r.ID, err)
		}
	}
	if evaluatedAt.Valid {
		t, err := parseTime(evaluatedAt.String)
		if err != nil {
			return r, fmt.Errorf("requirement %s evaluated_at: %w", r.ID, err)
		}
		r.EvaluatedAt = &t
	}
	r.MessageID = messageID.String
	return r, nil
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
