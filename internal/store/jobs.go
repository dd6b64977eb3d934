package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spigell/driver-screener/internal/requirement"
	"github.com/spigell/driver-screener/internal/screening"
)

// CreateJob stores job with its requirements and follow-up questions. Empty
// ids are generated. Criteria are validated before anything is written.
func (s *Store) CreateJob(ctx context.Context, job screening.Job) (screening.Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	encoded := make([][]byte, len(job.Requirements))
	for i, r := range job.Requirements {
		if err := r.Type.Check(); err != nil {
			return screening.Job{}, err
		}
		if r.Criteria == nil || r.Criteria.Type() != r.Type {
			return screening.Job{}, fmt.Errorf("requirement %d: criteria do not match type %s: %w", i, r.Type, requirement.ErrInvalidCriteria)
		}
		if err := requirement.ValidateCriteria(r.Criteria); err != nil {
			return screening.Job{}, fmt.Errorf("requirement %d: %w", i, err)
		}
		raw, err := requirement.MarshalCriteria(r.Criteria)
		if err != nil {
			return screening.Job{}, fmt.Errorf("requirement %d: %w", i, err)
		}
		encoded[i] = raw
		if r.ID == "" {
			job.Requirements[i].ID = uuid.NewString()
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return screening.Job{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO jobs(id, title, company, location, created_at) VALUES (?,?,?,?,?)`,
		job.ID, job.Title, job.Company, job.Location, s.timestamp()); err != nil {
		return screening.Job{}, fmt.Errorf("insert job: %w", err)
	}
	for i, r := range job.Requirements {
		if _, err := tx.ExecContext(ctx, `INSERT INTO job_requirements(id, job_id, type, priority, position, criteria_json) VALUES (?,?,?,?,?,?)`,
			r.ID, job.ID, string(r.Type), r.Priority, i, string(encoded[i])); err != nil {
			return screening.Job{}, fmt.Errorf("insert job requirement %s: %w", r.Type, err)
		}
	}
	for i, q := range job.FollowUpQuestions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO job_followup_questions(job_id, position, question) VALUES (?,?,?)`,
			job.ID, i, q); err != nil {
			return screening.Job{}, fmt.Errorf("insert follow-up question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return screening.Job{}, err
	}
	return job, nil
}

func (s *Store) Job(ctx context.Context, id string) (screening.Job, error) {
	var job screening.Job
	err := s.db.QueryRowContext(ctx, `SELECT id, title, company, location FROM jobs WHERE id=?`, id).
		Scan(&job.ID, &job.Title, &job.Company, &job.Location)
	if errors.Is(err, sql.ErrNoRows) {
		return job, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return job, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, type, priority, criteria_json FROM job_requirements
WHERE job_id=? ORDER BY priority ASC, position ASC`, id)
	if err != nil {
		return job, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r        screening.JobRequirement
			typ, raw string
		)
		if err := rows.Scan(&r.ID, &typ, &r.Priority, &raw); err != nil {
			return job, err
		}
		r.Type = requirement.Type(typ)
		if r.Criteria, err = requirement.ParseCriteria(r.Type, []byte(raw)); err != nil {
			return job, fmt.Errorf("job requirement %s: %w", r.ID, err)
		}
		job.Requirements = append(job.Requirements, r)
	}
	if err := rows.Err(); err != nil {
		return job, err
	}

	qrows, err := s.db.QueryContext(ctx, `SELECT question FROM job_followup_questions WHERE job_id=? ORDER BY position ASC`, id)
	if err != nil {
		return job, err
	}
	defer qrows.Close()
	for qrows.Next() {
		var q string
		if err := qrows.Scan(&q); err != nil {
			return job, err
		}
		job.FollowUpQuestions = append(job.FollowUpQuestions, q)
	}
	return job, qrows.Err()
}
