package qpu

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/sentinel/errors"
)

// Job is a persisted record of one backend submission.
type Job struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	ProgramID   string         `json:"program_id"`
	Backend     string         `json:"backend"`
	Params      map[string]any `json:"params"`
	Mode        string         `json:"mode"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// Store persists submissions in the backend_jobs table.
type Store struct {
	db *sql.DB
}

// NewStore creates a job store on a migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts a job. Recording the same id twice fails.
func (s *Store) Record(ctx context.Context, job Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return errors.Wrapf(err, "failed to encode params for job %s", job.ID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backend_jobs (id, session_id, program_id, backend, params, mode, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SessionID, job.ProgramID, job.Backend, string(params), job.Mode, job.SubmittedAt.UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to record job %s", job.ID)
	}
	return nil
}

// List returns up to limit jobs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, program_id, backend, params, mode, submitted_at
		FROM backend_jobs
		ORDER BY submitted_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query backend jobs")
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		var params string
		if err := rows.Scan(&job.ID, &job.SessionID, &job.ProgramID, &job.Backend, &params, &job.Mode, &job.SubmittedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan backend job")
		}
		if err := json.Unmarshal([]byte(params), &job.Params); err != nil {
			return nil, errors.Wrapf(err, "failed to decode params of job %s", job.ID)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate backend jobs")
	}
	return jobs, nil
}
