// Package queue implements the durable, Postgres-backed job queue:
// enqueue, atomic claim via SELECT ... FOR UPDATE SKIP LOCKED,
// completion, and capped-retry dead-lettering.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the lifecycle state of a Job row.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusDeadLettered Status = "dead_lettered"
)

// DefaultMaxAttempts is the attempt budget assigned to a job at
// enqueue time.
const DefaultMaxAttempts = 3

// Job is one row of the job_queue table.
type Job struct {
	ID          uuid.UUID
	ExecutionID uuid.UUID
	WorkflowID  uuid.UUID
	Status      Status
	Attempts    int
	MaxAttempts int
	Payload     json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DB abstracts the database operations this package needs, satisfied
// by *pgxpool.Pool in production and pgxmock in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Queue is the durable job queue port.
type Queue interface {
	Enqueue(ctx context.Context, executionID, workflowID uuid.UUID, payload json.RawMessage) (*Job, error)
	ClaimNext(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, jobID uuid.UUID) error
	Fail(ctx context.Context, jobID uuid.UUID, maxAttempts int) error
}

type pgQueue struct {
	db DB
}

// New builds a Postgres-backed Queue over a live connection pool.
func New(db *pgxpool.Pool) (Queue, error) {
	if db == nil {
		return nil, fmt.Errorf("queue: db connection cannot be nil")
	}
	return &pgQueue{db: db}, nil
}

// NewWithDB builds a Queue over any DB implementation, primarily so
// tests can substitute pgxmock for a live pool.
func NewWithDB(db DB) (Queue, error) {
	if db == nil {
		return nil, fmt.Errorf("queue: db connection cannot be nil")
	}
	return &pgQueue{db: db}, nil
}

// Enqueue creates a new pending job for the given execution.
func (q *pgQueue) Enqueue(ctx context.Context, executionID, workflowID uuid.UUID, payload json.RawMessage) (*Job, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	job := &Job{
		ID:          uuid.New(),
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Status:      StatusPending,
		Attempts:    0,
		MaxAttempts: DefaultMaxAttempts,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	job.UpdatedAt = job.CreatedAt

	err := q.db.QueryRow(timeoutCtx, `
        INSERT INTO job_queue
            (id, execution_id, workflow_id, status, attempts, max_attempts, payload, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
        RETURNING id, execution_id, workflow_id, status, attempts, max_attempts, payload, created_at, updated_at`,
		job.ID, job.ExecutionID, job.WorkflowID, job.Status, job.Attempts, job.MaxAttempts, job.Payload, job.CreatedAt,
	).Scan(&job.ID, &job.ExecutionID, &job.WorkflowID, &job.Status, &job.Attempts, &job.MaxAttempts, &job.Payload, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// ClaimNext atomically selects the oldest pending job (skipping rows
// locked by other claimers), transitions it to processing, and
// increments its attempt counter. Returns nil, nil if no pending job
// exists.
//
// A worker that claims a job and then crashes before Complete or Fail
// leaves it stuck in processing; recovering such orphans via a
// visibility timeout is not implemented here.
func (q *pgQueue) ClaimNext(ctx context.Context) (*Job, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := q.db.BeginTx(timeoutCtx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction for claim: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	job := &Job{}
	err = tx.QueryRow(timeoutCtx, `
        SELECT id, execution_id, workflow_id, status, attempts, max_attempts, payload, created_at, updated_at
        FROM job_queue
        WHERE status = 'pending'
        ORDER BY created_at ASC
        LIMIT 1
        FOR UPDATE SKIP LOCKED`,
	).Scan(&job.ID, &job.ExecutionID, &job.WorkflowID, &job.Status, &job.Attempts, &job.MaxAttempts, &job.Payload, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("select next job: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(timeoutCtx, `
        UPDATE job_queue
        SET status = 'processing', attempts = attempts + 1, updated_at = $1
        WHERE id = $2`,
		now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	job.Status = StatusProcessing
	job.Attempts++
	job.UpdatedAt = now
	return job, nil
}

// Complete marks a job completed. Idempotent on already-completed rows.
func (q *pgQueue) Complete(ctx context.Context, jobID uuid.UUID) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := q.db.Exec(timeoutCtx, `
        UPDATE job_queue SET status = 'completed', updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail returns a job to pending for redelivery, or dead-letters it if
// its attempt budget is exhausted. attempts is never decremented.
func (q *pgQueue) Fail(ctx context.Context, jobID uuid.UUID, maxAttempts int) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := q.db.Exec(timeoutCtx, `
        UPDATE job_queue
        SET status = CASE WHEN attempts >= $1 THEN 'dead_lettered' ELSE 'pending' END,
            updated_at = $2
        WHERE id = $3`,
		maxAttempts, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}
