// Package storage persists workflows, their executions, and per-node
// execution results over PostgreSQL via pgx.
package storage

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

// DB abstracts the database operations used by the storage layer.
// Satisfied by *pgxpool.Pool in production and pgxmock in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store defines the interface for workflow, execution and
// node-execution persistence. This abstraction keeps the engine and
// HTTP collaborator decoupled from pgx, and testable with a mock.
type Store interface {
	GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error)
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error
	ListWorkflows(ctx context.Context) ([]*Workflow, error)

	CreateExecution(ctx context.Context, workflowID uuid.UUID) (*Execution, error)
	UpdateExecutionStatus(ctx context.Context, executionID uuid.UUID, status ExecutionStatus, finished bool) error
	GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error)

	InsertNodeExecution(ctx context.Context, executionID uuid.UUID, nodeID string, input, output json.RawMessage, status NodeExecutionStatus, startedAt time.Time) (*NodeExecution, error)
	ListNodeExecutions(ctx context.Context, executionID uuid.UUID) ([]*NodeExecution, error)
}

// pgStore implements Store using PostgreSQL.
type pgStore struct {
	db DB
}

// New creates a PostgreSQL-backed Store over a live connection pool.
func New(db *pgxpool.Pool) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: db connection cannot be nil")
	}
	return &pgStore{db: db}, nil
}

// NewWithDB builds a Store over any DB implementation, primarily so
// tests can substitute pgxmock for a live pool.
func NewWithDB(db DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: db connection cannot be nil")
	}
	return &pgStore{db: db}, nil
}

// GetWorkflow retrieves a workflow by id in a read-only REPEATABLE READ
// transaction. The other reads in this package (ListWorkflows,
// GetExecution, ListNodeExecutions) run as single statements without
// an explicit transaction.
func (s *pgStore) GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	wf := &Workflow{ID: id}
	var definitionJSON []byte
	err = tx.QueryRow(timeoutCtx, `
        SELECT name, definition, created_at
        FROM workflows
        WHERE id = $1`, id).Scan(&wf.Name, &definitionJSON, &wf.CreatedAt)
	if err != nil {
		return nil, err // pgx.ErrNoRows if not found
	}

	if err := json.Unmarshal(definitionJSON, &wf.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal workflow definition: %w", err)
	}

	return wf, tx.Commit(timeoutCtx)
}

// CreateWorkflow inserts a new workflow in a READ COMMITTED transaction.
func (s *pgStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now().UTC()
	}

	definitionJSON, err := json.Marshal(wf.Definition)
	if err != nil {
		return fmt.Errorf("marshal workflow definition: %w", err)
	}

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction for create: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	_, err = tx.Exec(timeoutCtx, `
        INSERT INTO workflows (id, name, definition, created_at)
        VALUES ($1, $2, $3, $4)`,
		wf.ID, wf.Name, definitionJSON, wf.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}

	return tx.Commit(timeoutCtx)
}

// DeleteWorkflow hard-deletes a workflow row. Returns pgx.ErrNoRows if
// the workflow does not exist.
func (s *pgStore) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction for delete: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	result, err := tx.Exec(timeoutCtx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(timeoutCtx)
}

// ListWorkflows returns every workflow, ordered by creation time.
func (s *pgStore) ListWorkflows(ctx context.Context) ([]*Workflow, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.Query(timeoutCtx, `
        SELECT id, name, definition, created_at
        FROM workflows
        ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		wf := &Workflow{}
		var definitionJSON []byte
		if err := rows.Scan(&wf.ID, &wf.Name, &definitionJSON, &wf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow row: %w", err)
		}
		if err := json.Unmarshal(definitionJSON, &wf.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal workflow definition: %w", err)
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateExecution inserts a new WorkflowExecution row in the pending
// state.
func (s *pgStore) CreateExecution(ctx context.Context, workflowID uuid.UUID) (*Execution, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exec := &Execution{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Status:     ExecutionPending,
		StartedAt:  time.Now().UTC(),
	}

	_, err := s.db.Exec(timeoutCtx, `
        INSERT INTO workflow_executions (id, workflow_id, status, started_at)
        VALUES ($1, $2, $3, $4)`,
		exec.ID, exec.WorkflowID, exec.Status, exec.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("insert workflow execution: %w", err)
	}

	return exec, nil
}

// UpdateExecutionStatus transitions an execution's status; when
// finished is true, finished_at is stamped with the current time.
func (s *pgStore) UpdateExecutionStatus(ctx context.Context, executionID uuid.UUID, status ExecutionStatus, finished bool) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	if finished {
		_, err = s.db.Exec(timeoutCtx, `
            UPDATE workflow_executions
            SET status = $1, finished_at = $2
            WHERE id = $3`,
			status, time.Now().UTC(), executionID)
	} else {
		_, err = s.db.Exec(timeoutCtx, `
            UPDATE workflow_executions
            SET status = $1
            WHERE id = $2`,
			status, executionID)
	}
	if err != nil {
		return fmt.Errorf("update execution status: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by id.
func (s *pgStore) GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exec := &Execution{ID: id}
	err := s.db.QueryRow(timeoutCtx, `
        SELECT workflow_id, status, started_at, finished_at
        FROM workflow_executions
        WHERE id = $1`, id).Scan(&exec.WorkflowID, &exec.Status, &exec.StartedAt, &exec.FinishedAt)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// InsertNodeExecution persists the terminal outcome of one node
// attempt.
func (s *pgStore) InsertNodeExecution(ctx context.Context, executionID uuid.UUID, nodeID string, input, output json.RawMessage, status NodeExecutionStatus, startedAt time.Time) (*NodeExecution, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ne := &NodeExecution{
		ID:          uuid.New(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Input:       input,
		Output:      output,
		Status:      status,
		StartedAt:   startedAt,
		FinishedAt:  time.Now().UTC(),
	}

	_, err := s.db.Exec(timeoutCtx, `
        INSERT INTO node_executions (id, execution_id, node_id, input, output, status, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ne.ID, ne.ExecutionID, ne.NodeID, ne.Input, ne.Output, ne.Status, ne.StartedAt, ne.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("insert node execution: %w", err)
	}

	return ne, nil
}

// ListNodeExecutions returns every NodeExecution for an Execution, in
// persistence order.
func (s *pgStore) ListNodeExecutions(ctx context.Context, executionID uuid.UUID) ([]*NodeExecution, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.Query(timeoutCtx, `
        SELECT id, node_id, input, output, status, started_at, finished_at
        FROM node_executions
        WHERE execution_id = $1
        ORDER BY started_at ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list node executions: %w", err)
	}
	defer rows.Close()

	var out []*NodeExecution
	for rows.Next() {
		ne := &NodeExecution{ExecutionID: executionID}
		if err := rows.Scan(&ne.ID, &ne.NodeID, &ne.Input, &ne.Output, &ne.Status, &ne.StartedAt, &ne.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan node execution row: %w", err)
		}
		out = append(out, ne)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
