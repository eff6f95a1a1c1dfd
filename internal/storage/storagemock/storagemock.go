// Package storagemock provides a function-field mock of storage.Store
// for tests that exercise the engine or HTTP collaborator without a
// database.
package storagemock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/automation-engine/internal/storage"
)

type Store struct {
	GetWorkflowMock    func(ctx context.Context, id uuid.UUID) (*storage.Workflow, error)
	CreateWorkflowMock func(ctx context.Context, wf *storage.Workflow) error
	DeleteWorkflowMock func(ctx context.Context, id uuid.UUID) error
	ListWorkflowsMock  func(ctx context.Context) ([]*storage.Workflow, error)

	CreateExecutionMock       func(ctx context.Context, workflowID uuid.UUID) (*storage.Execution, error)
	UpdateExecutionStatusMock func(ctx context.Context, executionID uuid.UUID, status storage.ExecutionStatus, finished bool) error
	GetExecutionMock          func(ctx context.Context, id uuid.UUID) (*storage.Execution, error)

	InsertNodeExecutionMock func(ctx context.Context, executionID uuid.UUID, nodeID string, input, output json.RawMessage, status storage.NodeExecutionStatus, startedAt time.Time) (*storage.NodeExecution, error)
	ListNodeExecutionsMock  func(ctx context.Context, executionID uuid.UUID) ([]*storage.NodeExecution, error)
}

func (m *Store) GetWorkflow(ctx context.Context, id uuid.UUID) (*storage.Workflow, error) {
	if m != nil && m.GetWorkflowMock != nil {
		return m.GetWorkflowMock(ctx, id)
	}
	return &storage.Workflow{ID: id}, nil
}

func (m *Store) CreateWorkflow(ctx context.Context, wf *storage.Workflow) error {
	if m != nil && m.CreateWorkflowMock != nil {
		return m.CreateWorkflowMock(ctx, wf)
	}
	return nil
}

func (m *Store) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	if m != nil && m.DeleteWorkflowMock != nil {
		return m.DeleteWorkflowMock(ctx, id)
	}
	return nil
}

func (m *Store) ListWorkflows(ctx context.Context) ([]*storage.Workflow, error) {
	if m != nil && m.ListWorkflowsMock != nil {
		return m.ListWorkflowsMock(ctx)
	}
	return nil, nil
}

func (m *Store) CreateExecution(ctx context.Context, workflowID uuid.UUID) (*storage.Execution, error) {
	if m != nil && m.CreateExecutionMock != nil {
		return m.CreateExecutionMock(ctx, workflowID)
	}
	return &storage.Execution{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Status:     storage.ExecutionPending,
		StartedAt:  time.Now().UTC(),
	}, nil
}

func (m *Store) UpdateExecutionStatus(ctx context.Context, executionID uuid.UUID, status storage.ExecutionStatus, finished bool) error {
	if m != nil && m.UpdateExecutionStatusMock != nil {
		return m.UpdateExecutionStatusMock(ctx, executionID, status, finished)
	}
	return nil
}

func (m *Store) GetExecution(ctx context.Context, id uuid.UUID) (*storage.Execution, error) {
	if m != nil && m.GetExecutionMock != nil {
		return m.GetExecutionMock(ctx, id)
	}
	return &storage.Execution{ID: id}, nil
}

func (m *Store) InsertNodeExecution(ctx context.Context, executionID uuid.UUID, nodeID string, input, output json.RawMessage, status storage.NodeExecutionStatus, startedAt time.Time) (*storage.NodeExecution, error) {
	if m != nil && m.InsertNodeExecutionMock != nil {
		return m.InsertNodeExecutionMock(ctx, executionID, nodeID, input, output, status, startedAt)
	}
	return &storage.NodeExecution{
		ID:          uuid.New(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Input:       input,
		Output:      output,
		Status:      status,
		StartedAt:   startedAt,
		FinishedAt:  time.Now().UTC(),
	}, nil
}

func (m *Store) ListNodeExecutions(ctx context.Context, executionID uuid.UUID) ([]*storage.NodeExecution, error) {
	if m != nil && m.ListNodeExecutionsMock != nil {
		return m.ListNodeExecutionsMock(ctx, executionID)
	}
	return nil, nil
}

var _ storage.Store = (*Store)(nil)
