package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

var (
	testWfID = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	testNow  = time.Now()
)

func setupSuccessMock(mock pgxmock.PgxPoolIface) {
	definition := json.RawMessage(`{"trigger":{"type":"manual"},"nodes":[{"id":"a","node_type":"passthrough"}],"edges":[]}`)
	mock.ExpectBeginTx(readTxOptions)
	mock.ExpectQuery("SELECT name, definition, created_at").
		WithArgs(testWfID).
		WillReturnRows(
			pgxmock.NewRows([]string{"name", "definition", "created_at"}).
				AddRow("Order Pipeline", []byte(definition), testNow),
		)
	mock.ExpectCommit()
}

// readTxOptions are the transaction options GetWorkflow opens its read
// with.
var readTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

func TestGetWorkflow(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		checkWf   func(t *testing.T, wf *Workflow)
	}{
		{
			name:      "success returns hydrated workflow",
			setupMock: setupSuccessMock,
			checkWf: func(t *testing.T, wf *Workflow) {
				t.Helper()
				if wf.Name != "Order Pipeline" {
					t.Errorf("expected name %q, got %q", "Order Pipeline", wf.Name)
				}
				if wf.Definition.Trigger.Type != TriggerManual {
					t.Errorf("expected manual trigger, got %q", wf.Definition.Trigger.Type)
				}
				if len(wf.Definition.Nodes) != 1 || wf.Definition.Nodes[0].ID != "a" {
					t.Errorf("expected single node 'a', got %+v", wf.Definition.Nodes)
				}
			},
		},
		{
			name: "workflow not found returns ErrNoRows",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBeginTx(readTxOptions)
				mock.ExpectQuery("SELECT name, definition, created_at").
					WithArgs(testWfID).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: pgx.ErrNoRows,
		},
		{
			name: "query failure propagates error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBeginTx(readTxOptions)
				mock.ExpectQuery("SELECT name, definition, created_at").
					WithArgs(testWfID).
					WillReturnError(errors.New("connection lost"))
			},
			wantErr: errors.New("connection lost"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create mock pool: %v", err)
			}
			defer mock.Close()

			tt.setupMock(mock)

			store := &pgStore{db: mock}
			wf, err := store.GetWorkflow(context.Background(), testWfID)

			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if err.Error() != tt.wantErr.Error() {
					t.Errorf("expected error %q, got %q", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.checkWf != nil {
				tt.checkWf(t, wf)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet mock expectations: %v", err)
			}
		})
	}
}

func TestCreateWorkflow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("INSERT INTO workflows").
		WithArgs(testWfID, "Order Pipeline", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	store := &pgStore{db: mock}
	wf := &Workflow{
		ID:   testWfID,
		Name: "Order Pipeline",
		Definition: Definition{
			Trigger: Trigger{Type: TriggerManual},
			Nodes:   []NodeDefinition{{ID: "a", NodeType: "passthrough"}},
		},
	}

	if err := store.CreateWorkflow(context.Background(), wf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestDeleteWorkflow_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("DELETE FROM workflows").
		WithArgs(testWfID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	store := &pgStore{db: mock}
	err = store.DeleteWorkflow(context.Background(), testWfID)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}
}

func TestCreateExecution(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO workflow_executions").
		WithArgs(pgxmock.AnyArg(), testWfID, ExecutionPending, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := &pgStore{db: mock}
	exec, err := store.CreateExecution(context.Background(), testWfID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status != ExecutionPending {
		t.Errorf("expected pending status, got %q", exec.Status)
	}
	if exec.WorkflowID != testWfID {
		t.Errorf("expected workflow id %v, got %v", testWfID, exec.WorkflowID)
	}
}

func TestInsertNodeExecution(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	execID := uuid.New()
	mock.ExpectExec("INSERT INTO node_executions").
		WithArgs(pgxmock.AnyArg(), execID, "a", pgxmock.AnyArg(), pgxmock.AnyArg(), NodeExecutionSucceeded, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := &pgStore{db: mock}
	ne, err := store.InsertNodeExecution(context.Background(), execID, "a", json.RawMessage(`{}`), json.RawMessage(`{"ok":true}`), NodeExecutionSucceeded, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ne.NodeID != "a" {
		t.Errorf("expected node id 'a', got %q", ne.NodeID)
	}
}
