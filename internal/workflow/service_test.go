package workflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/flowcore/automation-engine/internal/queue"
	"github.com/flowcore/automation-engine/internal/storage"
	"github.com/flowcore/automation-engine/internal/storage/storagemock"
	"github.com/flowcore/automation-engine/internal/workflow"
)

// stubQueue implements queue.Queue for handler tests without a real
// database connection.
type stubQueue struct {
	enqueueMock func(ctx context.Context, executionID, workflowID uuid.UUID, payload json.RawMessage) (*queue.Job, error)
}

func (s *stubQueue) Enqueue(ctx context.Context, executionID, workflowID uuid.UUID, payload json.RawMessage) (*queue.Job, error) {
	if s.enqueueMock != nil {
		return s.enqueueMock(ctx, executionID, workflowID, payload)
	}
	return &queue.Job{ID: uuid.New(), ExecutionID: executionID, WorkflowID: workflowID, Status: queue.StatusPending, Payload: payload}, nil
}
func (s *stubQueue) ClaimNext(ctx context.Context) (*queue.Job, error) { return nil, nil }
func (s *stubQueue) Complete(ctx context.Context, jobID uuid.UUID) error { return nil }
func (s *stubQueue) Fail(ctx context.Context, jobID uuid.UUID, maxAttempts int) error { return nil }

func newTestRouter(svc *workflow.Service) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	svc.LoadRoutes(api)
	return router
}

func TestNewService_NilDeps(t *testing.T) {
	if _, err := workflow.NewService(nil, &stubQueue{}); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := workflow.NewService(&storagemock.Store{}, nil); err == nil {
		t.Error("expected error for nil queue")
	}
}

func TestHandleGetWorkflow(t *testing.T) {
	wfID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	sample := &storage.Workflow{
		ID:   wfID,
		Name: "Weather Check",
		Definition: storage.Definition{
			Trigger: storage.Trigger{Type: storage.TriggerManual},
			Nodes:   []storage.NodeDefinition{{ID: "a", NodeType: "passthrough"}},
		},
	}

	tests := []struct {
		name       string
		url        string
		store      *storagemock.Store
		wantStatus int
	}{
		{
			name:       "invalid UUID returns 400",
			url:        "/api/v1/workflows/not-a-uuid",
			store:      &storagemock.Store{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "workflow not found returns 404",
			url:  "/api/v1/workflows/" + uuid.New().String(),
			store: &storagemock.Store{
				GetWorkflowMock: func(ctx context.Context, id uuid.UUID) (*storage.Workflow, error) {
					return nil, pgx.ErrNoRows
				},
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "storage error returns 500",
			url:  "/api/v1/workflows/" + uuid.New().String(),
			store: &storagemock.Store{
				GetWorkflowMock: func(ctx context.Context, id uuid.UUID) (*storage.Workflow, error) {
					return nil, errors.New("connection refused")
				},
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "valid workflow returns 200",
			url:  "/api/v1/workflows/" + wfID.String(),
			store: &storagemock.Store{
				GetWorkflowMock: func(ctx context.Context, id uuid.UUID) (*storage.Workflow, error) {
					return sample, nil
				},
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := workflow.NewService(tt.store, &stubQueue{})
			if err != nil {
				t.Fatalf("failed to create service: %v", err)
			}
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d (body: %s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleCreateWorkflow_RejectsCycle(t *testing.T) {
	body := `{
		"name": "cyclic",
		"definition": {
			"trigger": {"type": "manual"},
			"nodes": [{"id":"a","node_type":"passthrough"},{"id":"b","node_type":"passthrough"}],
			"edges": [{"from":"a","to":"b"},{"from":"b","to":"a"}]
		}
	}`

	svc, err := workflow.NewService(&storagemock.Store{}, &stubQueue{})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for cyclic definition, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleCreateWorkflow_Success(t *testing.T) {
	body := `{
		"name": "linear",
		"definition": {
			"trigger": {"type": "manual"},
			"nodes": [{"id":"a","node_type":"passthrough"}],
			"edges": []
		}
	}`

	var created *storage.Workflow
	store := &storagemock.Store{
		CreateWorkflowMock: func(ctx context.Context, wf *storage.Workflow) error {
			created = wf
			return nil
		},
	}
	svc, err := workflow.NewService(store, &stubQueue{})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if created == nil || created.Name != "linear" {
		t.Errorf("expected workflow to be persisted with name 'linear', got %+v", created)
	}
}

func TestHandleExecuteWorkflow_EnqueuesJob(t *testing.T) {
	wfID := uuid.New()
	store := &storagemock.Store{
		GetWorkflowMock: func(ctx context.Context, id uuid.UUID) (*storage.Workflow, error) {
			return &storage.Workflow{ID: wfID}, nil
		},
		CreateExecutionMock: func(ctx context.Context, workflowID uuid.UUID) (*storage.Execution, error) {
			return &storage.Execution{ID: uuid.New(), WorkflowID: workflowID, Status: storage.ExecutionPending, StartedAt: time.Now()}, nil
		},
	}

	var enqueuedPayload json.RawMessage
	q := &stubQueue{
		enqueueMock: func(ctx context.Context, executionID, workflowID uuid.UUID, payload json.RawMessage) (*queue.Job, error) {
			enqueuedPayload = payload
			return &queue.Job{ID: uuid.New(), ExecutionID: executionID, WorkflowID: workflowID, Status: queue.StatusPending, Payload: payload}, nil
		},
	}

	svc, err := workflow.NewService(store, q)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/"+wfID.String()+"/execute", bytes.NewBufferString(`{"input":{"city":"Brisbane"}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if string(enqueuedPayload) != `{"city":"Brisbane"}` {
		t.Errorf("expected enqueued payload to be the input field, got %s", enqueuedPayload)
	}
}

func TestHandleWebhook_MatchesTriggerPath(t *testing.T) {
	wfID := uuid.New()
	store := &storagemock.Store{
		ListWorkflowsMock: func(ctx context.Context) ([]*storage.Workflow, error) {
			return []*storage.Workflow{
				{ID: wfID, Definition: storage.Definition{Trigger: storage.Trigger{Type: storage.TriggerWebhook, Path: "new-signup"}}},
			}, nil
		},
		CreateExecutionMock: func(ctx context.Context, workflowID uuid.UUID) (*storage.Execution, error) {
			return &storage.Execution{ID: uuid.New(), WorkflowID: workflowID}, nil
		},
	}
	svc, err := workflow.NewService(store, &stubQueue{})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/new-signup", bytes.NewBufferString(`{"email":"a@example.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleWebhook_NoMatchReturns404(t *testing.T) {
	store := &storagemock.Store{
		ListWorkflowsMock: func(ctx context.Context) ([]*storage.Workflow, error) {
			return nil, nil
		},
	}
	svc, err := workflow.NewService(store, &stubQueue{})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/unknown", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
