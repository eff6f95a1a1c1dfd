package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/flowcore/automation-engine/internal/dag"
	"github.com/flowcore/automation-engine/internal/queue"
	"github.com/flowcore/automation-engine/internal/storage"
)

// maxRequestBody limits the size of request bodies to prevent abuse.
const maxRequestBody = 1 << 20 // 1MB

// HandleListWorkflows returns every stored workflow.
func (s *Service) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	workflows, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		slog.Error("failed to list workflows", "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

// createWorkflowRequest is the body accepted by HandleCreateWorkflow.
type createWorkflowRequest struct {
	Name       string             `json:"name"`
	Definition storage.Definition `json:"definition"`
}

// HandleCreateWorkflow validates the submitted DAG and persists it. A
// workflow is immutable once created: there is no draft/publish split.
func (s *Service) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("failed to decode create workflow body", "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeErrorJSON(w, "INVALID_BODY", "name is required", http.StatusBadRequest)
		return
	}

	if _, err := validateDefinition(req.Definition); err != nil {
		slog.Warn("workflow definition rejected", "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_DEFINITION", err.Error(), http.StatusBadRequest)
		return
	}

	wf := &storage.Workflow{
		ID:         uuid.New(),
		Name:       req.Name,
		Definition: req.Definition,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.CreateWorkflow(r.Context(), wf); err != nil {
		slog.Error("failed to create workflow", "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, wf)
}

// HandleGetWorkflow loads a workflow definition by ID.
func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	id := mux.Vars(r)["id"]

	wfUUID, err := uuid.Parse(id)
	if err != nil {
		writeErrorJSON(w, "INVALID_ID", "invalid workflow id", http.StatusBadRequest)
		return
	}

	wf, err := s.store.GetWorkflow(r.Context(), wfUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErrorJSON(w, "NOT_FOUND", "workflow not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get workflow", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// HandleDeleteWorkflow hard-deletes a workflow.
func (s *Service) HandleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	id := mux.Vars(r)["id"]

	wfUUID, err := uuid.Parse(id)
	if err != nil {
		writeErrorJSON(w, "INVALID_ID", "invalid workflow id", http.StatusBadRequest)
		return
	}

	if err := s.store.DeleteWorkflow(r.Context(), wfUUID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErrorJSON(w, "NOT_FOUND", "workflow not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to delete workflow", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// executeWorkflowRequest is the body accepted by HandleExecuteWorkflow.
type executeWorkflowRequest struct {
	Input json.RawMessage `json:"input"`
}

// HandleExecuteWorkflow creates a pending execution row and enqueues a
// job for a worker to process. It returns 202 Accepted with the queued
// job, since the run itself happens asynchronously.
func (s *Service) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	id := mux.Vars(r)["id"]

	wfUUID, err := uuid.Parse(id)
	if err != nil {
		writeErrorJSON(w, "INVALID_ID", "invalid workflow id", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req executeWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorJSON(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetWorkflow(ctx, wfUUID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErrorJSON(w, "NOT_FOUND", "workflow not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to load workflow for execute", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	job, err := s.enqueueRun(ctx, wfUUID, req.Input)
	if err != nil {
		slog.Error("failed to enqueue execution", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// HandleGetExecution returns an execution's current status.
func (s *Service) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	id := mux.Vars(r)["id"]

	execUUID, err := uuid.Parse(id)
	if err != nil {
		writeErrorJSON(w, "INVALID_ID", "invalid execution id", http.StatusBadRequest)
		return
	}

	exec, err := s.store.GetExecution(r.Context(), execUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErrorJSON(w, "NOT_FOUND", "execution not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get execution", "id", execUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

// HandleWebhook matches the request path against each workflow's
// declared webhook trigger and, on a match, enqueues a run carrying
// the request body as input.
func (s *Service) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	path := mux.Vars(r)["path"]

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeErrorJSON(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	workflows, err := s.store.ListWorkflows(ctx)
	if err != nil {
		slog.Error("failed to list workflows for webhook dispatch", "path", path, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	var matched *storage.Workflow
	for _, wf := range workflows {
		if wf.Definition.Trigger.Type == storage.TriggerWebhook && wf.Definition.Trigger.Path == path {
			matched = wf
			break
		}
	}
	if matched == nil {
		writeErrorJSON(w, "NOT_FOUND", "no workflow registered for this webhook path", http.StatusNotFound)
		return
	}

	job, err := s.enqueueRun(ctx, matched.ID, payload)
	if err != nil {
		slog.Error("failed to enqueue webhook-triggered execution", "workflowId", matched.ID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"message": "webhook accepted", "jobId": job.ID})
}

// enqueueRun creates a pending execution row for workflowID and
// enqueues a job carrying input as its payload.
func (s *Service) enqueueRun(ctx context.Context, workflowID uuid.UUID, input json.RawMessage) (*queue.Job, error) {
	exec, err := s.store.CreateExecution(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	job, err := s.queue.Enqueue(ctx, exec.ID, workflowID, input)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// validateDefinition rejects a workflow definition whose graph is not
// a valid DAG, returning the topological dispatch order on success.
func validateDefinition(def storage.Definition) ([]string, error) {
	nodes := make([]dag.Node, len(def.Nodes))
	for i, n := range def.Nodes {
		nodes[i] = dag.Node{ID: n.ID}
	}
	edges := make([]dag.Edge, len(def.Edges))
	for i, e := range def.Edges {
		edges[i] = dag.Edge{From: e.From, To: e.To}
	}
	return dag.Validate(dag.Graph{Nodes: nodes, Edges: edges})
}

// writeJSON marshals v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeErrorJSON writes a structured JSON error response with a
// machine-readable code and a human-readable message.
func writeErrorJSON(w http.ResponseWriter, errCode, message string, status int) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"code": errCode, "message": message})
}
