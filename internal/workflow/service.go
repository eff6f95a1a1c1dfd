// Package workflow is the HTTP façade over workflow and execution
// persistence: CRUD on workflow definitions, manual and webhook
// triggering, and execution/status lookups. Triggering enqueues a job
// for a worker to pick up rather than running the graph inline.
package workflow

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/flowcore/automation-engine/internal/queue"
	"github.com/flowcore/automation-engine/internal/storage"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// Service handles HTTP requests for workflow and execution operations.
// It depends on the Store and Queue interfaces rather than concrete
// implementations, keeping the HTTP layer decoupled from persistence.
type Service struct {
	store storage.Store
	queue queue.Queue
}

// NewService creates a workflow Service over the given store and
// queue.
func NewService(store storage.Store, q queue.Queue) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow: store cannot be nil")
	}
	if q == nil {
		return nil, fmt.Errorf("workflow: queue cannot be nil")
	}
	return &Service{store: store, queue: q}, nil
}

// requestIDMiddleware assigns a unique ID to each request for log
// correlation. If the client sends X-Request-ID, it's reused;
// otherwise a new UUID is generated.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes mounts the workflow, execution, and webhook routes under
// parentRouter.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	wfRouter := parentRouter.PathPrefix("/workflows").Subrouter()
	wfRouter.StrictSlash(false)
	wfRouter.Use(requestIDMiddleware)
	wfRouter.Use(jsonMiddleware)

	wfRouter.HandleFunc("", s.HandleListWorkflows).Methods(http.MethodGet)
	wfRouter.HandleFunc("", s.HandleCreateWorkflow).Methods(http.MethodPost)
	wfRouter.HandleFunc("/{id}", s.HandleGetWorkflow).Methods(http.MethodGet)
	wfRouter.HandleFunc("/{id}", s.HandleDeleteWorkflow).Methods(http.MethodDelete)
	wfRouter.HandleFunc("/{id}/execute", s.HandleExecuteWorkflow).Methods(http.MethodPost)

	execRouter := parentRouter.PathPrefix("/executions").Subrouter()
	execRouter.StrictSlash(false)
	execRouter.Use(requestIDMiddleware)
	execRouter.Use(jsonMiddleware)

	execRouter.HandleFunc("/{id}", s.HandleGetExecution).Methods(http.MethodGet)

	hookRouter := parentRouter.PathPrefix("/webhooks").Subrouter()
	hookRouter.StrictSlash(false)
	hookRouter.Use(requestIDMiddleware)
	hookRouter.Use(jsonMiddleware)

	hookRouter.HandleFunc("/{path}", s.HandleWebhook).Methods(http.MethodPost)
}

// reqID extracts the request ID from context (set by
// requestIDMiddleware).
func reqID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}
