// Package engine runs one workflow end-to-end: it validates the DAG,
// creates the execution record, dispatches nodes serially in
// topological order with per-node retry, persists each node's result,
// and transitions the execution to its terminal state.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/automation-engine/internal/dag"
	"github.com/flowcore/automation-engine/internal/node"
	"github.com/flowcore/automation-engine/internal/storage"
)

// Config controls the engine's retry policy.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultConfig matches the retry policy described for the engine:
// three retries, 100ms base delay, pure exponential backoff.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: 100 * time.Millisecond}
}

// Result is the outcome of a successful run.
type Result struct {
	ExecutionID uuid.UUID
	Output      json.RawMessage
}

// NodeFatalError reports that a node aborted the run with a permanent
// failure.
type NodeFatalError struct {
	NodeID  string
	Message string
}

func (e *NodeFatalError) Error() string {
	return fmt.Sprintf("node %q: fatal: %s", e.NodeID, e.Message)
}

// NodeRetryExhaustedError reports that a node never succeeded within
// its retry budget.
type NodeRetryExhaustedError struct {
	NodeID  string
	Message string
}

func (e *NodeRetryExhaustedError) Error() string {
	return fmt.Sprintf("node %q: retries exhausted: %s", e.NodeID, e.Message)
}

// ExecutionCancelledError reports that the run's context was cancelled
// while a node's retry was sleeping. No NodeExecution row is persisted
// for the pending attempt.
type ExecutionCancelledError struct {
	NodeID string
	Cause  error
}

func (e *ExecutionCancelledError) Error() string {
	return fmt.Sprintf("node %q: execution cancelled: %v", e.NodeID, e.Cause)
}

func (e *ExecutionCancelledError) Unwrap() error { return e.Cause }

// DatabaseError reports that a repository call failed. It wraps every
// persistence-layer error the engine returns, so callers can
// distinguish a storage failure from a validation or node-outcome
// error with errors.As.
type DatabaseError struct {
	Cause error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error: %v", e.Cause)
}

func (e *DatabaseError) Unwrap() error { return e.Cause }

// Engine runs workflows against a node registry and a persistence
// store.
type Engine struct {
	store    storage.Store
	registry *node.Registry
	config   Config
}

// New builds an Engine with the default retry policy.
func New(store storage.Store, registry *node.Registry) *Engine {
	return &Engine{store: store, registry: registry, config: DefaultConfig()}
}

// NewWithConfig builds an Engine with an explicit retry policy.
func NewWithConfig(store storage.Store, registry *node.Registry, config Config) *Engine {
	return &Engine{store: store, registry: registry, config: config}
}

// Run validates wf, creates a new execution row, then executes the
// workflow's nodes serially in topological order. The execution row
// is created only once the graph is confirmed acyclic.
func (e *Engine) Run(ctx context.Context, wf *storage.Workflow, initialInput json.RawMessage) (*Result, error) {
	order, err := validate(wf)
	if err != nil {
		return nil, err
	}

	execRow, err := e.store.CreateExecution(ctx, wf.ID)
	if err != nil {
		return nil, &DatabaseError{Cause: fmt.Errorf("create execution: %w", err)}
	}

	return e.dispatch(ctx, wf, execRow.ID, order, initialInput)
}

// RunExisting validates wf and executes its nodes serially in
// topological order against an execution row created earlier, e.g. by
// an HTTP handler that enqueued the run for a worker to pick up. It
// never creates an execution row itself.
func (e *Engine) RunExisting(ctx context.Context, wf *storage.Workflow, executionID uuid.UUID, initialInput json.RawMessage) (*Result, error) {
	order, err := validate(wf)
	if err != nil {
		return nil, err
	}
	return e.dispatch(ctx, wf, executionID, order, initialInput)
}

// validate builds the dag.Graph from wf's definition and returns the
// topological dispatch order, or the validation error.
func validate(wf *storage.Workflow) ([]string, error) {
	graphNodes := make([]dag.Node, len(wf.Definition.Nodes))
	for i, n := range wf.Definition.Nodes {
		graphNodes[i] = dag.Node{ID: n.ID}
	}
	graphEdges := make([]dag.Edge, len(wf.Definition.Edges))
	for i, edge := range wf.Definition.Edges {
		graphEdges[i] = dag.Edge{From: edge.From, To: edge.To}
	}
	return dag.Validate(dag.Graph{Nodes: graphNodes, Edges: graphEdges})
}

// dispatch marks executionID running, then runs order's nodes serially
// against wf's node definitions, threading each node's output into the
// next as input.
func (e *Engine) dispatch(ctx context.Context, wf *storage.Workflow, executionID uuid.UUID, order []string, initialInput json.RawMessage) (*Result, error) {
	nodeDefs := make(map[string]storage.NodeDefinition, len(wf.Definition.Nodes))
	for _, n := range wf.Definition.Nodes {
		nodeDefs[n.ID] = n
	}

	if err := e.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionRunning, false); err != nil {
		e.markFailedBestEffort(ctx, executionID)
		return nil, &DatabaseError{Cause: fmt.Errorf("mark execution running: %w", err)}
	}

	execCtx := &node.ExecutionContext{
		WorkflowID:   wf.ID,
		ExecutionID:  executionID,
		InitialInput: initialInput,
		Secrets:      map[string]string{},
	}

	currentInput := initialInput
	for _, nodeID := range order {
		nodeDef := nodeDefs[nodeID]

		impl, ok, buildErr := e.registry.Build(nodeDef.NodeType, nodeDef.Config)
		if !ok {
			runErr := fmt.Errorf("no implementation registered for node_type %q", nodeDef.NodeType)
			e.persistFailureAndAbort(ctx, executionID, nodeID, currentInput)
			return nil, &NodeFatalError{NodeID: nodeID, Message: runErr.Error()}
		}
		if buildErr != nil {
			e.persistFailureAndAbort(ctx, executionID, nodeID, currentInput)
			return nil, &NodeFatalError{NodeID: nodeID, Message: fmt.Sprintf("failed to build node %q: %v", nodeDef.NodeType, buildErr)}
		}

		startedAt := time.Now().UTC()
		output, nodeErr := e.dispatchWithRetry(ctx, impl, nodeID, currentInput, execCtx)
		if nodeErr != nil {
			if ctx.Err() != nil {
				// Cancelled while sleeping between retries: no attempt is
				// pending to persist, and the execution row is left as-is
				// for the caller to deal with.
				return nil, &ExecutionCancelledError{NodeID: nodeID, Cause: ctx.Err()}
			}
			e.persistFailureAndAbort(ctx, executionID, nodeID, currentInput)
			if nodeErr.Kind == node.Fatal {
				return nil, &NodeFatalError{NodeID: nodeID, Message: nodeErr.Message}
			}
			return nil, &NodeRetryExhaustedError{NodeID: nodeID, Message: nodeErr.Message}
		}

		if _, err := e.store.InsertNodeExecution(ctx, executionID, nodeID, currentInput, output, storage.NodeExecutionSucceeded, startedAt); err != nil {
			e.markFailedBestEffort(ctx, executionID)
			return nil, &DatabaseError{Cause: fmt.Errorf("persist node execution %q: %w", nodeID, err)}
		}

		currentInput = output
	}

	if err := e.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionSucceeded, true); err != nil {
		e.markFailedBestEffort(ctx, executionID)
		return nil, &DatabaseError{Cause: fmt.Errorf("mark execution succeeded: %w", err)}
	}

	return &Result{ExecutionID: executionID, Output: currentInput}, nil
}

// dispatchWithRetry invokes impl, retrying Retryable failures with
// exponential backoff up to e.config.MaxRetries times. Fatal failures
// and exhausted retries are returned as the node's terminal *node.Error.
// If ctx is cancelled while sleeping between retries, it returns early
// with a *node.Error whose content is discarded by the caller, which
// detects cancellation via ctx.Err() and reports an
// ExecutionCancelledError instead.
func (e *Engine) dispatchWithRetry(ctx context.Context, impl node.Node, nodeID string, input json.RawMessage, execCtx *node.ExecutionContext) (json.RawMessage, *node.Error) {
	attempts := 0
	for {
		output, nodeErr := impl.Execute(ctx, input, execCtx)
		if nodeErr == nil {
			return output, nil
		}

		if nodeErr.Kind == node.Fatal {
			return nil, nodeErr
		}

		attempts++
		if attempts > e.config.MaxRetries {
			return nil, nodeErr
		}

		delay := e.config.BaseDelay * time.Duration(1<<(attempts-1))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, node.FatalError("execution cancelled while retrying node %q: %v", nodeID, ctx.Err())
		case <-timer.C:
		}
	}
}

// persistFailureAndAbort records the failing NodeExecution row and
// transitions the execution to failed. Both are best-effort: a
// failure here is logged and swallowed rather than returned, since it
// must never mask the original node error.
func (e *Engine) persistFailureAndAbort(ctx context.Context, executionID uuid.UUID, nodeID string, input json.RawMessage) {
	if _, err := e.store.InsertNodeExecution(ctx, executionID, nodeID, input, nil, storage.NodeExecutionFailed, time.Now().UTC()); err != nil {
		slog.Error("failed to persist node execution failure", "execution_id", executionID, "node_id", nodeID, "error", err)
	}
	e.markFailedBestEffort(ctx, executionID)
}

// markFailedBestEffort transitions the execution to failed, logging
// and swallowing any error so it never masks the error that caused the
// run to abort.
func (e *Engine) markFailedBestEffort(ctx context.Context, executionID uuid.UUID) {
	if err := e.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionFailed, true); err != nil {
		slog.Error("failed to mark execution failed", "execution_id", executionID, "error", err)
	}
}
