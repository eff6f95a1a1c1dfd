// Package node defines the abstract node contract that the execution
// engine dispatches against, and the registry that resolves a
// workflow's node_type strings to concrete implementations.
package node

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ExecutionContext is shared by reference across every node invocation
// within one workflow run. Implementations must treat it as immutable.
type ExecutionContext struct {
	WorkflowID   uuid.UUID
	ExecutionID  uuid.UUID
	InitialInput json.RawMessage
	Secrets      map[string]string
}

// ErrorKind distinguishes a transient failure the engine should retry
// from a permanent one that should abort the run immediately.
type ErrorKind int

const (
	// Retryable indicates a transient failure; the engine will retry
	// per its backoff policy.
	Retryable ErrorKind = iota
	// Fatal indicates a permanent failure; the engine aborts the run.
	Fatal
)

func (k ErrorKind) String() string {
	if k == Fatal {
		return "fatal"
	}
	return "retryable"
}

// Error is the outcome a node reports when it cannot produce output.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// RetryableError builds a node Error of kind Retryable.
func RetryableError(format string, args ...any) *Error {
	return &Error{Kind: Retryable, Message: fmt.Sprintf(format, args...)}
}

// FatalError builds a node Error of kind Fatal.
func FatalError(format string, args ...any) *Error {
	return &Error{Kind: Fatal, Message: fmt.Sprintf(format, args...)}
}

// Node is the abstract effectful operation a workflow step performs.
// Implementations must be stateless across invocations and reentrant:
// a retried call repeats the same (input, ctx) and may return a
// different result, and must be safe to call concurrently from
// multiple runs.
type Node interface {
	Execute(ctx context.Context, input json.RawMessage, execCtx *ExecutionContext) (json.RawMessage, *Error)
}

// Factory builds a Node instance from a workflow node's declared
// config (the NodeDefinition.Config JSON). Node types with no
// per-instance configuration (passthrough, weather_lookup) may ignore
// the argument and return a fixed instance.
type Factory func(config json.RawMessage) (Node, error)

// Registry maps a node_type string to a Factory. Built once at process
// startup and treated as read-only thereafter. The engine builds one
// Node instance per workflow node from its factory and config, so a
// single registered node_type can be parameterized differently by each
// workflow node that uses it, without altering the input envelope a
// node receives at dispatch time.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under nodeType. It panics on a duplicate
// registration, since the registry is assembled once at startup by
// trusted code, not at request time.
func (r *Registry) Register(nodeType string, factory Factory) {
	if _, exists := r.factories[nodeType]; exists {
		panic(fmt.Sprintf("node type %q already registered", nodeType))
	}
	r.factories[nodeType] = factory
}

// RegisterInstance is a convenience for node types with no per-instance
// config: it registers a Factory that always returns impl, ignoring
// the config argument.
func (r *Registry) RegisterInstance(nodeType string, impl Node) {
	r.Register(nodeType, func(json.RawMessage) (Node, error) { return impl, nil })
}

// Build resolves nodeType's factory and invokes it with config,
// returning ok=false if no factory was registered for nodeType.
func (r *Registry) Build(nodeType string, config json.RawMessage) (impl Node, ok bool, err error) {
	factory, exists := r.factories[nodeType]
	if !exists {
		return nil, false, nil
	}
	impl, err = factory(config)
	return impl, true, err
}
