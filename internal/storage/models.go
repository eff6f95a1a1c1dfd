package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TriggerType enumerates how a workflow run is initiated.
type TriggerType string

const (
	TriggerManual  TriggerType = "manual"
	TriggerWebhook TriggerType = "webhook"
	TriggerCron    TriggerType = "cron"
)

// Trigger describes the declared trigger of a Workflow.
type Trigger struct {
	Type       TriggerType `json:"type"`
	Path       string      `json:"path,omitempty"`
	Expression string      `json:"expression,omitempty"`
}

// NodeDefinition is one step in a Workflow's graph.
type NodeDefinition struct {
	ID       string          `json:"id"`
	NodeType string          `json:"node_type"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Edge asserts that From completes before To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Definition is the opaque JSON document stored in workflows.definition:
// the graph shape plus its trigger.
type Definition struct {
	Trigger Trigger          `json:"trigger"`
	Nodes   []NodeDefinition `json:"nodes"`
	Edges   []Edge           `json:"edges"`
}

// Workflow is a named, immutable DAG plus a trigger declaration.
type Workflow struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Definition Definition `json:"definition"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ExecutionStatus is the WorkflowExecution state machine's states.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Execution is one run of a Workflow.
type Execution struct {
	ID         uuid.UUID       `json:"id"`
	WorkflowID uuid.UUID       `json:"workflowId"`
	Status     ExecutionStatus `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// NodeExecutionStatus is the terminal outcome recorded for one node
// attempt within an Execution.
type NodeExecutionStatus string

const (
	NodeExecutionSucceeded NodeExecutionStatus = "succeeded"
	NodeExecutionFailed    NodeExecutionStatus = "failed"
)

// NodeExecution is a persisted record of one node's terminal outcome
// within an Execution.
type NodeExecution struct {
	ID          uuid.UUID           `json:"id"`
	ExecutionID uuid.UUID           `json:"executionId"`
	NodeID      string              `json:"nodeId"`
	Input       json.RawMessage     `json:"input,omitempty"`
	Output      json.RawMessage     `json:"output,omitempty"`
	Status      NodeExecutionStatus `json:"status"`
	StartedAt   time.Time           `json:"startedAt"`
	FinishedAt  time.Time           `json:"finishedAt"`
}
