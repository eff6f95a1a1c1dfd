// Package nodetest provides a deterministic, scriptable Node
// implementation for engine tests, analogous to a hand-wired stub
// collaborator: each call pops the next behaviour off a list.
package nodetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flowcore/automation-engine/internal/node"
)

// Behaviour describes the outcome of one invocation of Node.Execute.
type Behaviour struct {
	// Err, if non-nil, is returned instead of producing output.
	Err *node.Error
	// Merge is shallow-merged onto the input map to produce the
	// output map. Ignored when Err is set.
	Merge map[string]any
}

// Succeed builds a Behaviour that merges extra fields onto the input.
func Succeed(merge map[string]any) Behaviour {
	return Behaviour{Merge: merge}
}

// FailRetryable builds a Behaviour that reports a retryable error.
func FailRetryable(message string) Behaviour {
	return Behaviour{Err: node.RetryableError(message)}
}

// FailFatal builds a Behaviour that reports a fatal error.
func FailFatal(message string) Behaviour {
	return Behaviour{Err: node.FatalError(message)}
}

// Node replays a fixed sequence of Behaviours, one per call. Once the
// sequence is exhausted it repeats the final behaviour. Safe for
// concurrent use.
type Node struct {
	mu         sync.Mutex
	calls      int
	behaviours []Behaviour
}

// New builds a Node that plays back behaviours in order.
func New(behaviours ...Behaviour) *Node {
	if len(behaviours) == 0 {
		behaviours = []Behaviour{Succeed(nil)}
	}
	return &Node{behaviours: behaviours}
}

// Calls returns how many times Execute has been invoked.
func (n *Node) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *Node) Execute(_ context.Context, input json.RawMessage, _ *node.ExecutionContext) (json.RawMessage, *node.Error) {
	n.mu.Lock()
	idx := n.calls
	if idx >= len(n.behaviours) {
		idx = len(n.behaviours) - 1
	}
	n.calls++
	behaviour := n.behaviours[idx]
	n.mu.Unlock()

	if behaviour.Err != nil {
		return nil, behaviour.Err
	}

	merged := map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &merged); err != nil {
			return nil, node.FatalError("mock node: input was not a JSON object: %v", err)
		}
	}
	for k, v := range behaviour.Merge {
		merged[k] = v
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, node.FatalError("mock node: failed to marshal output: %v", err)
	}
	return out, nil
}
