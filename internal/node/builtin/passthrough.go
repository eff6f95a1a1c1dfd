package builtin

import (
	"context"
	"encoding/json"

	"github.com/flowcore/automation-engine/internal/node"
)

// Passthrough returns its input unchanged. Used for graph sentinels
// and no-ops.
type Passthrough struct{}

func (Passthrough) Execute(_ context.Context, input json.RawMessage, _ *node.ExecutionContext) (json.RawMessage, *node.Error) {
	if len(input) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return input, nil
}
