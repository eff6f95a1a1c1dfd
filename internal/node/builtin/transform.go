package builtin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/flowcore/automation-engine/internal/node"
)

// TransformConfig describes a static field-mapping applied to a
// node's input: Pick selects a subset of fields (all fields if empty),
// and Rename renames picked fields in the output.
type TransformConfig struct {
	Pick   []string          `json:"pick"`
	Rename map[string]string `json:"rename"`
	Merge  map[string]any    `json:"merge"`
}

// Transform applies a static JSON merge/pick/rename to its input,
// generalizing the form-field-collection idiom into a reusable step.
type Transform struct {
	Config TransformConfig
}

func (t Transform) Execute(_ context.Context, input json.RawMessage, _ *node.ExecutionContext) (json.RawMessage, *node.Error) {
	var in map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, node.FatalError("transform: input was not a JSON object: %v", err)
		}
	}
	if in == nil {
		in = map[string]any{}
	}

	out := map[string]any{}
	if len(t.Config.Pick) == 0 {
		for k, v := range in {
			out[k] = v
		}
	} else {
		for _, field := range t.Config.Pick {
			val, ok := in[field]
			if !ok {
				return nil, node.FatalError("transform: missing required field %q", field)
			}
			out[field] = val
		}
	}

	for from, to := range t.Config.Rename {
		if val, ok := out[from]; ok {
			delete(out, from)
			out[to] = val
		}
	}
	for k, v := range t.Config.Merge {
		out[k] = v
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, node.FatalError("transform: failed to marshal output: %v", err)
	}
	return encoded, nil
}

// ParseTransformConfig decodes a NodeDefinition's config document into
// a TransformConfig.
func ParseTransformConfig(raw json.RawMessage) (TransformConfig, error) {
	var cfg TransformConfig
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return TransformConfig{}, err
	}
	return cfg, nil
}
