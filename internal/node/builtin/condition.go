package builtin

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/flowcore/automation-engine/internal/node"
)

// ConditionConfig names the input field to compare, the operator, and
// the threshold.
type ConditionConfig struct {
	Field     string  `json:"field"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// Condition evaluates a comparison against its input and emits the
// result as informational output. Since this engine's Edge type
// carries no branch selector, the result does not fork control flow;
// it is passed downstream like any other node's output.
type Condition struct {
	Config ConditionConfig
}

func (c Condition) Execute(_ context.Context, input json.RawMessage, _ *node.ExecutionContext) (json.RawMessage, *node.Error) {
	var in map[string]any
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, node.FatalError("condition: input was not a JSON object: %v", err)
	}

	field := c.Config.Field
	if field == "" {
		field = "value"
	}
	operator := c.Config.Operator
	if operator == "" {
		operator = "greater_than"
	}

	value, ok := toFloat64(in[field])
	if !ok {
		return nil, node.FatalError("condition: missing or non-numeric field %q", field)
	}

	met, err := evaluate(value, operator, c.Config.Threshold)
	if err != nil {
		return nil, node.FatalError("condition: %v", err)
	}

	out := map[string]any{
		"conditionMet": met,
		"field":        field,
		"operator":     operator,
		"threshold":    c.Config.Threshold,
		"actualValue":  value,
	}
	encoded, merr := json.Marshal(out)
	if merr != nil {
		return nil, node.FatalError("condition: failed to marshal output: %v", merr)
	}
	return encoded, nil
}

func evaluate(value float64, operator string, threshold float64) (bool, error) {
	switch operator {
	case "greater_than":
		return value > threshold, nil
	case "less_than":
		return value < threshold, nil
	case "equal_to":
		return value == threshold, nil
	case "greater_than_or_equal":
		return value >= threshold, nil
	case "less_than_or_equal":
		return value <= threshold, nil
	default:
		return false, unsupportedOperatorError(operator)
	}
}

type unsupportedOperatorError string

func (e unsupportedOperatorError) Error() string {
	return "unsupported operator: " + string(e)
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
