package builtin

import (
	"context"
	"encoding/json"

	"github.com/flowcore/automation-engine/internal/node"
	"github.com/flowcore/automation-engine/pkg/clients/weather"
)

// WeatherLookup wraps the weather client to fetch a temperature for a
// lat/lon pulled from the node's input.
type WeatherLookup struct {
	Client weather.Client
}

func (w WeatherLookup) Execute(ctx context.Context, input json.RawMessage, _ *node.ExecutionContext) (json.RawMessage, *node.Error) {
	var in struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, node.FatalError("weather_lookup: input missing lat/lon: %v", err)
	}

	temp, err := w.Client.GetTemperature(ctx, in.Lat, in.Lon)
	if err != nil {
		return nil, node.RetryableError("weather_lookup: %v", err)
	}

	out, merr := json.Marshal(map[string]any{
		"lat":         in.Lat,
		"lon":         in.Lon,
		"temperature": temp,
	})
	if merr != nil {
		return nil, node.FatalError("weather_lookup: failed to marshal output: %v", merr)
	}
	return out, nil
}
