package builtin

import (
	"encoding/json"
	"fmt"

	"github.com/flowcore/automation-engine/internal/node"
	"github.com/flowcore/automation-engine/pkg/clients/email"
	"github.com/flowcore/automation-engine/pkg/clients/weather"
)

// Node type names recognized by a registry built with RegisterAll.
const (
	TypePassthrough   = "passthrough"
	TypeTransform     = "transform"
	TypeCondition     = "condition"
	TypeHTTPRequest   = "http_request"
	TypeWeatherLookup = "weather_lookup"
	TypeNotifyEmail   = "notify_email"
)

// Deps holds the external clients built-in nodes need during
// execution, decoupling the registry from concrete client wiring.
type Deps struct {
	Weather weather.Client
	Email   email.Client
}

// RegisterAll registers every built-in node type's factory on
// registry. Transform, Condition, HTTPRequest and NotifyEmail are
// parameterized per workflow node from that node's declared config;
// Passthrough and WeatherLookup need no per-instance config.
func RegisterAll(registry *node.Registry, deps Deps) {
	registry.RegisterInstance(TypePassthrough, Passthrough{})

	registry.Register(TypeTransform, func(config json.RawMessage) (node.Node, error) {
		cfg, err := ParseTransformConfig(config)
		if err != nil {
			return nil, fmt.Errorf("transform: %w", err)
		}
		return Transform{Config: cfg}, nil
	})

	registry.Register(TypeCondition, func(config json.RawMessage) (node.Node, error) {
		var cfg ConditionConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, fmt.Errorf("condition: invalid config: %w", err)
			}
		}
		return Condition{Config: cfg}, nil
	})

	registry.Register(TypeHTTPRequest, func(config json.RawMessage) (node.Node, error) {
		var cfg HTTPRequestConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, fmt.Errorf("http_request: invalid config: %w", err)
			}
		}
		return HTTPRequest{Config: cfg}, nil
	})

	registry.RegisterInstance(TypeWeatherLookup, WeatherLookup{Client: deps.Weather})

	registry.Register(TypeNotifyEmail, func(config json.RawMessage) (node.Node, error) {
		var cfg NotifyEmailConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, fmt.Errorf("notify_email: invalid config: %w", err)
			}
		}
		return NotifyEmail{Client: deps.Email, Config: cfg}, nil
	})
}
