package relay

import (
	"fmt"

	"ticket-proxy/api/internal/config"
	"ticket-proxy/api/internal/llm"
	"ticket-proxy/api/internal/ticket"
)

// FromConfig wires the engine, strategy and fallback fields described by cfg.
func FromConfig(cfg *config.Config, rec Recorder) (*Service, error) {
	engine, err := llm.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	strategy, err := ParseStrategy(cfg.Relay.Strategy)
	if err != nil {
		return nil, err
	}
	fields, err := ticket.ParseFields(cfg.Relay.FallbackFields)
	if err != nil {
		return nil, fmt.Errorf("RELAY_FALLBACK_FIELDS: %w", err)
	}
	return New(engine, strategy, WithFallbackFields(fields...), WithRecorder(rec)), nil
}
