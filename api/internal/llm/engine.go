package llm

import (
	"context"
	"fmt"
	"net/http"

	"ticket-proxy/api/internal/config"
	"ticket-proxy/api/internal/llm/gemini"
	"ticket-proxy/api/internal/llm/types"
)

type Engine interface {
	Name() string
	GetModel() string
	// Generate sends the payload and returns the first candidate's text.
	Generate(ctx context.Context, in types.Payload) (string, error)
}

// New builds the engine selected by cfg.Gemini.Transport.
func New(cfg *config.Config) (Engine, error) {
	g := cfg.Gemini
	switch g.Transport {
	case "", "rest":
		return gemini.NewREST(g.APIKey, g.Model,
			gemini.WithBaseURL(g.BaseURL, g.APIVersion),
			gemini.WithHTTPClient(&http.Client{Timeout: g.Timeout}),
			gemini.WithBreaker(gemini.NewCircuitBreaker("gemini", cfg.Breaker.Timeout, cfg.Breaker.MaxFailures)),
		), nil
	case "sdk":
		return gemini.NewSDK(g.APIKey, g.Model), nil
	default:
		return nil, fmt.Errorf("unknown transport %q; use rest|sdk", g.Transport)
	}
}
