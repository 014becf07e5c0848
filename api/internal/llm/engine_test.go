package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-proxy/api/internal/config"
)

func TestNew(t *testing.T) {
	cfg := &config.Config{Gemini: config.GeminiConfig{APIKey: "k", Model: "gemini-2.0-flash", Transport: "rest"}}
	e, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini-rest", e.Name())
	assert.Equal(t, "gemini-2.0-flash", e.GetModel())

	cfg.Gemini.Transport = "sdk"
	e, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini-sdk", e.Name())

	cfg.Gemini.Transport = "grpc"
	_, err = New(cfg)
	assert.Error(t, err)
}
