package logx

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	assert.Equal(t, Production, ParseEnvironment("production"))
	assert.Equal(t, Staging, ParseEnvironment("staging"))
	assert.Equal(t, Testing, ParseEnvironment("testing"))
	assert.Equal(t, Development, ParseEnvironment("prod"))
	assert.Equal(t, Development, ParseEnvironment(""))
}

func TestInit_Level(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	Init(Production)
	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())

	Init(Development)
	assert.Equal(t, zerolog.DebugLevel, log.Logger.GetLevel())
}
