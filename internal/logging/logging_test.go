package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "bot.log")

	log, closer := New(Options{Level: "debug", File: file, Console: &console})
	log.Debug().Str("timer", "g1/giveaway/m1").Msg("timer scheduled")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "timer scheduled")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "g1/giveaway/m1", line["timer"])
}

func TestLevelFiltering(t *testing.T) {
	var console bytes.Buffer
	log, _ := New(Options{Level: "warn", Console: &console})
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	var console bytes.Buffer
	log, _ := New(Options{Level: "loud", Console: &console})
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}
