package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWritesFile(t *testing.T) {
	previous := log.Logger
	previousLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(previousLevel)
	}()

	path := filepath.Join(t.TempDir(), "logs", "quizcheck.log")
	closer, err := SetupLogger(&LogConfig{Level: "INFO", Format: "json", OutputFile: path})
	require.NoError(t, err)

	storageLogger := GetStorageLogger("save", "git")
	storageLogger.Info().Str("set_id", "abc").Msg("Stored question set")
	apiLogger := GetLogger("api")
	apiLogger.Debug().Msg("filtered out")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"storage_operation":"save"`)
	assert.Contains(t, string(data), `"set_id":"abc"`)
	assert.NotContains(t, string(data), "filtered out")
}

func TestSetupLoggerInvalidLevel(t *testing.T) {
	_, err := SetupLogger(&LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestPresets(t *testing.T) {
	assert.Equal(t, "info", DefaultLogConfig().Level)

	cli := CLILogConfig()
	assert.True(t, cli.Stderr)
	assert.Empty(t, cli.OutputFile)
}
