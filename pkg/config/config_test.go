package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/consistency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		level   string
		backend string
	}{
		{"Default", DefaultConfig(), "info", "git"},
		{"Production", ProductionConfig(), "info", "git"},
		{"Development", DevelopmentConfig(), "debug", "memory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.level, tt.config.Logging.Level)
			assert.Equal(t, tt.backend, tt.config.Storage.Backend)
			assert.NoError(t, tt.config.Validate())
		})
	}
}

func TestPresetByName(t *testing.T) {
	assert.Equal(t, 8, Preset("production").Pipeline.MaxWorkers)
	assert.Equal(t, "memory", Preset(" Development ").Storage.Backend)
	assert.Equal(t, DefaultConfig(), Preset("default"))
	assert.Equal(t, DefaultConfig(), Preset("staging"))
}

func TestLoadOverPreset(t *testing.T) {
	path := writeFile(t, "quizcheck.yaml", "pipeline:\n  default_provider: gemini\n")

	cfg, err := LoadOver(path, DevelopmentConfig())
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Pipeline.DefaultProvider)
	// keys the file omits keep the preset values
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 2, cfg.Pipeline.MaxWorkers)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "quizcheck.yaml", `
pipeline:
  default_provider: gemini
  consistency_profile: strict
  threshold_percent: 1.5
  run_timeout: 10s
  validation:
    expected_choices: 5
    min_pairs: 3
    min_ordering_items: 2
storage:
  backend: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Pipeline.DefaultProvider)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.RunTimeout)
	assert.Equal(t, 5, cfg.Pipeline.Validation.ExpectedChoices)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	// untouched sections keep their defaults
	assert.Equal(t, 8080, cfg.Server.Port)

	detector := cfg.Pipeline.ConsistencyConfig()
	assert.Equal(t, 1.5, detector.ThresholdPercent)
	assert.Equal(t, consistency.StrictConfig().MinorLimit, detector.MinorLimit)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "quizcheck.json", `{"server": {"host": "127.0.0.1", "port": 9000}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		contains string
	}{
		{"UnknownYAMLField", "a.yaml", "pipeline:\n  colour: blue\n", "colour"},
		{"UnknownJSONField", "a.json", `{"colour": "blue"}`, "colour"},
		{"MultipleDocuments", "a.yaml", "storage:\n  backend: memory\n---\nstorage:\n  backend: git\n", "multiple YAML documents"},
		{"UnknownProfile", "a.yaml", "pipeline:\n  consistency_profile: lax\n", "consistency_profile"},
		{"UnknownBackend", "a.yaml", "storage:\n  backend: s3\n", "storage.backend"},
		{"UnsupportedFormat", "a.toml", "x = 1", "unsupported config format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("QUIZCHECK_PROVIDER", "claude")
	t.Setenv("PORT", "9123")
	t.Setenv("TEMPORAL_ENABLED", "true")
	t.Setenv("PRESENTATION_PORT", "not-a-number")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "claude", cfg.Pipeline.DefaultProvider)
	assert.Equal(t, 9123, cfg.Server.Port)
	assert.True(t, cfg.Temporal.Enabled)
	assert.Equal(t, 8090, cfg.Presentation.Port)
}
