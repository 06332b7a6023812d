package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/consistency"
	"github.com/Caia-Tech/caia-quizcheck/internal/validation"
	"github.com/Caia-Tech/caia-quizcheck/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Config holds complete application configuration
type Config struct {
	// Logging configuration
	Logging *logging.LogConfig `json:"logging" yaml:"logging"`

	// Pipeline stage configuration
	Pipeline *PipelineConfig `json:"pipeline" yaml:"pipeline"`

	// Validation API configuration
	Server *ServerConfig `json:"server" yaml:"server"`

	// Presentation API configuration
	Presentation *PresentationConfig `json:"presentation" yaml:"presentation"`

	// Storage configuration
	Storage *StorageConfig `json:"storage" yaml:"storage"`

	// Temporal configuration
	Temporal *TemporalConfig `json:"temporal" yaml:"temporal"`
}

// PipelineConfig holds the tunables of the validation pipeline
type PipelineConfig struct {
	// DefaultProvider is used when a submission names none
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`

	// ConsistencyProfile selects "default" or "strict" thresholds
	ConsistencyProfile string `json:"consistency_profile" yaml:"consistency_profile"`

	// Consistency overrides individual thresholds of the profile when non-zero
	ThresholdPercent float64 `json:"threshold_percent,omitempty" yaml:"threshold_percent,omitempty"`
	MinorLimit       float64 `json:"minor_limit,omitempty" yaml:"minor_limit,omitempty"`
	MajorLimit       float64 `json:"major_limit,omitempty" yaml:"major_limit,omitempty"`

	// Validation conventions
	Validation validation.Config `json:"validation" yaml:"validation"`

	// DisabledNormalization names normalizer rules to skip
	DisabledNormalization []string `json:"disabled_normalization,omitempty" yaml:"disabled_normalization,omitempty"`

	// Timeouts and limits
	RunTimeout   time.Duration `json:"run_timeout" yaml:"run_timeout"`
	MaxInputSize int64         `json:"max_input_size" yaml:"max_input_size"` // bytes
	MaxWorkers   int           `json:"max_workers" yaml:"max_workers"`
}

// ServerConfig holds validation API settings
type ServerConfig struct {
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout"`
	MaxRequestSize int64         `json:"max_request_size" yaml:"max_request_size"`
	CORSOrigins    string        `json:"cors_origins" yaml:"cors_origins"`
}

// PresentationConfig holds read-only API settings
type PresentationConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// StorageConfig selects and configures the question set store
type StorageConfig struct {
	Backend          string        `json:"backend" yaml:"backend"` // git, memory
	RepoPath         string        `json:"repo_path" yaml:"repo_path"`
	AuthorName       string        `json:"author_name" yaml:"author_name"`
	AuthorEmail      string        `json:"author_email" yaml:"author_email"`
	OperationTimeout time.Duration `json:"operation_timeout" yaml:"operation_timeout"`
	// Fallback keeps sets in memory when the git backend fails
	Fallback bool `json:"fallback" yaml:"fallback"`
}

// TemporalConfig holds batch workflow settings
type TemporalConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	HostPort  string `json:"host_port" yaml:"host_port"`
	Namespace string `json:"namespace" yaml:"namespace"`
	TaskQueue string `json:"task_queue" yaml:"task_queue"`
}

// DefaultConfig returns a complete default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: logging.DefaultLogConfig(),

		Pipeline: &PipelineConfig{
			DefaultProvider:    "auto",
			ConsistencyProfile: "default",
			Validation:         validation.DefaultConfig(),
			RunTimeout:         30 * time.Second,
			MaxInputSize:       2 * 1024 * 1024, // 2MB
			MaxWorkers:         4,
		},

		Server: &ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxRequestSize: 4 * 1024 * 1024, // 4MB
			CORSOrigins:    "*",
		},

		Presentation: &PresentationConfig{
			Enabled: true,
			Port:    8090,
		},

		Storage: &StorageConfig{
			Backend:          "git",
			RepoPath:         "./data/question-sets",
			AuthorName:       "quizcheck",
			AuthorEmail:      "quizcheck@caiatech.local",
			OperationTimeout: 30 * time.Second,
			Fallback:         true,
		},

		Temporal: &TemporalConfig{
			Enabled:   false,
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "quizcheck-batch",
		},
	}
}

// ProductionConfig returns production-ready configuration
func ProductionConfig() *Config {
	config := DefaultConfig()

	// Production logging
	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Console = false

	// Production processing
	config.Pipeline.MaxWorkers = 8
	config.Temporal.Enabled = true

	// Production storage
	config.Storage.Fallback = false

	return config
}

// DevelopmentConfig returns development configuration
func DevelopmentConfig() *Config {
	config := DefaultConfig()

	// Development logging
	config.Logging.Level = "debug"
	config.Logging.Format = "pretty"
	config.Logging.Console = true
	config.Logging.OutputFile = ""

	// Development storage
	config.Storage.Backend = "memory"

	// Development processing
	config.Pipeline.MaxWorkers = 2

	return config
}

// Preset returns the named configuration preset: "production", "development" or the defaults
func Preset(name string) *Config {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "production":
		return ProductionConfig()
	case "development":
		return DevelopmentConfig()
	}
	return DefaultConfig()
}

// Load reads a YAML or JSON file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads a YAML or JSON file over base, so keys the file omits keep the base values.
// base is modified in place and returned.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := base
	if config == nil {
		config = DefaultConfig()
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(config); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && err != io.EOF {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			if err == nil {
				return nil, fmt.Errorf("parse config: multiple YAML documents are not supported")
			}
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides settings from QUIZCHECK_* environment variables
func (c *Config) ApplyEnv() {
	c.Logging.Level = getEnv("QUIZCHECK_LOG_LEVEL", c.Logging.Level)
	c.Pipeline.DefaultProvider = getEnv("QUIZCHECK_PROVIDER", c.Pipeline.DefaultProvider)
	c.Pipeline.ConsistencyProfile = getEnv("QUIZCHECK_CONSISTENCY_PROFILE", c.Pipeline.ConsistencyProfile)
	c.Server.Host = getEnv("QUIZCHECK_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.CORSOrigins = getEnv("CORS_ORIGINS", c.Server.CORSOrigins)
	c.Presentation.Port = getEnvInt("PRESENTATION_PORT", c.Presentation.Port)
	c.Storage.Backend = getEnv("QUIZCHECK_STORAGE", c.Storage.Backend)
	c.Storage.RepoPath = getEnv("QUIZCHECK_REPO_PATH", c.Storage.RepoPath)
	c.Temporal.HostPort = getEnv("TEMPORAL_HOST", c.Temporal.HostPort)
	c.Temporal.Enabled = getEnvBool("TEMPORAL_ENABLED", c.Temporal.Enabled)
}

// Validate checks the values that have no usable fallback
func (c *Config) Validate() error {
	var problems []string
	if c.Pipeline == nil || c.Server == nil || c.Storage == nil || c.Logging == nil || c.Temporal == nil || c.Presentation == nil {
		return fmt.Errorf("invalid config: every section must be present")
	}
	switch c.Pipeline.ConsistencyProfile {
	case "default", "strict":
	default:
		problems = append(problems, fmt.Sprintf("pipeline.consistency_profile: unknown profile %q", c.Pipeline.ConsistencyProfile))
	}
	switch c.Storage.Backend {
	case "git", "memory":
	default:
		problems = append(problems, fmt.Sprintf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	if c.Storage.Backend == "git" && strings.TrimSpace(c.Storage.RepoPath) == "" {
		problems = append(problems, "storage.repo_path: is required for the git backend")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port: %d is out of range", c.Server.Port))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ConsistencyConfig resolves the detector thresholds for the configured profile
func (p *PipelineConfig) ConsistencyConfig() consistency.Config {
	cfg := consistency.DefaultConfig()
	if p.ConsistencyProfile == "strict" {
		cfg = consistency.StrictConfig()
	}
	if p.ThresholdPercent > 0 {
		cfg.ThresholdPercent = p.ThresholdPercent
	}
	if p.MinorLimit > 0 {
		cfg.MinorLimit = p.MinorLimit
	}
	if p.MajorLimit > 0 {
		cfg.MajorLimit = p.MajorLimit
	}
	return cfg
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}
