package storage

import (
	"fmt"

	"github.com/Caia-Tech/caia-quizcheck/pkg/config"
	"github.com/rs/zerolog/log"
)

// New creates the store named by the configuration
func New(cfg *config.StorageConfig, metrics MetricsCollector) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(metrics), nil
	case "git":
		git, err := NewGitStore(cfg.RepoPath, Author{Name: cfg.AuthorName, Email: cfg.AuthorEmail}, metrics)
		if err != nil {
			if !cfg.Fallback {
				return nil, err
			}
			log.Warn().Err(err).Str("path", cfg.RepoPath).Msg("Git store unavailable, keeping question sets in memory")
			return NewMemoryStore(metrics), nil
		}
		if !cfg.Fallback {
			return git, nil
		}
		hybrid, err := NewHybridStore(git, NewMemoryStore(metrics), &HybridConfig{
			EnableFallback:   true,
			OperationTimeout: cfg.OperationTimeout,
		}, metrics)
		if err != nil {
			return nil, err
		}
		return hybrid, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
