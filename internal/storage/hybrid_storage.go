package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// HybridConfig defines how the hybrid store falls back
type HybridConfig struct {
	// Enable fallback to the secondary store on failure
	EnableFallback bool `json:"enable_fallback"`

	// Timeout for operations before falling back
	OperationTimeout time.Duration `json:"operation_timeout"`
}

// DefaultHybridConfig returns sensible defaults for hybrid storage
func DefaultHybridConfig() *HybridConfig {
	return &HybridConfig{
		EnableFallback:   true,
		OperationTimeout: 30 * time.Second,
	}
}

// HybridStore writes to a primary store and falls back to a secondary one when the primary fails
type HybridStore struct {
	primary          Store
	secondary        Store
	config           *HybridConfig
	metricsCollector MetricsCollector
}

// NewHybridStore creates a hybrid store; secondary may be nil when fallback is disabled
func NewHybridStore(primary, secondary Store, config *HybridConfig, metrics MetricsCollector) (*HybridStore, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary store is required")
	}
	if config == nil {
		config = DefaultHybridConfig()
	}
	if config.EnableFallback && secondary == nil {
		return nil, fmt.Errorf("fallback requires a secondary store")
	}
	return &HybridStore{
		primary:          primary,
		secondary:        secondary,
		config:           config,
		metricsCollector: metrics,
	}, nil
}

func (h *HybridStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.config.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.config.OperationTimeout)
}

// Save stores a set using the hybrid strategy
func (h *HybridStore) Save(ctx context.Context, rec *Record) (string, error) {
	start := time.Now()

	timeoutCtx, cancel := h.withTimeout(ctx)
	defer cancel()

	id, err := h.primary.Save(timeoutCtx, rec)
	if err != nil && h.config.EnableFallback && ctx.Err() == nil {
		log.Warn().
			Err(err).
			Msg("Primary store failed, trying fallback")

		id, err = h.secondary.Save(ctx, rec)
		if err == nil {
			h.recordHybridMetric("save", start, true, "fallback_success")
		} else {
			h.recordHybridMetric("save", start, false, "both_failed")
		}
	} else if err == nil {
		h.recordHybridMetric("save", start, true, "primary_success")
	} else {
		h.recordHybridMetric("save", start, false, "primary_failed_no_fallback")
	}

	return id, err
}

// Get retrieves a set from the primary store, then from the fallback
func (h *HybridStore) Get(ctx context.Context, id string) (*Record, error) {
	start := time.Now()

	timeoutCtx, cancel := h.withTimeout(ctx)
	defer cancel()

	rec, err := h.primary.Get(timeoutCtx, id)
	if err != nil && h.config.EnableFallback && ctx.Err() == nil {
		log.Debug().
			Err(err).
			Str("set_id", id).
			Msg("Primary store miss, trying fallback")

		rec, err = h.secondary.Get(ctx, id)
		if err == nil {
			h.recordHybridMetric("get", start, true, "fallback_success")
		} else {
			h.recordHybridMetric("get", start, false, "both_failed")
		}
	} else if err == nil {
		h.recordHybridMetric("get", start, true, "primary_success")
	} else {
		h.recordHybridMetric("get", start, false, "primary_failed_no_fallback")
	}

	return rec, err
}

// List merges the summaries of both stores
func (h *HybridStore) List(ctx context.Context) ([]Summary, error) {
	start := time.Now()

	timeoutCtx, cancel := h.withTimeout(ctx)
	defer cancel()

	summaries, err := h.primary.List(timeoutCtx)
	if err != nil {
		h.recordHybridMetric("list", start, false, "primary_failed")
		return nil, err
	}

	if h.config.EnableFallback {
		extra, err := h.secondary.List(timeoutCtx)
		if err != nil {
			log.Warn().Err(err).Msg("Fallback store list failed")
		}
		seen := make(map[string]bool, len(summaries))
		for _, s := range summaries {
			seen[s.ID] = true
		}
		for _, s := range extra {
			if !seen[s.ID] {
				summaries = append(summaries, s)
			}
		}
		sortSummaries(summaries)
	}

	h.recordHybridMetric("list", start, true, "primary_success")
	return summaries, nil
}

// Health reports healthy while at least one store is usable
func (h *HybridStore) Health(ctx context.Context) error {
	start := time.Now()

	timeoutCtx, cancel := h.withTimeout(ctx)
	defer cancel()

	primaryErr := h.primary.Health(timeoutCtx)
	if primaryErr == nil {
		h.recordHybridMetric("health", start, true, "primary_healthy")
		return nil
	}
	if !h.config.EnableFallback {
		h.recordHybridMetric("health", start, false, "primary_failed")
		return primaryErr
	}

	secondaryErr := h.secondary.Health(timeoutCtx)
	if secondaryErr == nil {
		h.recordHybridMetric("health", start, true, "fallback_healthy")
		return nil
	}
	h.recordHybridMetric("health", start, false, "both_failed")
	return fmt.Errorf("both stores unhealthy: %w", errors.Join(primaryErr, secondaryErr))
}

func (h *HybridStore) recordHybridMetric(operation string, start time.Time, success bool, result string) {
	if h.metricsCollector != nil {
		h.metricsCollector.RecordMetric(StorageMetrics{
			OperationType: operation,
			Duration:      time.Since(start).Nanoseconds(),
			Success:       success,
			Backend:       fmt.Sprintf("hybrid_%s", result),
		})
	}
}
