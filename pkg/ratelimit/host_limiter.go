// Package ratelimit spaces out requests to the hosts submissions are fetched from
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// HostLimiter enforces a minimum interval between requests to the same host and backs off
// a host after repeated errors
type HostLimiter struct {
	mu       sync.Mutex
	config   HostLimiterConfig
	limiters map[string]*hostState
}

// HostLimiterConfig tunes the limiter
type HostLimiterConfig struct {
	MinInterval    time.Duration
	ErrorThreshold int64
	BackoffStep    time.Duration
	MaxBackoff     time.Duration
	// Overrides sets a different interval per host
	Overrides map[string]time.Duration
}

// DefaultHostLimiterConfig returns the settings used for submission fetches
func DefaultHostLimiterConfig() HostLimiterConfig {
	return HostLimiterConfig{
		MinInterval:    time.Second,
		ErrorThreshold: 3,
		BackoffStep:    30 * time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

// hostState tracks rate limits for one host
type hostState struct {
	minInterval  time.Duration
	nextSlot     time.Time
	lastRequest  time.Time
	backoffUntil time.Time
	requestCount int64
	errorCount   int64
}

// NewHostLimiter creates a limiter
func NewHostLimiter(config HostLimiterConfig) *HostLimiter {
	return &HostLimiter{
		config:   config,
		limiters: make(map[string]*hostState),
	}
}

func (r *HostLimiter) state(host string) *hostState {
	host = strings.ToLower(host)
	s, ok := r.limiters[host]
	if !ok {
		interval := r.config.MinInterval
		if override, found := r.config.Overrides[host]; found {
			interval = override
		}
		s = &hostState{minInterval: interval}
		r.limiters[host] = s
	}
	return s
}

// Wait blocks until a request to host may be made. Concurrent callers are given consecutive slots.
func (r *HostLimiter) Wait(ctx context.Context, host string) error {
	r.mu.Lock()
	s := r.state(host)

	now := time.Now()
	slot := now
	if s.nextSlot.After(slot) {
		slot = s.nextSlot
	}
	if s.backoffUntil.After(slot) {
		slot = s.backoffUntil
	}
	s.nextSlot = slot.Add(s.minInterval)
	s.lastRequest = slot
	s.requestCount++
	r.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordError records a failed request and starts a growing backoff past the error threshold
func (r *HostLimiter) RecordError(host string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state(host)
	s.errorCount++

	if s.errorCount > r.config.ErrorThreshold {
		backoffDuration := time.Duration(s.errorCount) * r.config.BackoffStep
		if backoffDuration > r.config.MaxBackoff {
			backoffDuration = r.config.MaxBackoff
		}
		s.backoffUntil = time.Now().Add(backoffDuration)
	}
}

// RecordSuccess resets the error count for a host
func (r *HostLimiter) RecordSuccess(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state(host)
	s.errorCount = 0
	s.backoffUntil = time.Time{}
}

// GetStats returns statistics for every host seen so far
func (r *HostLimiter) GetStats() map[string]HostStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stats := make(map[string]HostStats, len(r.limiters))
	for name, s := range r.limiters {
		stats[name] = HostStats{
			RequestCount:    s.requestCount,
			ErrorCount:      s.errorCount,
			LastRequestTime: s.lastRequest,
			InBackoff:       now.Before(s.backoffUntil),
			BackoffUntil:    s.backoffUntil,
		}
	}
	return stats
}

// HostStats contains statistics for a host
type HostStats struct {
	RequestCount    int64
	ErrorCount      int64
	LastRequestTime time.Time
	InBackoff       bool
	BackoffUntil    time.Time
}
