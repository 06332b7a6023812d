package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps question sets in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	metrics MetricsCollector
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(metrics MetricsCollector) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		metrics: metrics,
	}
}

func (m *MemoryStore) Save(ctx context.Context, rec *Record) (string, error) {
	start := time.Now()
	id, err := m.save(ctx, rec)

	m.recordMetric("save", start, err)
	return id, err
}

func (m *MemoryStore) save(ctx context.Context, rec *Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("record validation failed: %w", err)
	}
	rec = rec.clone()
	rec.prepare()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; exists {
		return "", fmt.Errorf("question set %s already exists", rec.ID)
	}
	m.records[rec.ID] = rec
	return rec.ID, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		m.recordMetric("get", start, err)
		return nil, err
	}

	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrNotFound, id)
		m.recordMetric("get", start, err)
		return nil, err
	}
	m.recordMetric("get", start, nil)
	return rec.clone(), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]Summary, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Summary)
	}
	m.mu.RUnlock()

	sortSummaries(out)
	return out, nil
}

func (m *MemoryStore) Health(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored sets
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) recordMetric(operation string, start time.Time, err error) {
	if m.metrics != nil {
		m.metrics.RecordMetric(StorageMetrics{
			OperationType: operation,
			Duration:      time.Since(start).Nanoseconds(),
			Success:       err == nil,
			Backend:       "memory",
			Error:         err,
		})
	}
}
