package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/pipeline"
	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no stored set has the requested ID
var ErrNotFound = errors.New("question set not found")

// Store defines the interface for question set storage implementations
type Store interface {
	Save(ctx context.Context, rec *Record) (string, error)
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]Summary, error)
	Health(ctx context.Context) error
}

// Summary describes a stored set without its questions; it is persisted as metadata.json
type Summary struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	Provider  string            `json:"provider"`
	Source    string            `json:"source,omitempty"`
	Questions int               `json:"questions"`
	Status    report.Status     `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Record is an accepted question set with the report and raw text it came from
type Record struct {
	Summary
	Text   string                   `json:"-"`
	Set    *question.QuestionSet    `json:"set"`
	Report *report.ValidationReport `json:"report,omitempty"`
}

// NewRecord builds a record from a successful run. text is the raw submission.
func NewRecord(result *pipeline.Result, text string) (*Record, error) {
	if result == nil || !result.Success {
		return nil, fmt.Errorf("only successful runs can be stored")
	}
	rec := &Record{
		Summary: Summary{
			RunID:    result.RunID,
			Provider: result.Provider,
			Source:   result.Source,
			Metadata: map[string]string{},
		},
		Text:   text,
		Set:    result.Set,
		Report: result.Report,
	}
	if result.Recipe != "" {
		rec.Metadata["recipe"] = result.Recipe
	}
	if result.Repaired {
		rec.Metadata["repaired"] = "true"
	}
	return rec, rec.Validate()
}

// Validate checks that the record can be stored
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if err := r.Set.Validate(); err != nil {
		return err
	}
	if r.ID != "" && !ValidID(r.ID) {
		return fmt.Errorf("invalid set ID %q", r.ID)
	}
	return nil
}

// prepare fills the ID, timestamp and roll-up fields before a save
func (r *Record) prepare() {
	if r.ID == "" {
		r.ID = GenerateID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Questions = r.Set.Len()
	if r.Report != nil {
		r.Status = r.Report.Status
	}
}

// clone copies the record so stores never share a set with callers
func (r *Record) clone() *Record {
	c := *r
	c.Set = r.Set.Clone()
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// GenerateID creates a new set ID
func GenerateID() string {
	return "qs_" + uuid.New().String()
}

// ValidID reports whether id is safe to use as a directory name
func ValidID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// StorageMetrics provides telemetry for storage operations
type StorageMetrics struct {
	OperationType string
	Duration      int64 // nanoseconds
	Success       bool
	Backend       string
	Error         error
}

// MetricsCollector receives storage operation metrics
type MetricsCollector interface {
	RecordMetric(metric StorageMetrics)
}
