package presentation

import (
	"context"

	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
)

// SetReader is the read side of storage.Store the presentation API needs
type SetReader interface {
	Get(ctx context.Context, id string) (*storage.Record, error)
	List(ctx context.Context) ([]storage.Summary, error)
	Health(ctx context.Context) error
}

var _ SetReader = (storage.Store)(nil)
