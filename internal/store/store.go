package store

import (
	"context"
	"errors"

	"github.com/nulzo/prism-go/internal/store/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Repository is the main contract for the data layer.
type Repository interface {
	Usage() UsageRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type UsageRepository interface {
	// Record stores one completed or failed call.
	Record(ctx context.Context, rec *model.UsageRecord) error
	// GetByID returns a single record.
	GetByID(ctx context.Context, id string) (*model.UsageRecord, error)
	// Recent returns the last N records, newest first.
	Recent(ctx context.Context, limit int) ([]model.UsageRecord, error)
	// DailyStats returns totals grouped by day for the last N days.
	DailyStats(ctx context.Context, days int) ([]model.DailyStats, error)
}
