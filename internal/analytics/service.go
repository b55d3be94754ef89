package analytics

import (
	"context"

	"github.com/nulzo/prism-go/internal/store"
	"github.com/nulzo/prism-go/internal/store/model"
)

type Service interface {
	GetUsageOverview(ctx context.Context, days int) ([]model.DailyStats, error)
	GetRecent(ctx context.Context, limit int) ([]model.UsageRecord, error)
}

type service struct {
	repo store.Repository
}

func NewService(repo store.Repository) Service {
	return &service{
		repo: repo,
	}
}

func (s *service) GetUsageOverview(ctx context.Context, days int) ([]model.DailyStats, error) {
	if days <= 0 {
		days = 7 // default to last week
	}
	return s.repo.Usage().DailyStats(ctx, days)
}

func (s *service) GetRecent(ctx context.Context, limit int) ([]model.UsageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.Usage().Recent(ctx, limit)
}
