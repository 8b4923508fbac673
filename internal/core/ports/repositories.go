package ports

import (
	"context"

	"github.com/samirrijal/geodetect/internal/core/domain"
)

// DetectionRepository persists detection runs.
type DetectionRepository interface {
	Upsert(ctx context.Context, run *domain.DetectionRun) error
	GetByID(ctx context.Context, id string) (*domain.DetectionRun, error)
	// List returns runs newest first, plus the total number of runs.
	List(ctx context.Context, limit, offset int) ([]domain.DetectionRun, int, error)
}
