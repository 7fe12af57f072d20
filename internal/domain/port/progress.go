package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
)

// ProgressTracker keeps the latest progress of each running submission.
type ProgressTracker interface {
	Track(ctx context.Context, ev entity.ProgressEvent) error
	Latest(ctx context.Context, requestID uuid.UUID) (*entity.ProgressEvent, error)
}
