package port

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
)

// SubmissionRepository persists clip records. Insert must enforce at most one
// non-rejected record per vehicle and report a violation as
// *entity.DuplicateSubmissionError.
type SubmissionRepository interface {
	Insert(ctx context.Context, rec *entity.SubmissionRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.SubmissionRecord, error)
	FindActiveByParent(ctx context.Context, vehicleID string) (*entity.SubmissionRecord, error)
	// UpdateStatus applies a transition only if the stored status still equals from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.SubmissionStatus, publishedAt *time.Time, reason string) error
	MediaKeyExists(ctx context.Context, key string) (bool, error)
}
