package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"go.uber.org/zap"
)

// SubmissionRegistrar creates the clip record once the media is stored. The
// repository's unique constraint is authoritative; the lookup is a fast path
// that also reports the blocking record's status.
type SubmissionRegistrar struct {
	repo   port.SubmissionRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewSubmissionRegistrar(repo port.SubmissionRepository, logger *zap.Logger) *SubmissionRegistrar {
	return &SubmissionRegistrar{repo: repo, logger: logger, now: time.Now}
}

// CheckEligible fails with *entity.DuplicateSubmissionError when the vehicle
// already has an active record.
func (r *SubmissionRegistrar) CheckEligible(ctx context.Context, vehicleID string) error {
	existing, err := r.repo.FindActiveByParent(ctx, vehicleID)
	switch {
	case errors.Is(err, entity.ErrSubmissionNotFound):
		return nil
	case err != nil:
		return &entity.PersistenceError{Op: "find active", Err: err}
	}
	return &entity.DuplicateSubmissionError{
		ParentVehicleID: vehicleID,
		ExistingID:      existing.ID.String(),
		ExistingStatus:  existing.Status,
	}
}

// Register inserts a new under-review record for the draft's vehicle.
func (r *SubmissionRegistrar) Register(ctx context.Context, draft entity.SubmissionDraft, mediaKey, mediaURL string) (*entity.SubmissionRecord, error) {
	if err := r.CheckEligible(ctx, draft.ParentVehicleID); err != nil {
		return nil, err
	}

	rec := entity.NewSubmissionRecord(draft, mediaKey, mediaURL, r.now())
	if err := r.repo.Insert(ctx, rec); err != nil {
		var dup *entity.DuplicateSubmissionError
		if errors.As(err, &dup) {
			r.logger.Info("concurrent submission lost uniqueness race",
				zap.String("vehicle_id", draft.ParentVehicleID),
				zap.String("existing_status", string(dup.ExistingStatus)),
			)
			return nil, dup
		}
		return nil, &entity.PersistenceError{Op: "insert", Err: err}
	}

	r.logger.Info("clip registered",
		zap.String("submission_id", rec.ID.String()),
		zap.String("vehicle_id", rec.ParentVehicleID),
	)
	return rec, nil
}
