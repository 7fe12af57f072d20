package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ReviewSubmissionUseCase applies moderation decisions to clip records.
type ReviewSubmissionUseCase struct {
	repo      port.SubmissionRepository
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.ReviewNotifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewReviewSubmissionUseCase(
	repo port.SubmissionRepository,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.ReviewNotifier,
	logger *zap.Logger,
) *ReviewSubmissionUseCase {
	return &ReviewSubmissionUseCase{
		repo:      repo,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Decide transitions an under-review record to published or rejected.
func (uc *ReviewSubmissionUseCase) Decide(ctx context.Context, id uuid.UUID, decision entity.SubmissionStatus, reason string) (*entity.SubmissionRecord, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ReviewSubmissionUseCase.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("submission.id", id.String()),
		attribute.String("submission.decision", string(decision)),
	)

	rec, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := rec.Status
	if err := rec.Apply(decision, reason, uc.now()); err != nil {
		return nil, err
	}

	if err := uc.repo.UpdateStatus(ctx, rec.ID, from, rec.Status, rec.PublishedAt, rec.RejectionReason); err != nil {
		return nil, err
	}

	metrics.ReviewTransitionsTotal.WithLabelValues(string(rec.Status)).Inc()
	uc.logger.Info("clip reviewed",
		zap.String("submission_id", rec.ID.String()),
		zap.String("vehicle_id", rec.ParentVehicleID),
		zap.String("status", string(rec.Status)),
	)
	return rec, nil
}

// Execute handles one message from the moderation queue. Decisions that can
// never succeed are acknowledged; store failures are returned for requeue.
func (uc *ReviewSubmissionUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	var msg entity.ModerationDecisionMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal moderation message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	log := uc.logger.With(zap.String("submission_id", msg.SubmissionID.String()))

	_, err := uc.Review(ctx, msg)
	switch {
	case errors.Is(err, entity.ErrSubmissionNotFound), errors.Is(err, entity.ErrInvalidTransition):
		log.Warn("moderation decision dropped", zap.Error(err))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, err.Error())
		return nil
	case err != nil:
		return fmt.Errorf("apply decision: %w", err)
	}
	return nil
}

// Review applies a decision, then announces it on the status queue and
// e-mails the contact when one is given. Notification failures are logged only.
func (uc *ReviewSubmissionUseCase) Review(ctx context.Context, msg entity.ModerationDecisionMessage) (*entity.SubmissionRecord, error) {
	rec, err := uc.Decide(ctx, msg.SubmissionID, msg.Decision, msg.Reason)
	if err != nil {
		return nil, err
	}

	log := uc.logger.With(zap.String("submission_id", rec.ID.String()))
	uc.publishStatus(ctx, rec, log)

	if msg.ContactEmail != "" && uc.notifier != nil {
		if err := uc.notifier.NotifyReview(ctx, msg.ContactEmail, rec); err != nil {
			log.Warn("review notification failed", zap.Error(err))
		}
	}
	return rec, nil
}

func (uc *ReviewSubmissionUseCase) publishStatus(ctx context.Context, rec *entity.SubmissionRecord, log *zap.Logger) {
	id := rec.ID
	data, _ := json.Marshal(entity.ClipStatusMessage{
		SubmissionID: &id,
		VehicleID:    rec.ParentVehicleID,
		Stage:        entity.StageDone,
		Compression:  100,
		Upload:       100,
		Status:       rec.Status,
		MediaURL:     rec.MediaURL,
	})
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
