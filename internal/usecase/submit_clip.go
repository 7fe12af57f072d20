package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// publishStep throttles intermediate progress messages on the status queue.
const publishStep = 10

type SubmitClipUseCase struct {
	validator  *AssetValidator
	compressor *Compressor
	uploader   *UploadCoordinator
	registrar  *SubmissionRegistrar
	publisher  port.StatusPublisher
	dlq        port.DLQPublisher
	tracker    port.ProgressTracker
	logger     *zap.Logger
	tempDir    string
	policy     entity.Policy
}

type SubmitClipConfig struct {
	TempDir string
	Policy  entity.Policy
}

// NewSubmitClipUseCase wires the pipeline. tracker may be nil.
func NewSubmitClipUseCase(
	validator *AssetValidator,
	compressor *Compressor,
	uploader *UploadCoordinator,
	registrar *SubmissionRegistrar,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	tracker port.ProgressTracker,
	logger *zap.Logger,
	cfg SubmitClipConfig,
) *SubmitClipUseCase {
	return &SubmitClipUseCase{
		validator:  validator,
		compressor: compressor,
		uploader:   uploader,
		registrar:  registrar,
		publisher:  publisher,
		dlq:        dlq,
		tracker:    tracker,
		logger:     logger,
		tempDir:    cfg.TempDir,
		policy:     cfg.Policy,
	}
}

// Start launches the pipeline for msg and returns immediately.
func (uc *SubmitClipUseCase) Start(ctx context.Context, msg entity.ClipSubmissionMessage) *Submission {
	if msg.RequestID == uuid.Nil {
		msg.RequestID = uuid.New()
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := newSubmission(msg.RequestID, msg.VehicleID, cancel)

	go func() {
		metrics.ActiveSubmissions.Inc()
		defer metrics.ActiveSubmissions.Dec()

		rec, err := uc.run(ctx, sub, msg)
		sub.finish(rec, err)
	}()
	return sub
}

// Execute handles one message from the submission queue. Pipeline failures
// are reported on the status queue and acknowledged; none are retried. When
// ctx ends mid-run the error is returned so the message is requeued.
func (uc *SubmitClipUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	var msg entity.ClipSubmissionMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	sub := uc.Start(ctx, msg)
	log := uc.logger.With(zap.String("request_id", sub.RequestID.String()), zap.String("vehicle_id", msg.VehicleID))

	var lastStage entity.Stage
	lastStep := -1
	for ev := range sub.Events() {
		uc.track(ctx, ev, log)
		step := (ev.Compression + ev.Upload) / publishStep
		if ev.Stage == entity.StageDone || ev.Stage == entity.StageFailed {
			continue
		}
		if ev.Stage != lastStage || step != lastStep {
			lastStage, lastStep = ev.Stage, step
			uc.publish(ctx, entity.StatusFromEvent(ev), log)
		}
	}

	rec, err := sub.Wait()
	if err != nil && ctx.Err() != nil {
		// The worker is stopping; no failure status, the delivery goes back to the queue.
		log.Info("submission interrupted by shutdown, requeueing", zap.Error(err))
		return fmt.Errorf("submission %s interrupted: %w", sub.RequestID, ctx.Err())
	}

	final := entity.StatusFromEvent(sub.Snapshot())
	if err != nil {
		final.ErrorCode, final.ErrorMessage = entity.Describe(err)
		var dup *entity.DuplicateSubmissionError
		if errors.As(err, &dup) {
			final.ExistingStatus = dup.ExistingStatus
		}
	} else {
		id := rec.ID
		final.SubmissionID = &id
		final.Status = rec.Status
		final.MediaURL = rec.MediaURL
	}
	uc.publish(ctx, final, log)
	return nil
}

func (uc *SubmitClipUseCase) run(ctx context.Context, sub *Submission, msg entity.ClipSubmissionMessage) (*entity.SubmissionRecord, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "SubmitClipUseCase.run")
	defer span.End()

	span.SetAttributes(
		attribute.String("clip.request_id", sub.RequestID.String()),
		attribute.String("clip.vehicle_id", msg.VehicleID),
	)

	log := uc.logger.With(zap.String("request_id", sub.RequestID.String()), zap.String("vehicle_id", msg.VehicleID))
	totalTimer := time.Now()

	rec, err := uc.pipeline(ctx, sub, msg, log)
	if err != nil {
		code, _ := entity.Describe(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		metrics.SubmissionsTotal.WithLabelValues(code).Inc()
		log.Warn("clip submission failed", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	metrics.SubmissionsTotal.WithLabelValues("registered").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return rec, nil
}

func (uc *SubmitClipUseCase) pipeline(
	ctx context.Context,
	sub *Submission,
	msg entity.ClipSubmissionMessage,
	log *zap.Logger,
) (*entity.SubmissionRecord, error) {
	tracer := otel.Tracer("usecase")
	draft := msg.Draft()

	// Validate metadata, asset and eligibility before any expensive work
	sub.setStage(entity.StageValidating)
	vStart := time.Now()
	ctx2, spanV := tracer.Start(ctx, "validate_asset")
	if err := draft.Validate(); err != nil {
		spanV.End()
		return nil, err
	}
	asset, err := uc.validator.Validate(ctx2, entity.NormalizeAsset(msg.Asset), uc.policy)
	if err != nil {
		spanV.End()
		return nil, err
	}
	if err := uc.registrar.CheckEligible(ctx2, draft.ParentVehicleID); err != nil {
		spanV.End()
		return nil, err
	}
	spanV.End()
	metrics.StageDuration.WithLabelValues("validate").Observe(time.Since(vStart).Seconds())

	workDir := filepath.Join(uc.tempDir, sub.RequestID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Compress
	sub.setStage(entity.StageCompressing)
	cStart := time.Now()
	ctx3, spanC := tracer.Start(ctx, "compress_clip")
	result, err := uc.compressor.Compress(ctx3, asset, uc.policy, workDir, sub.compressionProgress)
	spanC.SetAttributes(attribute.Bool("compression.simulated", result.Simulated))
	spanC.End()
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("compress").Observe(time.Since(cStart).Seconds())

	// Upload
	sub.setStage(entity.StageUploading)
	uStart := time.Now()
	ctx4, spanU := tracer.Start(ctx, "upload_clip")
	key := uc.uploader.NewKey(draft.ParentVehicleID, entity.Extension(result.OutputPath))
	spanU.SetAttributes(attribute.String("clip.object_key", key))
	mediaURL, err := uc.uploader.Upload(ctx4, result, key, uc.policy.UploadTimeout, sub.uploadProgress)
	spanU.End()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(uStart).Seconds())

	if err := ctx.Err(); err != nil {
		log.Warn("canceled after upload, object left for reconciliation", zap.String("key", key))
		return nil, err
	}

	// Register
	sub.setStage(entity.StageRegistering)
	rStart := time.Now()
	ctx5, spanR := tracer.Start(ctx, "register_clip")
	rec, err := uc.registrar.Register(ctx5, draft, key, mediaURL)
	spanR.End()
	if err != nil {
		var perr *entity.PersistenceError
		if errors.As(err, &perr) {
			log.Error("clip stored but not registered", zap.String("key", key), zap.Error(err))
		}
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("register").Observe(time.Since(rStart).Seconds())

	log.Info("clip submission completed",
		zap.String("submission_id", rec.ID.String()),
		zap.Bool("compression_simulated", result.Simulated),
		zap.Int("compression_ratio_percent", result.CompressionRatioPercent),
	)
	return rec, nil
}

func (uc *SubmitClipUseCase) track(ctx context.Context, ev entity.ProgressEvent, log *zap.Logger) {
	if uc.tracker == nil {
		return
	}
	if err := uc.tracker.Track(ctx, ev); err != nil {
		log.Debug("failed to track progress", zap.Error(err))
	}
}

func (uc *SubmitClipUseCase) publish(ctx context.Context, msg entity.ClipStatusMessage, log *zap.Logger) {
	data, _ := json.Marshal(msg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
