package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	"go.uber.org/zap"
)

type EligibilityChecker interface {
	CheckEligible(ctx context.Context, vehicleID string) error
}

type Reviewer interface {
	Review(ctx context.Context, msg entity.ModerationDecisionMessage) (*entity.SubmissionRecord, error)
}

type Handler struct {
	publisher   port.SubmissionPublisher
	tracker     port.ProgressTracker
	repo        port.SubmissionRepository
	eligibility EligibilityChecker
	reviewer    Reviewer
	policy      entity.Policy
	checks      []metrics.HealthCheck
	logger      *zap.Logger
}

type HandlerDeps struct {
	Publisher   port.SubmissionPublisher
	Tracker     port.ProgressTracker
	Repo        port.SubmissionRepository
	Eligibility EligibilityChecker
	Reviewer    Reviewer
	Policy      entity.Policy
	Checks      []metrics.HealthCheck
}

func NewHandler(deps HandlerDeps, logger *zap.Logger) *Handler {
	return &Handler{
		publisher:   deps.Publisher,
		tracker:     deps.Tracker,
		repo:        deps.Repo,
		eligibility: deps.Eligibility,
		reviewer:    deps.Reviewer,
		policy:      deps.Policy,
		checks:      deps.Checks,
		logger:      logger,
	}
}

// SubmitClip checks the request shape and enqueues the submission. The
// asset itself is probed and validated by the worker.
func (h *Handler) SubmitClip(c *fiber.Ctx) error {
	var req submitClipRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Request body must be JSON.")
	}

	msg := entity.ClipSubmissionMessage{
		RequestID:    uuid.New(),
		VehicleID:    req.VehicleID,
		DealershipID: req.DealershipID,
		Title:        req.Title,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		Asset:        req.Asset,
	}
	if err := msg.Draft().Validate(); err != nil {
		return writeError(c, err)
	}
	if err := checkAssetShape(entity.NormalizeAsset(req.Asset), h.policy); err != nil {
		return writeError(c, err)
	}

	ctx := c.UserContext()
	if err := h.eligibility.CheckEligible(ctx, msg.VehicleID); err != nil {
		return writeError(c, err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.publisher.PublishSubmission(ctx, data); err != nil {
		h.logger.Error("failed to enqueue clip submission",
			zap.String("request_id", msg.RequestID.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{
			Error:   "queue_unavailable",
			Message: "The clip could not be queued. Please try again.",
		})
	}

	h.logger.Info("clip submission queued",
		zap.String("request_id", msg.RequestID.String()),
		zap.String("vehicle_id", msg.VehicleID),
	)
	return c.Status(fiber.StatusAccepted).JSON(submitClipResponse{
		RequestID: msg.RequestID,
		StatusURL: "/v1/clips/requests/" + msg.RequestID.String(),
	})
}

func checkAssetShape(asset entity.MediaAsset, policy entity.Policy) error {
	if asset.Path == "" {
		return entity.NewValidationError(entity.KindFileUnavailable, errors.New("asset path is required"))
	}
	if ext := entity.Extension(asset.Path); !policy.Allows(ext) {
		return entity.NewValidationError(entity.KindUnsupportedFormat, fmt.Errorf("extension %q is not allowed", ext))
	}
	if policy.DurationExceeded(asset.DurationMs) {
		return entity.NewValidationError(entity.KindDurationExceeded,
			fmt.Errorf("duration %dms exceeds %dms", asset.DurationMs, policy.MaxDurationMs))
	}
	if policy.SizeExceeded(asset.SizeBytes) {
		return entity.NewValidationError(entity.KindSizeExceeded,
			fmt.Errorf("size %d exceeds %d bytes", asset.SizeBytes, policy.MaxSizeBytes))
	}
	return nil
}

func (h *Handler) SubmissionProgress(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("requestId"))
	if err != nil {
		return badRequest(c, "invalid_id", "Request id must be a UUID.")
	}

	ev, err := h.tracker.Latest(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ev)
}

func (h *Handler) GetClip(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid_id", "Clip id must be a UUID.")
	}

	rec, err := h.repo.FindByID(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toClipResponse(rec))
}

func (h *Handler) GetVehicleClip(c *fiber.Ctx) error {
	rec, err := h.repo.FindActiveByParent(c.UserContext(), c.Params("vehicleId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toClipResponse(rec))
}

func (h *Handler) ReviewClip(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid_id", "Clip id must be a UUID.")
	}

	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Request body must be JSON.")
	}
	if req.Decision != entity.StatusPublished && req.Decision != entity.StatusRejected {
		return badRequest(c, "invalid_decision", "Decision must be published or rejected.")
	}

	rec, err := h.reviewer.Review(c.UserContext(), entity.ModerationDecisionMessage{
		SubmissionID: id,
		Decision:     req.Decision,
		Reason:       req.Reason,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toClipResponse(rec))
}

func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	results, ok := metrics.RunChecks(ctx, h.checks)
	if ok {
		return c.JSON(fiber.Map{"status": "ok"})
	}
	for _, res := range results {
		if res.Error != "" {
			h.logger.Warn("health check failed", zap.String("check", res.Name), zap.String("error", res.Error))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "check": res.Name})
		}
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
}
