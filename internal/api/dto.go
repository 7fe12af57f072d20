package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
)

type submitClipRequest struct {
	VehicleID    string          `json:"vehicle_id"`
	DealershipID string          `json:"dealership_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	ContactEmail string          `json:"contact_email"`
	Asset        entity.RawAsset `json:"asset"`
}

type submitClipResponse struct {
	RequestID uuid.UUID `json:"request_id"`
	StatusURL string    `json:"status_url"`
}

type reviewRequest struct {
	Decision     entity.SubmissionStatus `json:"decision"`
	Reason       string                  `json:"reason"`
	ContactEmail string                  `json:"contact_email"`
}

type clipResponse struct {
	ID              uuid.UUID               `json:"id"`
	VehicleID       string                  `json:"vehicle_id"`
	DealershipID    string                  `json:"dealership_id"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description,omitempty"`
	MediaURL        string                  `json:"media_url"`
	ThumbnailURL    string                  `json:"thumbnail_url"`
	Status          entity.SubmissionStatus `json:"status"`
	ViewCount       int                     `json:"view_count"`
	LikeCount       int                     `json:"like_count"`
	RejectionReason string                  `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time               `json:"submitted_at"`
	PublishedAt     *time.Time              `json:"published_at,omitempty"`
}

func toClipResponse(rec *entity.SubmissionRecord) clipResponse {
	return clipResponse{
		ID:              rec.ID,
		VehicleID:       rec.ParentVehicleID,
		DealershipID:    rec.OwnerDealershipID,
		Title:           rec.Title,
		Description:     rec.Description,
		MediaURL:        rec.MediaURL,
		ThumbnailURL:    rec.ThumbnailURL,
		Status:          rec.Status,
		ViewCount:       rec.ViewCount,
		LikeCount:       rec.LikeCount,
		RejectionReason: rec.RejectionReason,
		SubmittedAt:     rec.SubmittedAt,
		PublishedAt:     rec.PublishedAt,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
