package entity

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type SubmissionStatus string

const (
	StatusUnderReview SubmissionStatus = "under_review"
	StatusPublished   SubmissionStatus = "published"
	StatusRejected    SubmissionStatus = "rejected"
)

const (
	TitleMinLen       = 3
	TitleMaxLen       = 100
	DescriptionMinLen = 10
	DescriptionMaxLen = 500
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusUnderReview, StatusPublished, StatusRejected:
		return true
	}
	return false
}

// Active reports whether a record in this status blocks a new submission for
// the same vehicle.
func (s SubmissionStatus) Active() bool {
	return s != StatusRejected
}

// SubmissionDraft is the descriptive part of a submission, before upload.
type SubmissionDraft struct {
	ParentVehicleID   string
	OwnerDealershipID string
	Title             string
	Description       string
}

func (d SubmissionDraft) Validate() error {
	if d.ParentVehicleID == "" {
		return NewValidationError(KindInvalidMetadata, fmt.Errorf("vehicle id is required"))
	}
	if d.OwnerDealershipID == "" {
		return NewValidationError(KindInvalidMetadata, fmt.Errorf("dealership id is required"))
	}
	n := utf8.RuneCountInString(d.Title)
	if n < TitleMinLen || n > TitleMaxLen {
		return NewValidationError(KindInvalidMetadata,
			fmt.Errorf("title must be %d-%d characters, got %d", TitleMinLen, TitleMaxLen, n))
	}
	if n := utf8.RuneCountInString(d.Description); n != 0 && (n < DescriptionMinLen || n > DescriptionMaxLen) {
		return NewValidationError(KindInvalidMetadata,
			fmt.Errorf("description must be empty or %d-%d characters, got %d", DescriptionMinLen, DescriptionMaxLen, n))
	}
	return nil
}

// SubmissionRecord is the durable clip row linked to a vehicle.
type SubmissionRecord struct {
	ID                uuid.UUID
	ParentVehicleID   string
	OwnerDealershipID string
	Title             string
	Description       string
	MediaURL          string
	ThumbnailURL      string
	MediaKey          string
	Status            SubmissionStatus
	ViewCount         int
	LikeCount         int
	ViewedBy          []string
	LikedBy           []string
	RejectionReason   string
	SubmittedAt       time.Time
	PublishedAt       *time.Time
}

// NewSubmissionRecord builds a record in its initial review state. The media
// URL doubles as the thumbnail URL.
func NewSubmissionRecord(d SubmissionDraft, mediaKey, mediaURL string, now time.Time) *SubmissionRecord {
	return &SubmissionRecord{
		ID:                uuid.New(),
		ParentVehicleID:   d.ParentVehicleID,
		OwnerDealershipID: d.OwnerDealershipID,
		Title:             d.Title,
		Description:       d.Description,
		MediaURL:          mediaURL,
		ThumbnailURL:      mediaURL,
		MediaKey:          mediaKey,
		Status:            StatusUnderReview,
		ViewedBy:          []string{},
		LikedBy:           []string{},
		SubmittedAt:       now.UTC(),
	}
}

// Publish moves an under-review record to published.
func (r *SubmissionRecord) Publish(now time.Time) error {
	if r.Status != StatusUnderReview {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusPublished)
	}
	t := now.UTC()
	r.Status = StatusPublished
	r.PublishedAt = &t
	return nil
}

// Reject moves an under-review record to rejected.
func (r *SubmissionRecord) Reject(reason string) error {
	if r.Status != StatusUnderReview {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusRejected)
	}
	r.Status = StatusRejected
	r.RejectionReason = reason
	r.PublishedAt = nil
	return nil
}

// Apply performs the transition named by target.
func (r *SubmissionRecord) Apply(target SubmissionStatus, reason string, now time.Time) error {
	switch target {
	case StatusPublished:
		return r.Publish(now)
	case StatusRejected:
		return r.Reject(reason)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, target)
	}
}
