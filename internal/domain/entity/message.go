package entity

import (
	"time"

	"github.com/google/uuid"
)

// ClipSubmissionMessage is the inbound message from the clip.submission queue.
type ClipSubmissionMessage struct {
	RequestID    uuid.UUID `json:"request_id"`
	VehicleID    string    `json:"vehicle_id"`
	DealershipID string    `json:"dealership_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	Asset        RawAsset  `json:"asset"`
}

func (m ClipSubmissionMessage) Draft() SubmissionDraft {
	return SubmissionDraft{
		ParentVehicleID:   m.VehicleID,
		OwnerDealershipID: m.DealershipID,
		Title:             m.Title,
		Description:       m.Description,
	}
}

// ModerationDecisionMessage is the inbound message from the clip.moderation queue.
type ModerationDecisionMessage struct {
	SubmissionID uuid.UUID        `json:"submission_id"`
	Decision     SubmissionStatus `json:"decision"`
	Reason       string           `json:"reason,omitempty"`
	ContactEmail string           `json:"contact_email,omitempty"`
}

type Stage string

const (
	StageValidating  Stage = "validating"
	StageCompressing Stage = "compressing"
	StageUploading   Stage = "uploading"
	StageRegistering Stage = "registering"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// ProgressEvent is emitted by a running submission. Compression and upload
// progress are independent 0-100 percentages.
type ProgressEvent struct {
	RequestID   uuid.UUID `json:"request_id"`
	VehicleID   string    `json:"vehicle_id"`
	Stage       Stage     `json:"stage"`
	Compression int       `json:"compression_progress"`
	Upload      int       `json:"upload_progress"`
	At          time.Time `json:"at"`
}

// ClipStatusMessage is the outbound message published to the clip.status queue.
type ClipStatusMessage struct {
	RequestID      uuid.UUID        `json:"request_id,omitempty"`
	SubmissionID   *uuid.UUID       `json:"submission_id,omitempty"`
	VehicleID      string           `json:"vehicle_id"`
	Stage          Stage            `json:"stage"`
	Compression    int              `json:"compression_progress"`
	Upload         int              `json:"upload_progress"`
	Status         SubmissionStatus `json:"status,omitempty"`
	MediaURL       string           `json:"media_url,omitempty"`
	ErrorCode      string           `json:"error_code,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	ExistingStatus SubmissionStatus `json:"existing_status,omitempty"`
}

// StatusFromEvent converts a progress event into a status message.
func StatusFromEvent(ev ProgressEvent) ClipStatusMessage {
	return ClipStatusMessage{
		RequestID:   ev.RequestID,
		VehicleID:   ev.VehicleID,
		Stage:       ev.Stage,
		Compression: ev.Compression,
		Upload:      ev.Upload,
	}
}
