package entity

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrInvalidTransition  = errors.New("invalid review transition")
)

type ValidationKind string

const (
	KindDurationExceeded  ValidationKind = "duration_exceeded"
	KindSizeExceeded      ValidationKind = "size_exceeded"
	KindUnsupportedFormat ValidationKind = "unsupported_format"
	KindFileUnavailable   ValidationKind = "file_unavailable"
	KindInvalidMetadata   ValidationKind = "invalid_metadata"
)

// ValidationError rejects an asset or its metadata before any expensive work.
type ValidationError struct {
	Kind ValidationKind
	Err  error
}

func NewValidationError(kind ValidationKind, err error) *ValidationError {
	return &ValidationError{Kind: kind, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CompressionError is recovered inside the compressor and never reaches callers.
type CompressionError struct {
	Err error
}

func (e *CompressionError) Error() string { return "compression: " + e.Err.Error() }

func (e *CompressionError) Unwrap() error { return e.Err }

// UploadError aborts a submission; no record is written.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload %s: %v", e.Key, e.Err) }

func (e *UploadError) Unwrap() error { return e.Err }

// DuplicateSubmissionError means the vehicle already has an active record.
type DuplicateSubmissionError struct {
	ParentVehicleID string
	ExistingID      string
	ExistingStatus  SubmissionStatus
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("vehicle %s already has a clip (%s)", e.ParentVehicleID, e.ExistingStatus)
}

// PersistenceError wraps metadata store failures.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Describe maps an error to a stable code and a message fit for end users.
func Describe(err error) (code, message string) {
	var (
		verr *ValidationError
		uerr *UploadError
		derr *DuplicateSubmissionError
		perr *PersistenceError
	)
	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &verr):
		return string(verr.Kind), validationMessages[verr.Kind]
	case errors.As(err, &derr):
		if derr.ExistingStatus == StatusPublished {
			return "duplicate_published", "This vehicle already has a published clip."
		}
		return "duplicate_under_review", "A clip for this vehicle is already under review."
	case errors.As(err, &uerr):
		return "upload_failed", "The video could not be uploaded. Please try again."
	case errors.As(err, &perr):
		return "persistence_failed", "The clip could not be saved. Please try again later."
	case errors.Is(err, ErrSubmissionNotFound):
		return "not_found", "Clip not found."
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition", "This clip has already been reviewed."
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", "The submission took too long. Please try again."
	case errors.Is(err, context.Canceled):
		return "canceled", "The submission was canceled."
	default:
		return "internal_error", "Something went wrong."
	}
}

var validationMessages = map[ValidationKind]string{
	KindDurationExceeded:  "The video is too long.",
	KindSizeExceeded:      "The video file is too large.",
	KindUnsupportedFormat: "Only MP4 and MOV videos are supported.",
	KindFileUnavailable:   "The selected video could not be read.",
	KindInvalidMetadata:   "Please check the clip title and description.",
}
