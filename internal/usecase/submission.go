package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
)

const eventBuffer = 32

// Submission is a running clip pipeline. Events is closed when the run ends;
// Wait blocks until then and returns the outcome.
type Submission struct {
	RequestID uuid.UUID

	events chan entity.ProgressEvent
	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	current entity.ProgressEvent
	closed  bool

	record *entity.SubmissionRecord
	err    error
}

func newSubmission(requestID uuid.UUID, vehicleID string, cancel context.CancelFunc) *Submission {
	return &Submission{
		RequestID: requestID,
		events:    make(chan entity.ProgressEvent, eventBuffer),
		done:      make(chan struct{}),
		cancel:    cancel,
		current: entity.ProgressEvent{
			RequestID: requestID,
			VehicleID: vehicleID,
		},
	}
}

func (s *Submission) Events() <-chan entity.ProgressEvent { return s.events }

func (s *Submission) Done() <-chan struct{} { return s.done }

// Cancel abandons the run. It is safe to call at any time.
func (s *Submission) Cancel() { s.cancel() }

func (s *Submission) Wait() (*entity.SubmissionRecord, error) {
	<-s.done
	return s.record, s.err
}

// Snapshot returns the most recent progress.
func (s *Submission) Snapshot() entity.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Submission) setStage(stage entity.Stage) {
	s.update(func(ev *entity.ProgressEvent) bool {
		if ev.Stage == stage {
			return false
		}
		ev.Stage = stage
		return true
	})
}

func (s *Submission) compressionProgress(p int) {
	s.update(func(ev *entity.ProgressEvent) bool {
		if ev.Compression == p {
			return false
		}
		ev.Compression = p
		return true
	})
}

func (s *Submission) uploadProgress(p int) {
	s.update(func(ev *entity.ProgressEvent) bool {
		if ev.Upload == p {
			return false
		}
		ev.Upload = p
		return true
	})
}

func (s *Submission) update(mutate func(*entity.ProgressEvent) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !mutate(&s.current) {
		return
	}
	s.current.At = time.Now().UTC()
	s.emit(s.current)
}

// emit never blocks the pipeline: when the buffer is full the oldest pending
// event is dropped so the latest state is always delivered.
func (s *Submission) emit(ev entity.ProgressEvent) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}

func (s *Submission) finish(rec *entity.SubmissionRecord, err error) {
	s.record, s.err = rec, err
	if err != nil {
		s.setStage(entity.StageFailed)
	} else {
		s.setStage(entity.StageDone)
	}
	s.mu.Lock()
	s.closed = true
	close(s.events)
	s.mu.Unlock()
	close(s.done)
	s.cancel()
}
