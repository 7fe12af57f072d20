package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/localfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	uc       *SubmitClipUseCase
	repo     *memRepo
	storage  *memStorage
	encoder  *fakeEncoder
	pub      *recordingPublisher
	tracker  *memTracker
	tempDir  string
	mediaDir string
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		repo:     newMemRepo(),
		storage:  newMemStorage(),
		encoder:  &fakeEncoder{outputSize: 1_000_000, steps: []float64{0.25, 0.5, 0.75, 1}},
		pub:      &recordingPublisher{},
		tracker:  &memTracker{},
		tempDir:  t.TempDir(),
		mediaDir: t.TempDir(),
	}
	resolver := localfs.NewResolver(f.mediaDir)
	f.uc = NewSubmitClipUseCase(
		NewAssetValidator(resolver, nil, testLogger),
		NewCompressor(f.encoder, testLogger),
		NewUploadCoordinator(f.storage, "", testLogger),
		NewSubmissionRegistrar(f.repo, testLogger),
		f.pub, f.pub, f.tracker,
		testLogger,
		SubmitClipConfig{TempDir: f.tempDir, Policy: entity.DefaultPolicy()},
	)
	return f
}

func (f *pipelineFixture) message(t *testing.T, vehicleID string, size int64, duration float64) entity.ClipSubmissionMessage {
	t.Helper()
	writeClip(t, f.mediaDir, vehicleID+".mp4", size)
	return entity.ClipSubmissionMessage{
		RequestID:    uuid.New(),
		VehicleID:    vehicleID,
		DealershipID: "dealer-1",
		Title:        "Walkaround",
		Description:  "Full exterior and interior tour.",
		Asset: entity.RawAsset{
			Path:     "content://" + vehicleID + ".mp4",
			Width:    1920,
			Height:   1080,
			Duration: duration,
		},
	}
}

func collect(sub *Submission) []entity.ProgressEvent {
	var events []entity.ProgressEvent
	for ev := range sub.Events() {
		events = append(events, ev)
	}
	return events
}

func stages(events []entity.ProgressEvent) []entity.Stage {
	var out []entity.Stage
	for _, ev := range events {
		if len(out) == 0 || out[len(out)-1] != ev.Stage {
			out = append(out, ev.Stage)
		}
	}
	return out
}

func assertWorkDirsRemoved(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmitClip_HappyPath(t *testing.T) {
	f := newPipelineFixture(t)
	msg := f.message(t, "V1", 4_000_000, 12)

	sub := f.uc.Start(context.Background(), msg)
	events := collect(sub)
	rec, err := sub.Wait()

	require.NoError(t, err)
	assert.Equal(t, []entity.Stage{
		entity.StageValidating,
		entity.StageCompressing,
		entity.StageUploading,
		entity.StageRegistering,
		entity.StageDone,
	}, stages(events))

	for _, ev := range events {
		if ev.Stage == entity.StageUploading && ev.Upload > 0 {
			assert.Equal(t, 100, ev.Compression, "upload progress before compression finished")
		}
	}
	last := events[len(events)-1]
	assert.Equal(t, 100, last.Compression)
	assert.Equal(t, 100, last.Upload)

	assert.Equal(t, entity.StatusUnderReview, rec.Status)
	assert.True(t, strings.HasPrefix(rec.MediaKey, "V1/"))
	assert.True(t, strings.HasSuffix(rec.MediaKey, ".mp4"))
	assert.Equal(t, rec.MediaURL, rec.ThumbnailURL)
	assert.Equal(t, []string{rec.MediaKey}, f.storage.keys())
	assertWorkDirsRemoved(t, f.tempDir)
}

func TestSubmitClip_ValidationFailureSkipsWork(t *testing.T) {
	f := newPipelineFixture(t)
	msg := f.message(t, "V1", 4_000_000, 90)

	sub := f.uc.Start(context.Background(), msg)
	events := collect(sub)
	_, err := sub.Wait()

	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entity.KindDurationExceeded, verr.Kind)
	assert.Equal(t, []entity.Stage{entity.StageValidating, entity.StageFailed}, stages(events))
	assert.Equal(t, 0, f.encoder.callCount())
	assert.Equal(t, 0, f.storage.putCount())
	assert.Equal(t, 0, f.repo.inserted)
}

func TestSubmitClip_InvalidMetadata(t *testing.T) {
	f := newPipelineFixture(t)
	msg := f.message(t, "V1", 4_000_000, 12)
	msg.Title = "ab"

	_, err := f.uc.Start(context.Background(), msg).Wait()

	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entity.KindInvalidMetadata, verr.Kind)
	assert.Equal(t, 0, f.encoder.callCount())
}

func TestSubmitClip_DuplicateFailsBeforeCompression(t *testing.T) {
	f := newPipelineFixture(t)
	seedRecord(f.repo, "V1", entity.StatusPublished)
	msg := f.message(t, "V1", 4_000_000, 12)

	_, err := f.uc.Start(context.Background(), msg).Wait()

	var dup *entity.DuplicateSubmissionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, entity.StatusPublished, dup.ExistingStatus)
	assert.Equal(t, 0, f.encoder.callCount())
	assert.Equal(t, 0, f.storage.putCount())
}

func TestSubmitClip_UploadFailureWritesNoRecord(t *testing.T) {
	f := newPipelineFixture(t)
	f.storage.putErr = errors.New("503 slow down")
	msg := f.message(t, "V1", 4_000_000, 12)

	_, err := f.uc.Start(context.Background(), msg).Wait()

	var uerr *entity.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 0, f.repo.inserted)
	assertWorkDirsRemoved(t, f.tempDir)
}

func TestSubmitClip_CancelDuringCompression(t *testing.T) {
	f := newPipelineFixture(t)
	f.encoder.block = true
	msg := f.message(t, "V1", 4_000_000, 12)

	sub := f.uc.Start(context.Background(), msg)
	for ev := range sub.Events() {
		if ev.Stage == entity.StageCompressing {
			sub.Cancel()
		}
	}

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("submission did not stop after cancel")
	}
	_, err := sub.Wait()

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, entity.StageFailed, sub.Snapshot().Stage)
	assert.Equal(t, 0, f.storage.putCount())
	assert.Equal(t, 0, f.repo.inserted)
	assertWorkDirsRemoved(t, f.tempDir)
}

func TestSubmitClip_CancelIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t)
	msg := f.message(t, "V1", 1_000, 12)

	sub := f.uc.Start(context.Background(), msg)
	_, err := sub.Wait()
	require.NoError(t, err)

	sub.Cancel()
	sub.Cancel()
}

func TestSubmitClipExecute_PublishesTerminalStatus(t *testing.T) {
	f := newPipelineFixture(t)
	msg := f.message(t, "V1", 4_000_000, 12)
	body, _ := json.Marshal(msg)

	require.NoError(t, f.uc.Execute(context.Background(), body))

	final := f.pub.last()
	assert.Equal(t, msg.RequestID, final.RequestID)
	assert.Equal(t, entity.StageDone, final.Stage)
	assert.Equal(t, entity.StatusUnderReview, final.Status)
	require.NotNil(t, final.SubmissionID)
	assert.NotEmpty(t, final.MediaURL)
	assert.Empty(t, final.ErrorCode)

	latest, err := f.tracker.Latest(context.Background(), msg.RequestID)
	require.NoError(t, err)
	assert.Equal(t, entity.StageDone, latest.Stage)

	// Intermediate messages are throttled but every stage is reported.
	seen := map[entity.Stage]bool{}
	for _, s := range f.pub.statuses {
		seen[s.Stage] = true
	}
	for _, stage := range []entity.Stage{entity.StageValidating, entity.StageCompressing, entity.StageUploading, entity.StageRegistering} {
		assert.True(t, seen[stage], "stage %s not published", stage)
	}
}

func TestSubmitClipExecute_ShutdownRequeues(t *testing.T) {
	f := newPipelineFixture(t)
	f.encoder.block = true
	body, _ := json.Marshal(f.message(t, "V1", 4_000_000, 12))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for f.encoder.callCount() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- f.uc.Execute(ctx, body) }()

	var err error
	select {
	case err = <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after the context was cancelled")
	}

	require.ErrorIs(t, err, context.Canceled)
	for _, s := range f.pub.statuses {
		assert.NotEqual(t, entity.StageFailed, s.Stage, "no terminal failure for a requeued message")
	}
	assert.Equal(t, 0, f.storage.putCount())
	assert.Equal(t, 0, f.repo.inserted)
	assertWorkDirsRemoved(t, f.tempDir)
}

func TestSubmitClipExecute_ReportsDuplicate(t *testing.T) {
	f := newPipelineFixture(t)
	seedRecord(f.repo, "V1", entity.StatusUnderReview)
	body, _ := json.Marshal(f.message(t, "V1", 4_000_000, 12))

	require.NoError(t, f.uc.Execute(context.Background(), body))

	final := f.pub.last()
	assert.Equal(t, entity.StageFailed, final.Stage)
	assert.Equal(t, "duplicate_under_review", final.ErrorCode)
	assert.Equal(t, entity.StatusUnderReview, final.ExistingStatus)
	assert.NotEmpty(t, final.ErrorMessage)
}

func TestSubmitClipExecute_MalformedMessageGoesToDLQ(t *testing.T) {
	f := newPipelineFixture(t)

	require.NoError(t, f.uc.Execute(context.Background(), []byte(`{invalid json`)))

	assert.Equal(t, []string{`{invalid json`}, f.pub.dlq)
	assert.Empty(t, f.pub.statuses)
}

func TestSubmitClipExecute_AssignsMissingRequestID(t *testing.T) {
	f := newPipelineFixture(t)
	msg := f.message(t, "V1", 1_000, 12)
	msg.RequestID = uuid.Nil
	body, _ := json.Marshal(msg)

	require.NoError(t, f.uc.Execute(context.Background(), body))

	assert.NotEqual(t, uuid.Nil, f.pub.last().RequestID)
}
