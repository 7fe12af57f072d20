package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testLogger = zap.NewNop()

// writeClip creates a file of the given size under dir.
func writeClip(t *testing.T, dir, name string, size int64) string {
	t.Helper()
	path := dir + "/" + name
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

type memRepo struct {
	mu         sync.Mutex
	records    map[uuid.UUID]*entity.SubmissionRecord
	insertErr  error
	findErr    error
	inserted   int
	beforeSave func()
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[uuid.UUID]*entity.SubmissionRecord)}
}

func (r *memRepo) Insert(_ context.Context, rec *entity.SubmissionRecord) error {
	if r.beforeSave != nil {
		r.beforeSave()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, existing := range r.records {
		if existing.ParentVehicleID == rec.ParentVehicleID && existing.Status.Active() {
			return &entity.DuplicateSubmissionError{
				ParentVehicleID: rec.ParentVehicleID,
				ExistingID:      existing.ID.String(),
				ExistingStatus:  existing.Status,
			}
		}
	}
	cp := *rec
	r.records[rec.ID] = &cp
	r.inserted++
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.SubmissionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, entity.ErrSubmissionNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memRepo) FindActiveByParent(_ context.Context, vehicleID string) (*entity.SubmissionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, rec := range r.records {
		if rec.ParentVehicleID == vehicleID && rec.Status.Active() {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, entity.ErrSubmissionNotFound
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to entity.SubmissionStatus, publishedAt *time.Time, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return entity.ErrSubmissionNotFound
	}
	if rec.Status != from {
		return entity.ErrInvalidTransition
	}
	rec.Status = to
	rec.PublishedAt = publishedAt
	rec.RejectionReason = reason
	return nil
}

func (r *memRepo) MediaKeyExists(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.MediaKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) put(rec *entity.SubmissionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	times   map[string]time.Time
	putErr  error
	puts    int
	chunk   int
}

func newMemStorage() *memStorage {
	return &memStorage{
		objects: make(map[string][]byte),
		times:   make(map[string]time.Time),
		chunk:   64 * 1024,
	}
}

func (s *memStorage) Put(ctx context.Context, in port.PutObjectInput) (string, error) {
	s.mu.Lock()
	s.puts++
	putErr := s.putErr
	s.mu.Unlock()
	if putErr != nil {
		return "", putErr
	}

	var buf bytes.Buffer
	chunk := make([]byte, s.chunk)
	var loaded int64
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := in.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			loaded += int64(n)
			if in.OnProgress != nil {
				in.OnProgress(loaded, in.Size)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[in.Key] = buf.Bytes()
	s.times[in.Key] = time.Now()
	return "https://cdn.test/clips/" + in.Key, nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.times, key)
	return nil
}

func (s *memStorage) ListOlderThan(_ context.Context, prefix string, before time.Time) ([]port.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []port.ObjectInfo
	for key, at := range s.times {
		if strings.HasPrefix(key, prefix) && at.Before(before) {
			out = append(out, port.ObjectInfo{Key: key, Size: int64(len(s.objects[key])), LastModified: at})
		}
	}
	return out, nil
}

func (s *memStorage) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

func (s *memStorage) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// fakeEncoder writes outputSize bytes to the output path.
type fakeEncoder struct {
	mu         sync.Mutex
	calls      int
	outputSize int64
	err        error
	block      bool
	steps      []float64
}

func (e *fakeEncoder) Encode(ctx context.Context, _, out string, _ port.EncodeOptions, onProgress func(float64)) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.block {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, s := range e.steps {
		onProgress(s)
	}
	if e.err != nil {
		return e.err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(e.outputSize)
}

func (e *fakeEncoder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeProber struct {
	result *port.ProbeResult
	err    error
	calls  int
}

func (p *fakeProber) Probe(context.Context, string) (*port.ProbeResult, error) {
	p.calls++
	return p.result, p.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []entity.ClipStatusMessage
	dlq      []string
	err      error
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	var status entity.ClipStatusMessage
	if err := json.Unmarshal(msg, &status); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
	return p.err
}

func (p *recordingPublisher) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dlq = append(p.dlq, string(msg))
	return nil
}

func (p *recordingPublisher) last() entity.ClipStatusMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[len(p.statuses)-1]
}

type memTracker struct {
	mu     sync.Mutex
	latest map[uuid.UUID]entity.ProgressEvent
	count  int
}

func (m *memTracker) Track(_ context.Context, ev entity.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		m.latest = make(map[uuid.UUID]entity.ProgressEvent)
	}
	m.latest[ev.RequestID] = ev
	m.count++
	return nil
}

func (m *memTracker) Latest(_ context.Context, requestID uuid.UUID) (*entity.ProgressEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.latest[requestID]
	if !ok {
		return nil, entity.ErrSubmissionNotFound
	}
	return &ev, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *recordingNotifier) NotifyReview(_ context.Context, email string, _ *entity.SubmissionRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return n.err
}
