package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// OrphanSweeper removes stored clips that no record references, typically
// left behind when registration failed or the run was canceled after upload.
type OrphanSweeper struct {
	storage   port.ObjectStorage
	repo      port.SubmissionRepository
	keyPrefix string
	grace     time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrphanSweeper only ever touches objects under keyPrefix whose remaining
// key has the clip layout; anything else in the bucket is left alone.
func NewOrphanSweeper(storage port.ObjectStorage, repo port.SubmissionRepository, keyPrefix string, grace time.Duration, logger *zap.Logger) *OrphanSweeper {
	return &OrphanSweeper{
		storage:   storage,
		repo:      repo,
		keyPrefix: keyPrefix,
		grace:     grace,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep deletes unreferenced clip objects older than the grace period and
// returns how many were removed.
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	objects, err := s.storage.ListOlderThan(ctx, s.keyPrefix, s.now().Add(-s.grace))
	if err != nil {
		return 0, fmt.Errorf("list objects: %w", err)
	}

	removed := 0
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		rest, ok := strings.CutPrefix(obj.Key, s.keyPrefix)
		if !ok || !IsClipKey(rest) {
			continue
		}

		referenced, err := s.repo.MediaKeyExists(ctx, obj.Key)
		if err != nil {
			s.logger.Warn("failed to check object reference", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		if referenced {
			continue
		}

		if err := s.storage.Delete(ctx, obj.Key); err != nil {
			s.logger.Warn("failed to delete orphan", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		removed++
		metrics.OrphansSweptTotal.Inc()
		s.logger.Info("orphan clip removed", zap.String("key", obj.Key), zap.Int64("bytes", obj.Size))
	}
	return removed, nil
}

// Schedule runs Sweep on a cron spec (seconds field enabled) until ctx is
// done. Overlapping runs are skipped.
func (s *OrphanSweeper) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { s.sweepOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule orphan sweep %q: %w", spec, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}

func (s *OrphanSweeper) sweepOnce(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("orphan sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Info("orphan sweep finished", zap.Int("removed", n))
	}
}
