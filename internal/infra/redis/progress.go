package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
)

const keyPrefix = "clip:progress:"

// ProgressTracker stores the latest progress event per request under a TTL.
type ProgressTracker struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewProgressTracker(rdb *goredis.Client, ttl time.Duration) *ProgressTracker {
	return &ProgressTracker{rdb: rdb, ttl: ttl}
}

func (t *ProgressTracker) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

func (t *ProgressTracker) Track(ctx context.Context, ev entity.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := t.rdb.Set(ctx, progressKey(ev.RequestID), data, t.ttl).Err(); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

func (t *ProgressTracker) Latest(ctx context.Context, requestID uuid.UUID) (*entity.ProgressEvent, error) {
	data, err := t.rdb.Get(ctx, progressKey(requestID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, entity.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	var ev entity.ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &ev, nil
}

func progressKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}
