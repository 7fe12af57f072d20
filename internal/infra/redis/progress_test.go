package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestProgressKey(t *testing.T) {
	id := uuid.MustParse("7b0c9a8e-3f51-4c84-9c7d-2b1e2d7f6a10")
	assert.Equal(t, "clip:progress:7b0c9a8e-3f51-4c84-9c7d-2b1e2d7f6a10", progressKey(id))
}

func TestProgressTrackerAgainstRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	defer container.Terminate(ctx)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := NewClient(endpoint, "", 0)
	defer rdb.Close()
	tracker := NewProgressTracker(rdb, time.Minute)
	require.NoError(t, tracker.Ping(ctx))

	id := uuid.New()
	_, err = tracker.Latest(ctx, id)
	assert.ErrorIs(t, err, entity.ErrSubmissionNotFound)

	require.NoError(t, tracker.Track(ctx, entity.ProgressEvent{RequestID: id, Stage: entity.StageCompressing, Compression: 40}))
	require.NoError(t, tracker.Track(ctx, entity.ProgressEvent{RequestID: id, Stage: entity.StageUploading, Compression: 100, Upload: 10}))

	got, err := tracker.Latest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.StageUploading, got.Stage)
	assert.Equal(t, 100, got.Compression)
	assert.Equal(t, 10, got.Upload)

	ttl, err := rdb.TTL(ctx, progressKey(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
