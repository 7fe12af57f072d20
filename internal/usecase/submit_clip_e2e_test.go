package usecase_test

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/ffmpeg"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/localfs"
	miniostorage "github.com/qwerty-development/car-marketplace-sub003/internal/infra/minio"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/rabbitmq"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/sqlite"
	"github.com/qwerty-development/car-marketplace-sub003/internal/usecase"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

const e2eExchange = "marketplace.clips"

func TestSubmitClipEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// 3s 640x480 test clip
	videoPath := filepath.Join(t.TempDir(), "walkaround.mp4")
	gen := exec.CommandContext(ctx, "ffmpeg", "-y", "-f", "lavfi", "-i", "testsrc=duration=3:size=640x480:rate=25",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", videoPath)
	out, err := gen.CombinedOutput()
	require.NoError(t, err, string(out))

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)
	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)
	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:  minioEndpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "clips",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBucket(ctx))

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "clips.db"))
	require.NoError(t, err)
	repo := sqlite.NewSubmissionRepository(db)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, e2eExchange)
	require.NoError(t, err)
	require.NoError(t, pub.Declare(
		rabbitmq.Binding{Queue: "clip.status", RoutingKey: rabbitmq.RoutingKeyStatus},
		rabbitmq.Binding{Queue: "clip.dlq"},
	))

	log := zap.NewNop()
	resolver := localfs.NewResolver(filepath.Dir(videoPath))
	policy := entity.DefaultPolicy()
	policy.CompressionSkipThresholdBytes = 1

	uc := usecase.NewSubmitClipUseCase(
		usecase.NewAssetValidator(resolver, ffmpeg.NewProber("ffprobe"), log),
		usecase.NewCompressor(ffmpeg.NewEncoder("ffmpeg", "ultrafast", 30, log), log),
		usecase.NewUploadCoordinator(storage, "vehicle-clips/", log),
		usecase.NewSubmissionRegistrar(repo, log),
		rabbitmq.NewStatusPublisher(pub),
		rabbitmq.NewDLQPublisher(pub, "clip.dlq"),
		nil,
		log,
		usecase.SubmitClipConfig{TempDir: t.TempDir(), Policy: policy},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Exchange:    e2eExchange,
		Queue:       "clip.submission",
		RoutingKey:  rabbitmq.RoutingKeySubmission,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()
	go consumer.Start(consumerCtx)

	requestID := uuid.New()
	body, err := json.Marshal(entity.ClipSubmissionMessage{
		RequestID:    requestID,
		VehicleID:    "V-e2e",
		DealershipID: "D-e2e",
		Title:        "Test pattern walkaround",
		Asset:        entity.RawAsset{Path: "file://" + videoPath},
	})
	require.NoError(t, err)
	require.NoError(t, rabbitmq.NewSubmissionPublisher(pub).PublishSubmission(ctx, body))

	statusCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()
	statuses, err := statusCh.Consume("clip.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	var final entity.ClipStatusMessage
	var stages []entity.Stage
wait:
	for {
		select {
		case d := <-statuses:
			var msg entity.ClipStatusMessage
			require.NoError(t, json.Unmarshal(d.Body, &msg))
			assert.Equal(t, requestID, msg.RequestID)
			stages = append(stages, msg.Stage)
			if msg.Stage == entity.StageDone || msg.Stage == entity.StageFailed {
				final = msg
				break wait
			}
		case <-time.After(2 * time.Minute):
			t.Fatal("timeout waiting for terminal status message")
		}
	}

	require.Equal(t, entity.StageDone, final.Stage, "error: %s %s", final.ErrorCode, final.ErrorMessage)
	assert.Equal(t, entity.StatusUnderReview, final.Status)
	assert.Equal(t, 100, final.Compression)
	assert.Equal(t, 100, final.Upload)
	assert.Contains(t, stages, entity.StageCompressing)
	assert.Contains(t, stages, entity.StageUploading)
	require.NotNil(t, final.SubmissionID)

	rec, err := repo.FindByID(ctx, *final.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, "V-e2e", rec.ParentVehicleID)
	assert.Equal(t, final.MediaURL, rec.MediaURL)
	assert.Equal(t, rec.MediaURL, rec.ThumbnailURL)

	client, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)
	info, err := client.StatObject(ctx, "clips", rec.MediaKey, miniogo.StatObjectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", info.ContentType)
	assert.Greater(t, info.Size, int64(0))

	// a second submission for the same vehicle is refused before any upload
	dupID := uuid.New()
	body, err = json.Marshal(entity.ClipSubmissionMessage{
		RequestID:    dupID,
		VehicleID:    "V-e2e",
		DealershipID: "D-e2e",
		Title:        "Second attempt",
		Asset:        entity.RawAsset{Path: videoPath},
	})
	require.NoError(t, err)
	require.NoError(t, rabbitmq.NewSubmissionPublisher(pub).PublishSubmission(ctx, body))

	select {
	case d := <-statuses:
		var msg entity.ClipStatusMessage
		require.NoError(t, json.Unmarshal(d.Body, &msg))
		for msg.Stage != entity.StageFailed && msg.Stage != entity.StageDone {
			d = <-statuses
			require.NoError(t, json.Unmarshal(d.Body, &msg))
		}
		assert.Equal(t, dupID, msg.RequestID)
		assert.Equal(t, entity.StageFailed, msg.Stage)
		assert.Equal(t, "duplicate_under_review", msg.ErrorCode)
		assert.Equal(t, entity.StatusUnderReview, msg.ExistingStatus)
	case <-time.After(time.Minute):
		t.Fatal("timeout waiting for duplicate rejection")
	}
}
