package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/backend"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/config"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/email"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/ffmpeg"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/localfs"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/rabbitmq"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/redis"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/tracing"
	"github.com/qwerty-development/car-marketplace-sub003/internal/usecase"
	"github.com/qwerty-development/car-marketplace-sub003/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log = log.With(zap.String("service", cfg.ServiceName), zap.String("process", "worker"))
	log.Info("starting clip worker")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName+"-worker")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	repo, err := backend.OpenRepository(ctx, cfg, log)
	fatalOnErr(err, "open metadata store")
	defer repo.Close()

	storage, err := backend.OpenStorage(ctx, cfg, log)
	fatalOnErr(err, "open object storage")

	rdb := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	tracker := redis.NewProgressTracker(rdb, cfg.ProgressTTL)

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	fatalOnErr(pub.Declare(
		rabbitmq.Binding{Queue: cfg.RabbitMQStatusQueue, RoutingKey: rabbitmq.RoutingKeyStatus},
		rabbitmq.Binding{Queue: cfg.RabbitMQDLQ},
	), "declare rabbitmq topology")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	resolver := localfs.NewResolver(cfg.ContentRoot)
	prober := ffmpeg.NewProber(cfg.FFprobeBinary)
	encoder := ffmpeg.NewEncoder(cfg.FFmpegBinary, cfg.FFmpegPreset, cfg.FFmpegCRF, log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use cases
	registrar := usecase.NewSubmissionRegistrar(repo, log)
	submit := usecase.NewSubmitClipUseCase(
		usecase.NewAssetValidator(resolver, prober, log),
		usecase.NewCompressor(encoder, log),
		usecase.NewUploadCoordinator(storage, cfg.StorageKeyPrefix, log),
		registrar,
		statusPub, dlqPub, tracker,
		log,
		usecase.SubmitClipConfig{
			TempDir: cfg.TempDir,
			Policy:  cfg.Policy,
		},
	)
	review := usecase.NewReviewSubmissionUseCase(repo, statusPub, dlqPub, notifier, log)
	sweeper := usecase.NewOrphanSweeper(storage, repo, cfg.StorageKeyPrefix, cfg.SweepGrace, log)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log,
		repo.Health,
		storage.Health,
		metrics.HealthCheck{Name: "redis", Check: tracker.Ping},
	)

	if _, err := sweeper.Schedule(ctx, cfg.SweepSchedule); err != nil {
		log.Warn("orphan sweep disabled", zap.Error(err))
	}

	// Consumers (worker pools)
	submitConsumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Exchange:    cfg.RabbitMQExchange,
		Queue:       cfg.RabbitMQSubmissionQueue,
		RoutingKey:  rabbitmq.RoutingKeySubmission,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, submit.Execute, log)
	fatalOnErr(err, "create submission consumer")
	defer submitConsumer.Close()

	reviewConsumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Exchange:    cfg.RabbitMQExchange,
		Queue:       cfg.RabbitMQModerationQueue,
		RoutingKey:  rabbitmq.RoutingKeyModeration,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: 1,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, review.Execute, log)
	fatalOnErr(err, "create moderation consumer")
	defer reviewConsumer.Close()

	log.Info("clip worker started, consuming messages")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return submitConsumer.Start(gctx) })
	g.Go(func() error { return reviewConsumer.Start(gctx) })
	if err := g.Wait(); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("clip worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
