package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qwerty-development/car-marketplace-sub003/internal/api"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/backend"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/config"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/email"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/rabbitmq"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/redis"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/tracing"
	"github.com/qwerty-development/car-marketplace-sub003/internal/usecase"
	"github.com/qwerty-development/car-marketplace-sub003/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log = log.With(zap.String("service", cfg.ServiceName), zap.String("process", "api"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName+"-api")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	repo, err := backend.OpenRepository(ctx, cfg, log)
	fatalOnErr(err, "open metadata store")
	defer repo.Close()

	rdb := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	tracker := redis.NewProgressTracker(rdb, cfg.ProgressTTL)

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	fatalOnErr(pub.Declare(
		rabbitmq.Binding{Queue: cfg.RabbitMQSubmissionQueue, RoutingKey: rabbitmq.RoutingKeySubmission},
		rabbitmq.Binding{Queue: cfg.RabbitMQStatusQueue, RoutingKey: rabbitmq.RoutingKeyStatus},
		rabbitmq.Binding{Queue: cfg.RabbitMQDLQ},
	), "declare rabbitmq topology")

	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)
	review := usecase.NewReviewSubmissionUseCase(repo, rabbitmq.NewStatusPublisher(pub), rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ), notifier, log)

	checks := []metrics.HealthCheck{
		repo.Health,
		{Name: "redis", Check: tracker.Ping},
	}
	handler := api.NewHandler(api.HandlerDeps{
		Publisher:   rabbitmq.NewSubmissionPublisher(pub),
		Tracker:     tracker,
		Repo:        repo,
		Eligibility: usecase.NewSubmissionRegistrar(repo, log),
		Reviewer:    review,
		Policy:      cfg.Policy,
		Checks:      checks,
	}, log)
	app := api.NewApp(handler, log)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log, checks...)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		log.Info("clip api listening", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Error("api server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down clip api")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("api shutdown error", zap.Error(err))
	}
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("clip api stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
