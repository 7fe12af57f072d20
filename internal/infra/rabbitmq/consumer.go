package rabbitmq

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// MessageHandler processes one delivery body. A nil error acks the delivery;
// any other error requeues it after an exponential backoff.
type MessageHandler func(ctx context.Context, body []byte) error

const maxBackoff = 60 * time.Second

type ConsumerConfig struct {
	URL         string
	Exchange    string
	Queue       string
	RoutingKey  string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

// Consumer runs a fixed pool of workers over one queue.
type Consumer struct {
	cfg     ConsumerConfig
	conn    *amqp.Connection
	channel *amqp.Channel
	handler MessageHandler
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.Prefetch < cfg.WorkerCount {
		cfg.Prefetch = cfg.WorkerCount
	}

	c := &Consumer{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("queue", cfg.Queue)),
	}
	if err := c.setup(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) setup() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	c.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	c.channel = ch

	if err := DeclareTopology(ch, c.cfg.Exchange, Binding{Queue: c.cfg.Queue, RoutingKey: c.cfg.RoutingKey}); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Start blocks until ctx is cancelled and every in-flight delivery is settled.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("starting worker pool", zap.Int("workers", c.cfg.WorkerCount))
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go func(id int) {
			defer c.wg.Done()
			c.work(ctx, deliveries, c.logger.With(zap.Int("worker_id", id)))
		}(i)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish")
	c.wg.Wait()
	return nil
}

func (c *Consumer) work(ctx context.Context, deliveries <-chan amqp.Delivery, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.settle(ctx, d, c.handle(ctx, d, log), log)
		}
	}
}

// handle runs the handler under a span and turns a panic into an error.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, log *zap.Logger) (err error) {
	ctx, span := otel.Tracer("rabbitmq").Start(ctx, "consume "+c.cfg.Queue)
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination", c.cfg.Queue),
		attribute.Int64("messaging.delivery_tag", int64(d.DeliveryTag)),
		attribute.Bool("messaging.redelivered", d.Redelivered),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
		}
	}()
	return c.handler(ctx, d.Body)
}

func (c *Consumer) settle(ctx context.Context, d amqp.Delivery, err error, log *zap.Logger) {
	if err == nil {
		metrics.MessagesTotal.WithLabelValues(c.cfg.Queue, "ack").Inc()
		_ = d.Ack(false)
		return
	}

	attempt := attemptFromHeaders(d.Headers)
	delay := backoff(time.Duration(c.cfg.BaseDelayMs)*time.Millisecond, attempt)
	log.Warn("message handling failed, requeueing after backoff",
		zap.Error(err),
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)
	metrics.MessagesTotal.WithLabelValues(c.cfg.Queue, "requeue").Inc()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	_ = d.Nack(false, true)
}

func attemptFromHeaders(h amqp.Table) int {
	if deaths, ok := h["x-death"].([]interface{}); ok && len(deaths) > 0 {
		return len(deaths)
	}
	return 1
}

func backoff(base time.Duration, attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	if delay := base * time.Duration(math.Pow(2, float64(attempt-1))); delay < maxBackoff {
		return delay
	}
	return maxBackoff
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
