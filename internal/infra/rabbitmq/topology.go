package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Binding attaches a durable queue to the topic exchange. An empty
// RoutingKey declares the queue without binding it; the DLQ is fed through
// the default exchange.
type Binding struct {
	Queue      string
	RoutingKey string
}

// DeclareTopology idempotently declares the exchange and the given queues.
func DeclareTopology(ch *amqp.Channel, exchange string, bindings ...Binding) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.Queue, err)
		}
		if b.RoutingKey == "" {
			continue
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.Queue, err)
		}
	}
	return nil
}
