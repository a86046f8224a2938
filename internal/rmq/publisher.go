package rmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dispatch-engine/internal/tracking"
)

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// EventExporter publishes every hub event to a durable topic exchange under
// the routing key dispatch.<event type>.<driver id>.
type EventExporter struct {
	ch       channel
	exchange string
	timeout  time.Duration
}

var _ tracking.Sink = (*EventExporter)(nil)

func NewEventExporter(ch channel, exchange string) (*EventExporter, error) {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &EventExporter{ch: ch, exchange: exchange, timeout: 5 * time.Second}, nil
}

func (p *EventExporter) Handle(ctx context.Context, e tracking.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(e), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    e.Timestamp,
		Type:         string(e.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	return nil
}

func RoutingKey(e tracking.Event) string {
	driverID := e.DriverID
	if driverID == "" {
		driverID = "none"
	}
	// topic words are dot separated
	driverID = strings.ReplaceAll(driverID, ".", "_")
	return fmt.Sprintf("dispatch.%s.%s", e.Type, driverID)
}
