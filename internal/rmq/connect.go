// Package rmq exports hub events to a RabbitMQ topic exchange.
package rmq

import (
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const dialAttempts = 5

type RabbitMQ struct {
	Conn *amqp.Connection
	Chan *amqp.Channel
	URL  string

	logger *slog.Logger
}

// Connect dials url with exponential backoff and opens one channel.
func Connect(url string, logger *slog.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{URL: url, logger: logger.With("component", "rmq")}

	var err error
	for i := 1; i <= dialAttempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("open channel: %w", chErr)
			}
			r.Conn, r.Chan = conn, ch
			r.logger.Info("connected to rabbitmq")
			return r, nil
		}

		r.logger.Warn("rabbitmq dial failed", "attempt", i, "error", err.Error())
		if i < dialAttempts {
			time.Sleep(time.Duration(1<<i) * 250 * time.Millisecond)
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", dialAttempts, err)
}

func (r *RabbitMQ) Close() {
	if r.Chan != nil {
		_ = r.Chan.Close()
	}
	if r.Conn != nil {
		_ = r.Conn.Close()
	}
	r.Conn, r.Chan = nil, nil
	r.logger.Info("rabbitmq connection closed")
}
