package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/metrics"
)

// Handler processes one delivery. A returned error rejects the message
// without requeueing it.
type Handler interface {
	Handle(ctx context.Context, routingKey string, body []byte) error
}

// Consumer binds a durable queue to the topic exchange and feeds deliveries
// to a Handler, reconnecting with exponential backoff.
type Consumer struct {
	cfg     config.RabbitMQConfig
	handler Handler
	log     *logging.Logger
	metrics *metrics.WorkerMetrics

	prefetch   int
	maxBackoff time.Duration
}

func NewConsumer(cfg config.RabbitMQConfig, h Handler, log *logging.Logger, m *metrics.WorkerMetrics) *Consumer {
	return &Consumer{cfg: cfg, handler: h, log: log, metrics: m, prefetch: 50, maxBackoff: 30 * time.Second}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.log.Warn(c.log.WithField(ctx, "retry_in", backoff.String()), "broker dial failed", err)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn(ctx, "consume loop ended, reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warn(ctx, "set qos failed", err)
	}
	if err := DeclareExchange(ch, c.cfg.Exchange); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, key := range BindingKeys {
		if err := ch.QueueBind(c.cfg.Queue, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", key, err)
		}
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info(c.log.WithField(ctx, "queue", c.cfg.Queue), "consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch runs the handler and settles the delivery.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	dctx := c.log.WithFields(ctx, map[string]any{"routing_key": d.RoutingKey, "message_id": d.MessageId})
	if err := c.handler.Handle(dctx, d.RoutingKey, d.Body); err != nil {
		c.log.Error(dctx, "handle delivery failed", err)
		c.metrics.Delivery(d.RoutingKey, "nack")
		_ = d.Nack(false, false)
		return
	}
	c.metrics.Delivery(d.RoutingKey, "ack")
	_ = d.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
