package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	bindingKey  = "booking.*"
	maxBackoff  = 30 * time.Second
	prefetch    = 50
	consumerTag = "booking-audit"
)

// Consumer binds a durable queue to the booking exchange and writes every
// lifecycle message to the audit logger.
type Consumer struct {
	URL      string
	Exchange string
	Queue    string

	Log   *zap.Logger // operational messages
	Audit *zap.Logger // one record per booking event
}

// Run keeps consuming until ctx is done, reconnecting with exponential
// backoff whenever the broker goes away. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("audit consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.Log.Warn("audit consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		c.Log.Warn("audit consumer: set QoS failed", zap.Error(err))
	}
	if err := ch.ExchangeDeclare(c.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(c.Queue, bindingKey, c.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	msgs, err := ch.Consume(c.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.Log.Info("audit consumer started", zap.String("queue", c.Queue), zap.String("exchange", c.Exchange))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				c.Log.Warn("audit consumer: rejecting message", zap.Error(err), zap.String("routing_key", d.RoutingKey))
				// Rejected without requeue so a bad payload cannot loop.
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	switch ev.Type {
	case TypeBookingCreated, TypeBookingCanceled:
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	c.Audit.Info(ev.Type,
		zap.String("booking_id", ev.BookingID.String()),
		zap.String("event_id", ev.EventID.String()),
		zap.String("user_id", ev.UserID.String()),
		zap.Int("seats", ev.Seats),
		zap.String("status", ev.Status),
		zap.Time("occurred_at", ev.OccurredAt),
	)
	return nil
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
