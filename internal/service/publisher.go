// Package service holds adapters that connect the booking core to external
// systems.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
)

const (
	DefaultBacklog     = 1024
	DefaultDialTimeout = 3 * time.Second

	publishTimeout = 5 * time.Second
	flushTimeout   = 5 * time.Second
)

// ErrBacklogFull is returned by BookingChanged when the pending buffer is
// full and the message was dropped.
var ErrBacklogFull = errors.New("publisher backlog full")

// PublisherConfig configures a Publisher. Zero values take the defaults.
type PublisherConfig struct {
	URL         string
	Exchange    string
	Backlog     int
	DialTimeout time.Duration
}

// Publisher sends booking lifecycle messages to a durable topic exchange.
// BookingChanged only enqueues; Run owns the connection and does all network
// I/O, re-dialing when the connection or channel is closed.
type Publisher struct {
	url         string
	exchange    string
	dialTimeout time.Duration
	log         *zap.Logger
	now         func() time.Time

	pending chan queue.BookingEvent

	// Touched only by the Run goroutine.
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ booking.Notifier = (*Publisher)(nil)

// NewPublisher does not dial; Run connects on the first message.
func NewPublisher(cfg PublisherConfig, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &Publisher{
		url:         cfg.URL,
		exchange:    cfg.Exchange,
		dialTimeout: cfg.DialTimeout,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		pending:     make(chan queue.BookingEvent, cfg.Backlog),
	}
}

// BookingChanged queues b for delivery and never blocks. When the backlog is
// full the message is dropped and ErrBacklogFull returned.
func (p *Publisher) BookingChanged(_ context.Context, b model.Booking) error {
	select {
	case p.pending <- queue.NewBookingEvent(b, p.now()):
		return nil
	default:
		return fmt.Errorf("%w: booking %s", ErrBacklogFull, b.ID)
	}
}

// Run delivers queued messages until ctx is done, then makes one bounded
// attempt to flush what is left. A failed delivery is logged and dropped.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.closeConn()
	for {
		select {
		case ev := <-p.pending:
			p.deliver(ctx, ev)
		case <-ctx.Done():
			p.flush()
			return nil
		}
	}
}

func (p *Publisher) flush() {
	fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case ev := <-p.pending:
			if fctx.Err() != nil {
				p.log.Warn("dropping unsent booking message on shutdown", zap.String("booking_id", ev.BookingID.String()))
				continue
			}
			p.deliver(fctx, ev)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, ev queue.BookingEvent) {
	if err := p.publish(ctx, ev); err != nil {
		p.log.Warn("booking message dropped",
			zap.String("booking_id", ev.BookingID.String()),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
	}
}

func (p *Publisher) dial() (*amqp.Connection, error) {
	return amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
}

func (p *Publisher) ensureConnection() error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.closeConn()

	conn, err := p.dial()
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("rabbitmq publisher connected", zap.String("exchange", p.exchange))
	return nil
}

// publish sends ev as a persistent JSON message routed by its type.
func (p *Publisher) publish(ctx context.Context, ev queue.BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.ensureConnection(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		MessageId:    ev.BookingID.String() + ":" + ev.Type,
		Body:         body,
	})
	if err != nil {
		// Drop the channel so the next publish re-dials.
		p.closeConn()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *Publisher) closeConn() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
