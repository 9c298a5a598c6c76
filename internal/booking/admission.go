// Package booking implements admission control over the capacity ledger and
// the lifecycle rules for events and bookings.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

const tracerName = "github.com/iliyamo/event-booking/internal/booking"

// Notifier receives bookings after their change has been committed. It is
// called on the request path and must not block on network I/O.
type Notifier interface {
	BookingChanged(ctx context.Context, b model.Booking) error
}

// Controller is the only path by which bookings are created or canceled.
//
// Creation takes an exclusive lock on the event, re-reads the active seat
// total under that lock and inserts the booking in the same transaction, so
// concurrent requests for one event are applied in some serial order.
// Requests for different events never share a lock. Cancellation locks only
// the booking row because it can only free capacity.
type Controller struct {
	store  ledger.Store
	opts   options
	tracer trace.Tracer
}

func NewController(store ledger.Store, opts ...Option) *Controller {
	return &Controller{
		store:  store,
		opts:   buildOptions(opts),
		tracer: otel.Tracer(tracerName),
	}
}

// CreateBooking books seats for p on the event.
func (c *Controller) CreateBooking(ctx context.Context, p model.Principal, eventID uuid.UUID, seats int) (model.Booking, error) {
	ctx, span := c.tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.String("event.id", eventID.String()),
		attribute.String("user.id", p.UserID.String()),
		attribute.Int("booking.seats", seats),
	))
	defer span.End()

	if seats < 1 {
		return model.Booking{}, c.fail(span, ErrInvalidSeats)
	}

	txCtx, cancel := c.lockDeadline(ctx)
	defer cancel()

	var created model.Booking
	err := c.store.InTx(txCtx, func(ctx context.Context, tx ledger.Tx) error {
		ev, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		now := c.opts.clock.Now()
		if !ev.AcceptsBookings(now) {
			return fmt.Errorf("%w: status %s, starts at %s", ErrEventNotBookable, ev.Status, ev.StartsAt.Format(time.RFC3339))
		}
		active, err := tx.ActiveSeats(ctx, eventID)
		if err != nil {
			return err
		}
		if active+seats > ev.Capacity {
			return fmt.Errorf("%w: %d of %d seats taken, %d requested", ErrCapacityExceeded, active, ev.Capacity, seats)
		}
		created = model.Booking{
			ID:        uuid.New(),
			EventID:   eventID,
			UserID:    p.UserID,
			Seats:     seats,
			Status:    model.BookingActive,
			CreatedAt: now.Truncate(time.Microsecond),
		}
		return tx.InsertBooking(ctx, created)
	})
	if err != nil {
		return model.Booking{}, c.fail(span, normalize(err))
	}

	span.SetAttributes(attribute.String("booking.id", created.ID.String()))
	c.opts.log.Debug("booking created",
		zap.String("booking_id", created.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.Int("seats", seats),
	)
	c.notify(ctx, created)
	return created, nil
}

// CancelBooking moves an active booking to canceled. The actor must own the
// booking or hold a privileged role.
func (c *Controller) CancelBooking(ctx context.Context, p model.Principal, bookingID uuid.UUID) (model.Booking, error) {
	ctx, span := c.tracer.Start(ctx, "booking.cancel", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
		attribute.String("user.id", p.UserID.String()),
	))
	defer span.End()

	txCtx, cancel := c.lockDeadline(ctx)
	defer cancel()

	var canceled model.Booking
	err := c.store.InTx(txCtx, func(ctx context.Context, tx ledger.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.UserID != p.UserID && !p.Role.Privileged() {
			return ErrNotAuthorized
		}
		switch b.Status {
		case model.BookingActive:
		case model.BookingCanceled:
			return ErrAlreadyCanceled
		default:
			return fmt.Errorf("booking %s has unknown status %q", b.ID, b.Status)
		}
		if err := tx.SetBookingStatus(ctx, b.ID, model.BookingCanceled); err != nil {
			return err
		}
		b.Status = model.BookingCanceled
		canceled = b
		return nil
	})
	if err != nil {
		return model.Booking{}, c.fail(span, normalize(err))
	}

	c.opts.log.Debug("booking canceled",
		zap.String("booking_id", canceled.ID.String()),
		zap.String("event_id", canceled.EventID.String()),
		zap.String("actor_id", p.UserID.String()),
	)
	c.notify(ctx, canceled)
	return canceled, nil
}

func (c *Controller) lockDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.lockTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.lockTimeout)
}

// notify hands the committed booking to the notifier. The booking is already
// durable, so a delivery failure is only logged.
func (c *Controller) notify(ctx context.Context, b model.Booking) {
	if c.opts.notifier == nil {
		return
	}
	if err := c.opts.notifier.BookingChanged(context.WithoutCancel(ctx), b); err != nil {
		c.opts.log.Warn("booking notification failed",
			zap.String("booking_id", b.ID.String()),
			zap.String("status", b.Status.String()),
			zap.Error(err),
		)
	}
}

func (c *Controller) fail(span trace.Span, err error) error {
	span.SetAttributes(attribute.String("booking.error", Code(err)))
	if IsRetryable(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// normalize folds raw deadline expiry into ErrTimeout so callers only need
// the booking taxonomy. Caller cancellation stays ErrCanceled.
func normalize(err error) error {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return ledger.ContextError(err)
}
