package booking

import (
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/clock"
)

const (
	DefaultLockTimeout = 5 * time.Second
	DefaultPageSize    = 50
)

type options struct {
	clock       clock.Clock
	log         *zap.Logger
	notifier    Notifier
	lockTimeout time.Duration
	pageSize    int
}

// Option configures a Controller or Manager.
type Option func(*options)

func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithNotifier sets the sink for committed booking changes.
func WithNotifier(n Notifier) Option { return func(o *options) { o.notifier = n } }

// WithLockTimeout bounds how long an operation may wait for ledger locks.
// Zero disables the bound; the caller's own deadline still applies.
func WithLockTimeout(d time.Duration) Option { return func(o *options) { o.lockTimeout = d } }

// WithPageSize sets how many bookings BookingsForUser fetches per round trip.
func WithPageSize(n int) Option { return func(o *options) { o.pageSize = n } }

func buildOptions(opts []Option) options {
	o := options{
		clock:       clock.NewSystem(),
		log:         zap.NewNop(),
		lockTimeout: DefaultLockTimeout,
		pageSize:    DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pageSize <= 0 {
		o.pageSize = DefaultPageSize
	}
	return o
}
