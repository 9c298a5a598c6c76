package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Store implementations translate driver failures into these values so the
// admission layer never inspects driver-specific error codes.
var (
	ErrEventNotFound   = errors.New("event not found")
	ErrBookingNotFound = errors.New("booking not found")

	// ErrTimeout means a lock wait or transaction deadline expired. The
	// transaction was rolled back and nothing was written.
	ErrTimeout = errors.New("store timeout")

	// ErrStoreUnavailable is a transient infrastructure failure such as a
	// dropped connection.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDuplicate is returned when a unique key (email, resource name) is taken.
	ErrDuplicate = errors.New("duplicate key")

	// ErrInvalidReference is returned when a foreign key points nowhere.
	ErrInvalidReference = errors.New("referenced row does not exist")
)

// ContextError maps an expired deadline onto ErrTimeout. A caller
// cancellation is returned unchanged and is not retryable.
func ContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
