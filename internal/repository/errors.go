// Package repository is the MySQL persistence layer. It implements the
// capacity ledger store plus the user, refresh-token and venue repositories
// consumed by the HTTP handlers. The sentinel values below are shared with
// the Postgres implementation so handlers can stay driver-agnostic.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/event-booking/internal/ledger"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidRefresh is returned for unknown, expired or revoked refresh tokens.
	ErrInvalidRefresh = errors.New("invalid refresh token")

	ErrResourceNotFound = errors.New("resource not found")

	// ErrEmailExists and ErrResourceExists wrap ledger.ErrDuplicate.
	ErrEmailExists    = fmt.Errorf("email already exists: %w", ledger.ErrDuplicate)
	ErrResourceExists = fmt.Errorf("resource name already exists: %w", ledger.ErrDuplicate)
)

// MySQL server error numbers the store reacts to.
const (
	erDupEntry           = 1062
	erLockWaitTimeout    = 1205
	erLockDeadlock       = 1213
	erNoReferencedRow    = 1452
	erTooManyConnections = 1040
	erServerShutdown     = 1053
)

// translate maps driver failures onto the ledger taxonomy. Errors that are
// already domain errors pass through untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ledger.ContextError(err)
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erLockWaitTimeout, erLockDeadlock:
			return fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
		case erDupEntry:
			return fmt.Errorf("%w: %v", ledger.ErrDuplicate, err)
		case erNoReferencedRow:
			return fmt.Errorf("%w: %v", ledger.ErrInvalidReference, err)
		case erTooManyConnections, erServerShutdown:
			return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return err
}

func isDuplicate(err error) bool {
	return errors.Is(err, ledger.ErrDuplicate)
}
