// Package pgstore is the PostgreSQL implementation of the ledger store and
// the account repositories. It mirrors the MySQL repositories and reports
// failures with the same sentinels.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iliyamo/event-booking/internal/ledger"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeLockNotAvailable    = "55P03"
	codeDeadlockDetected    = "40P01"
	codeSerialization       = "40001"
	codeQueryCanceled       = "57014"
	codeTooManyConnections  = "53300"
	codeAdminShutdown       = "57P01"
	codeCannotConnectNow    = "57P03"
)

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ledger.ContextError(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerialization, codeQueryCanceled:
			return fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %v", ledger.ErrDuplicate, err)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %v", ledger.ErrInvalidReference, err)
		case codeTooManyConnections, codeAdminShutdown, codeCannotConnectNow:
			return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) || errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return err
}

func isDuplicate(err error) bool {
	return errors.Is(err, ledger.ErrDuplicate)
}

// notFound maps pgx.ErrNoRows onto sentinel, leaving other errors to translate.
func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return translate(err)
}
