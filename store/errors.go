package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")

	// ErrUnavailable is returned for transient infrastructure failures.
	ErrUnavailable = errors.New("store unavailable")

	// ErrTimeout is returned when an operation exceeds its time budget.
	ErrTimeout = errors.New("store operation timed out")
)

// classified pairs one of the sentinels above with the driver error behind it.
type classified struct {
	kind  error
	cause error
}

func (e *classified) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *classified) Is(target error) bool {
	return target == e.kind
}

func (e *classified) Unwrap() error {
	return e.cause
}

// classify maps a gorm or driver error onto the store sentinels. Errors that
// match none of them are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var already *classified
	if errors.As(err, &already) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &classified{kind: ErrNotFound, cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &classified{kind: ErrTimeout, cause: err}
	case isDuplicate(err):
		return &classified{kind: ErrDuplicate, cause: err}
	case isUnavailable(err):
		return &classified{kind: ErrUnavailable, cause: err}
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	// Drivers that do not expose typed errors (works with both PostgreSQL and SQLite)
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "duplicate") ||
		strings.Contains(errMsg, "unique constraint")
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08xxx connection exceptions, 53300 too many connections, 57P0x shutdown
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "53300" ||
			strings.HasPrefix(pgErr.Code, "57P0")
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
