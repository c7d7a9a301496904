package errors

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors to AppError instances.
// It handles the storage failure patterns the session and user stores care about:
// - context timeouts/cancellations → Timeout/Canceled inside StorageUnavailable
// - connection loss, dial failures, closed pools, admin shutdown → StorageUnavailable
// - pgx.ErrNoRows / sql.ErrNoRows → NotFound
// - any other PostgreSQL error → Internal
//
// Errors that are not recognized are returned as StorageUnavailable, since every caller of
// MapDBError is a storage adapter and an unknown driver failure means the row state is unknown.
func MapDBError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: op + ": not found", Cause: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return StorageUnavailable(&AppError{
			Code:    ErrCodeTimeout,
			Message: "storage request timed out",
			Cause:   err,
		}, op)
	}
	if errors.Is(err, context.Canceled) {
		return StorageUnavailable(&AppError{
			Code:    ErrCodeCanceled,
			Message: "storage request was canceled",
			Cause:   err,
		}, op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr, op)
	}

	return StorageUnavailable(err, op)
}

// mapPgError maps PostgreSQL-specific errors to AppError instances.
func mapPgError(pgErr *pgconn.PgError, op string) error {
	switch {
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code),
		pgerrcode.IsOperatorIntervention(pgErr.Code),
		pgerrcode.IsSystemError(pgErr.Code):
		return StorageUnavailable(pgErr, op)
	case pgErr.Code == pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: op + ": value already exists",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: op + ": database error",
			Cause:   pgErr,
		}
	}
}

// IsConnectionError reports whether err looks like a lost or refused database connection.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code)
	}
	return errors.Is(err, sql.ErrConnDone)
}
