package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"tenantguard/internal/sentinel"
)

// mapPostgresError maps PostgreSQL errors to sentinel errors so callers never
// see driver types. Unknown codes are wrapped with their details.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
			return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
		}
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: unique constraint %s", sentinel.ErrAlreadyUsed, pgErr.ConstraintName)

	case pgerrcode.ForeignKeyViolation,
		pgerrcode.CheckViolation,
		pgerrcode.NotNullViolation,
		pgerrcode.InvalidTextRepresentation,
		pgerrcode.UndefinedColumn,
		pgerrcode.UndefinedTable,
		pgerrcode.DatatypeMismatch:
		return fmt.Errorf("%w: %s", sentinel.ErrInvalidInput, pgErr.Message)

	case pgerrcode.InsufficientPrivilege:
		// Row-level security rejected the statement.
		return fmt.Errorf("%w: %s", sentinel.ErrInvalidState, pgErr.Message)

	case pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown,
		pgerrcode.TooManyConnections,
		pgerrcode.QueryCanceled:
		return fmt.Errorf("%w: %s", sentinel.ErrUnavailable, pgErr.Message)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, err)
	}
}
