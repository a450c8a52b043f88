// Package tx carries a database/sql transaction through a context so stores
// can join a transaction opened by their service.
package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "tenantguard/pkg/domain-errors"
)

// DefaultTimeout bounds a transaction whose caller set no deadline.
const DefaultTimeout = 5 * time.Second

type ctxKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From returns the transaction stored in ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// Bound fails fast on a finished context and otherwise applies timeout
// (DefaultTimeout when zero) unless ctx already has a deadline.
func Bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}, nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	bounded, cancel := context.WithTimeout(ctx, timeout)
	return bounded, cancel, nil
}

// SQLRunner opens one database/sql transaction per outermost RunInTx call.
// Nested calls join the transaction already in the context.
type SQLRunner struct {
	db      *sql.DB
	Timeout time.Duration
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	ctx, cancel, err := Bound(ctx, r.Timeout)
	defer cancel()
	if err != nil {
		return err
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "commit transaction")
	}
	return nil
}
