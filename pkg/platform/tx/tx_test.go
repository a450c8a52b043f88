package tx

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tenantguard/pkg/domain-errors"
)

func TestBound(t *testing.T) {
	t.Run("adds the default deadline", func(t *testing.T) {
		ctx, cancel, err := Bound(context.Background(), 0)
		defer cancel()
		require.NoError(t, err)
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(DefaultTimeout), deadline, time.Second)
	})

	t.Run("keeps a caller deadline", func(t *testing.T) {
		parent, parentCancel := context.WithTimeout(context.Background(), time.Minute)
		defer parentCancel()
		want, _ := parent.Deadline()

		ctx, cancel, err := Bound(parent, time.Millisecond)
		defer cancel()
		require.NoError(t, err)
		got, _ := ctx.Deadline()
		assert.Equal(t, want, got)
	})

	t.Run("cancelled context is a timeout", func(t *testing.T) {
		parent, parentCancel := context.WithCancel(context.Background())
		parentCancel()

		_, cancel, err := Bound(parent, 0)
		defer cancel()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func TestNestedRunJoinsOuterTransaction(t *testing.T) {
	outer := &sql.Tx{}
	ctx := WithTx(context.Background(), outer)

	// A nil db would panic if the runner tried to begin a second transaction.
	runner := NewSQLRunner(nil)
	var seen *sql.Tx
	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		seen, _ = From(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, outer, seen)
}

func TestFromEmptyContext(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)
}
