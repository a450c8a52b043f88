package postgres

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantguard/internal/sentinel"
	"tenantguard/internal/storage"
)

func TestBuildWhere(t *testing.T) {
	t.Run("empty filter", func(t *testing.T) {
		where, args, err := buildWhere(nil, 1)
		require.NoError(t, err)
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("placeholders continue from start", func(t *testing.T) {
		where, args, err := buildWhere(storage.Filter{
			storage.Eq("tenant_id", "t1"),
			{Column: "grade", Op: storage.OpGte, Value: 3},
			storage.IsNull("parent_id"),
			storage.In("id", "a", "b"),
		}, 3)
		require.NoError(t, err)
		assert.Equal(t, ` WHERE "tenant_id" = $3 AND "grade" >= $4 AND "parent_id" IS NULL AND "id" = ANY($5)`, where)
		assert.Equal(t, []any{"t1", 3, []string{"a", "b"}}, args)
	})

	t.Run("rejects unsafe identifiers", func(t *testing.T) {
		_, _, err := buildWhere(storage.Filter{storage.Eq(`id" OR 1=1 --`, 1)}, 1)
		assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
	})
}

func TestBindValue(t *testing.T) {
	u := uuid.New()
	assert.Equal(t, u.String(), bindValue(u))
	assert.Equal(t, 7, bindValue(7))
	assert.Equal(t, []any{"a", 1}, bindList([]any{"a", 1}))
}

func TestNormalize(t *testing.T) {
	u := uuid.New()
	assert.Equal(t, u.String(), normalize([16]byte(u)))
	assert.Equal(t, "x", normalize("x"))
}

func TestMapPostgresError(t *testing.T) {
	cases := map[string]error{
		pgerrcode.UniqueViolation:           sentinel.ErrAlreadyUsed,
		pgerrcode.ForeignKeyViolation:       sentinel.ErrInvalidInput,
		pgerrcode.InvalidTextRepresentation: sentinel.ErrInvalidInput,
		pgerrcode.InsufficientPrivilege:     sentinel.ErrInvalidState,
		pgerrcode.DeadlockDetected:          sentinel.ErrUnavailable,
		pgerrcode.AdminShutdown:             sentinel.ErrUnavailable,
	}
	for code, want := range cases {
		err := mapPostgresError(&pgconn.PgError{Code: code, Message: "m"})
		assert.ErrorIs(t, err, want, code)
	}

	assert.Nil(t, mapPostgresError(nil))
	plain := errors.New("plain")
	assert.Equal(t, plain, mapPostgresError(plain))
}
