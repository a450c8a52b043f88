//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantguard/internal/platform/database"
	"tenantguard/migrations"
	"tenantguard/pkg/testutil/containers"
)

func TestMigrateIsIdempotent(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()

	require.NotEmpty(t, pg.Applied, "container startup applies the embedded migrations")

	again, err := database.Migrate(ctx, pg.DB, migrations.FS)
	require.NoError(t, err)
	assert.Empty(t, again)

	status, err := database.Migrations(ctx, pg.DB, migrations.FS)
	require.NoError(t, err)
	require.Len(t, status, len(pg.Applied))
	for i, s := range status {
		assert.Equal(t, pg.Applied[i], s.Version)
		assert.True(t, s.Applied, s.Version)
	}
}
