package migration

import (
	"io/fs"
	"testing"

	"github.com/smallbiznis/tenantry/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLiteCreatesTables(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, Migrate(conn))
	// idempotent on restart
	require.NoError(t, Migrate(conn))

	for _, table := range []string{
		"users",
		"organization_plans",
		"organizations",
		"organization_members",
		"contents",
		"platform_identities",
		"organization_events",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex("organization_members", "ux_org_user"))
	assert.True(t, conn.Migrator().HasIndex("users", "ux_users_email"))
}

func TestMigrateRequiresConnection(t *testing.T) {
	assert.Error(t, Migrate(nil))
	assert.Error(t, RunMigrations(nil))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, err := fs.Glob(sub, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(sub, "*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
