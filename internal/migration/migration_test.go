package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/pasarku/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrateFallsBackToAutoMigrate(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, Migrate(db, "sqlite"))

	for _, table := range []string{"merchants", "couriers", "orders", "order_items", "merchant_subscriptions", "quota_ledger_entries", "quota_tiers", "order_events"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestMigrateRequiresConnection(t *testing.T) {
	assert.Error(t, Migrate(nil, "postgres"))
	assert.Error(t, RunMigrations(nil))
}
