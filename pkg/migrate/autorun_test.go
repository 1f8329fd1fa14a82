package migrate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestAutoMigrateModelsCreatesTables(t *testing.T) {
	dsn := "file:migrate_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, AutoMigrateModels(conn))

	for _, table := range []string{"incentive_rules", "settlement_runs", "settlement_logs", "outbox_events", "districts"} {
		require.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}
}
