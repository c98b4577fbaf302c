package persistence

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/infrastructure/config"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestNewDatabase_SQLite(t *testing.T) {
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"}, nil)
	require.NoError(t, err)
	defer db.Close()

	t.Run("migrates every model", func(t *testing.T) {
		for _, m := range models.All() {
			assert.True(t, db.DB.Migrator().HasTable(m), "missing table for %T", m)
		}
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, db.Ping())
	})

	t.Run("single writer pool", func(t *testing.T) {
		stats, err := db.Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, stats.MaxOpenConnections)
		assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		err := db.Transaction(func(tx *gorm.DB) error {
			require.NoError(t, tx.Exec("DELETE FROM sync_data").Error)
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestDatabase_PingPostgres(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	// gorm pings once while opening
	mock.ExpectPing()
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	mock.ExpectPing()
	db := &Database{DB: gormDB}
	assert.NoError(t, db.Ping())
	assert.NoError(t, mock.ExpectationsWereMet())
}
