package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/server/migrations"
	"github.com/dmitrijs2005/bridgex/internal/server/repositories/devices"
	"github.com/dmitrijs2005/bridgex/internal/server/repositories/transfers"
	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager vends SQLite-backed repositories for single-host
// deployments.
type SQLiteRepositoryManager struct{}

func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}

func (m *SQLiteRepositoryManager) Devices(db dbx.DBTX) devices.Repository {
	return devices.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Transfers(db dbx.DBTX) transfers.Repository {
	return transfers.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrations.Up(ctx, db, migrations.DialectSQLite)
}
