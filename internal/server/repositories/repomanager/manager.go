package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/server/repositories/devices"
	"github.com/dmitrijs2005/bridgex/internal/server/repositories/transfers"
)

// RepositoryManager vends dialect-specific repositories bound to a DBTX and
// applies the matching schema migrations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Devices(db dbx.DBTX) devices.Repository
	Transfers(db dbx.DBTX) transfers.Repository
}

// New returns the manager for a database/sql driver name.
func New(driver string) (RepositoryManager, error) {
	switch driver {
	case "pgx", "postgres":
		return NewPostgresRepositoryManager(), nil
	case "sqlite", "sqlite3":
		return NewSQLiteRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
