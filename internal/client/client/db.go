package client

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/bridgex/internal/client/migrations"
	"github.com/dmitrijs2005/bridgex/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bridgex/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/bridgex/internal/dbx"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Metadata metadata.Repository
	Uploads  uploads.Repository
}

func NewRepositories(db dbx.DBTX) *Repositories {
	return &Repositories{
		Metadata: metadata.NewSQLiteRepository(db),
		Uploads:  uploads.NewSQLiteRepository(db),
	}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrations.Up(ctx, db)
}

// InitDatabase opens the SQLite file at dsn and migrates it.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := dbx.Open(ctx, "sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
