package repomanager

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/bridgex/internal/server/repositories/devices"
	"github.com/dmitrijs2005/bridgex/internal/server/repositories/transfers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		driver  string
		want    any
		wantErr bool
	}{
		{driver: "pgx", want: &PostgresRepositoryManager{}},
		{driver: "postgres", want: &PostgresRepositoryManager{}},
		{driver: "sqlite", want: &SQLiteRepositoryManager{}},
		{driver: "sqlite3", want: &SQLiteRepositoryManager{}},
		{driver: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			m, err := New(tt.driver)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, m)
		})
	}
}

func TestPostgresFactories(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewPostgresRepositoryManager()
	assert.IsType(t, &devices.PostgresRepository{}, m.Devices(db))
	assert.IsType(t, &transfers.PostgresRepository{}, m.Transfers(db))
}

func TestSQLiteManager_MigratesAndVends(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	m := NewSQLiteRepositoryManager()
	require.NoError(t, m.RunMigrations(ctx, db))

	assert.IsType(t, &devices.SQLiteRepository{}, m.Devices(db))
	assert.IsType(t, &transfers.SQLiteRepository{}, m.Transfers(db))

	n, err := m.Devices(db).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
