package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/server/config"
	"github.com/dmitrijs2005/bridgex/internal/server/keyring"
	"github.com/dmitrijs2005/bridgex/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bridgex/internal/timex"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type testEnv struct {
	db       *sql.DB
	keyring  *keyring.Keyring
	registry *Registry
	clock    *timex.FixedClock
	cfg      *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	rm := repomanager.NewSQLiteRepositoryManager()
	require.NoError(t, rm.RunMigrations(context.Background(), db))

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"

	k := keyring.New()
	return &testEnv{
		db:       db,
		keyring:  k,
		registry: NewRegistry(db, rm, k, logging.Nop()),
		clock:    &timex.FixedClock{T: time.Now().UTC().Truncate(time.Second)},
		cfg:      cfg,
	}
}
