// Package server wires the BridgeX companion server: device registry,
// pairing, transfer manager, artifact storage, the gRPC service, the HTTP
// side listener and the periodic sweeper.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/filex"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/server/config"
	"github.com/dmitrijs2005/bridgex/internal/server/connections"
	"github.com/dmitrijs2005/bridgex/internal/server/httpapi"
	"github.com/dmitrijs2005/bridgex/internal/server/keyring"
	"github.com/dmitrijs2005/bridgex/internal/server/metrics"
	"github.com/dmitrijs2005/bridgex/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bridgex/internal/server/services"
	"github.com/dmitrijs2005/bridgex/internal/server/storage"
	"github.com/dmitrijs2005/bridgex/internal/server/transfer"
	"github.com/dmitrijs2005/bridgex/internal/timex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/bridgex/internal/server/grpc"
)

// connectionIdleTimeout drops devices from the connection table once they
// have not been seen for this long.
const connectionIdleTimeout = 5 * time.Minute

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	gatherer    prometheus.Gatherer
	registry    *services.Registry
	pairing     *services.PairingService
	transfers   *transfer.Manager
	connections *connections.Registry
	metrics     *metrics.Metrics
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	ephemeralSecret := false
	if c.SecretKey == "" {
		s, err := common.MakeRandHexString(32)
		if err != nil {
			return nil, fmt.Errorf("secret key: %w", err)
		}
		c.SecretKey = s
		ephemeralSecret = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	if ephemeralSecret {
		logger.Warn(ctx, "no secret key configured, device tokens will not survive a restart")
	}

	if c.DatabaseDriver == "sqlite" {
		if dir := sqliteDir(c.DatabaseDSN); dir != "" {
			if _, err := filex.EnsureDir(dir); err != nil {
				return nil, err
			}
		}
	}

	db, err := dbx.Open(ctx, c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.New(c.DatabaseDriver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store, err := newArtifactStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	k := keyring.New()
	registry := services.NewRegistry(db, rm, k, logger)
	pairing := services.NewPairingService(registry, k, c, timex.SystemClock{}, m, logger)

	mgr, err := transfer.NewManager(registry, k, store, transfer.Options{
		StagingDir:   c.StagingDir,
		MaxChunkSize: c.MaxChunkSize,
		MaxFileSize:  c.MaxFileSize,
		Metrics:      m,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("transfer manager: %w", err)
	}

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		gatherer:    reg,
		registry:    registry,
		pairing:     pairing,
		transfers:   mgr,
		connections: connections.NewRegistry(),
		metrics:     m,
	}, nil
}

func newArtifactStore(ctx context.Context, c *config.Config) (storage.ArtifactStore, error) {
	if c.ArtifactBackend == "s3" {
		return storage.NewS3Store(ctx, storage.S3Options{
			User:     c.S3RootUser,
			Password: c.S3RootPassword,
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3BaseEndpoint,
		})
	}
	return storage.NewLocalStore(c.ArtifactDir)
}

// sqliteDir returns the directory of a file-backed SQLite DSN, or "" for
// in-memory databases.
func sqliteDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return filepath.Dir(path)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, gs.Deps{
		Pairing:     app.pairing,
		Devices:     app.registry,
		Transfers:   app.transfers,
		Connections: app.connections,
		Metrics:     app.metrics,
	}, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	router := httpapi.NewRouter(httpapi.Deps{
		Devices:     app.registry,
		Transfers:   app.transfers,
		Connections: app.connections,
		Pairing:     app.pairing,
		Gatherer:    app.gatherer,
	}, app.logger)

	if err := httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger).Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runSweeper periodically drops expired invitations, reclaims stale
// transfers and forgets idle connections.
func (app *App) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.sweep(ctx)
		}
	}
}

func (app *App) sweep(ctx context.Context) {
	invitations := app.pairing.PruneExpired()

	transfers, err := app.transfers.Reclaim(ctx, app.config.StaleTransferTTL)
	if err != nil {
		app.logger.Warn(ctx, "reclaim transfers", "error", err)
	}

	conns := app.connections.Prune(time.Now().Add(-connectionIdleTimeout))

	if invitations+transfers+conns > 0 {
		app.logger.Info(ctx, "sweep", "invitations", invitations, "transfers", transfers, "connections", conns)
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.config.EndpointAddrHTTP != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startHTTPServer(ctx, cancelFunc)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweeper(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "close db", "error", err)
	}
	app.logger.Info(context.Background(), "Stopped")
}
