package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/client/client"
	"github.com/dmitrijs2005/bridgex/internal/client/config"
	"github.com/dmitrijs2005/bridgex/internal/client/services"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/timex"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config  *config.Config
	pairing services.PairingService
	sender  services.SenderService
	logger  logging.Logger
	closers []io.Closer
	out     io.Writer
	reader  *bufio.Reader

	mu   sync.RWMutex
	Mode Mode
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, c.LogLevel)

	db, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		logger.Error(ctx, "error initializing database", "dsn", c.DatabaseDSN, "error", err)
		return nil, err
	}

	apiClient, err := client.NewBridgeClientService(c.ServerEndpointAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	repos := client.NewRepositories(db)
	ps := services.NewPairingService(apiClient, repos.Metadata, logger)
	ss := services.NewSenderService(apiClient, ps, repos.Uploads, timex.SystemClock{}, logger)

	if err := ps.Restore(ctx); err != nil && !errors.Is(err, client.ErrNotPaired) {
		_ = apiClient.Close()
		_ = db.Close()
		return nil, err
	}

	return &App{
		config:  c,
		pairing: ps,
		sender:  ss,
		logger:  logger,
		closers: []io.Closer{apiClient, db},
		out:     os.Stdout,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (a *App) mode() Mode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.Mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.mu.Unlock()

	if changed {
		a.logger.Info(context.Background(), "switched mode", "mode", mode)
	}
}

func (a *App) isPaired(ctx context.Context) bool {
	c, err := a.pairing.Credentials(ctx)
	if err != nil {
		return false
	}
	c.Wipe()
	return true
}

// StartOnlineStatusWatcher pings the server every interval until ctx ends.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := a.pairing.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}
