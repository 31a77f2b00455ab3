// Package services contains the server-side business logic: the device
// registry over the configured database and the pairing coordinator.
package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/server/keyring"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
	"github.com/dmitrijs2005/bridgex/internal/server/repositories/repomanager"
)

// Registry is the durable store of paired devices and transfer records.
type Registry struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keyring     *keyring.Keyring
	log         logging.Logger
}

func NewRegistry(db *sql.DB, m repomanager.RepositoryManager, k *keyring.Keyring, log logging.Logger) *Registry {
	return &Registry{
		db:          db,
		repomanager: m,
		keyring:     k,
		log:         log.With("module", "registry"),
	}
}

// SaveDevice inserts d, or refreshes last_seen when d.ID is already paired
// with the same public key. A different public key for an existing id is
// rejected with common.ErrKeyMismatch and nothing is written.
func (r *Registry) SaveDevice(ctx context.Context, d *models.Device) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repomanager.Devices(tx)

		existing, err := repo.Get(ctx, d.ID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case !bytes.Equal(existing.PublicKey, d.PublicKey):
			r.log.Warn(ctx, "re-pair with different public key rejected", "device_id", d.ID)
			return common.ErrKeyMismatch
		}

		return repo.Upsert(ctx, d)
	})
}

// GetDevice returns the device or common.ErrorNotFound.
func (r *Registry) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return r.repomanager.Devices(r.db).Get(ctx, id)
}

func (r *Registry) ListDevices(ctx context.Context) ([]*models.Device, error) {
	return r.repomanager.Devices(r.db).List(ctx)
}

// DeleteDevice removes the device and forgets its session secret. Its
// transfer records are kept for history.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repomanager.Devices(r.db).Delete(ctx, id); err != nil {
		return err
	}
	r.keyring.Forget(id)
	r.log.Info(ctx, "device deleted", "device_id", id)
	return nil
}

// TouchDevice records an authenticated contact from the device.
func (r *Registry) TouchDevice(ctx context.Context, id string, at time.Time) error {
	return r.repomanager.Devices(r.db).TouchLastSeen(ctx, id, at)
}

func (r *Registry) CountDevices(ctx context.Context) (int64, error) {
	return r.repomanager.Devices(r.db).Count(ctx)
}

// SaveTransfer stores a new transfer snapshot.
func (r *Registry) SaveTransfer(ctx context.Context, t *models.Transfer) error {
	if err := r.repomanager.Transfers(r.db).Create(ctx, t); err != nil {
		return fmt.Errorf("save transfer %s: %w", t.ID, err)
	}
	return nil
}

func (r *Registry) UpdateTransferStatus(ctx context.Context, id string, status models.TransferStatus, completedAt *time.Time, location string) error {
	return r.repomanager.Transfers(r.db).UpdateStatus(ctx, id, status, completedAt, location)
}

func (r *Registry) GetTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	return r.repomanager.Transfers(r.db).Get(ctx, id)
}

// ListTransfersForDevice returns the device's transfers, newest first.
func (r *Registry) ListTransfersForDevice(ctx context.Context, deviceID string, limit int) ([]*models.Transfer, error) {
	return r.repomanager.Transfers(r.db).ListByDevice(ctx, deviceID, limit)
}

func (r *Registry) CountActiveTransfers(ctx context.Context) (int64, error) {
	return r.repomanager.Transfers(r.db).CountActive(ctx)
}
