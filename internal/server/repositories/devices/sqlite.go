package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
)

// SQLiteRepository implements Repository over SQLite (modernc.org/sqlite).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository constructs a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts d, or refreshes last_seen when the id is already paired
// with the same public key. A different key affects no row and yields
// common.ErrKeyMismatch.
func (r *SQLiteRepository) Upsert(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (id, name, type, public_key, paired_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET last_seen = excluded.last_seen
			WHERE devices.public_key = excluded.public_key
	`
	res, err := r.db.ExecContext(ctx, query,
		d.ID, d.Name, d.DeviceType, d.PublicKey, d.PairedAt.UTC(), dbx.NullTime(d.LastSeen))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return upsertResult(res)
}

// Get returns the device with id or common.ErrorNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Device, error) {
	query := `SELECT id, name, type, public_key, paired_at, last_seen FROM devices WHERE id = ?`
	return scanDevice(r.db.QueryRowContext(ctx, query, id))
}

// List returns all devices, most recently paired first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Device, error) {
	query := `SELECT id, name, type, public_key, paired_at, last_seen FROM devices ORDER BY paired_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanDevices(rows)
}

// Delete removes the device; common.ErrorNotFound if it does not exist.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return exactlyOne(res)
}

// TouchLastSeen records an authenticated contact.
func (r *SQLiteRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE devices SET last_seen = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return exactlyOne(res)
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
