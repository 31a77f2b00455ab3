package transfers

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, t *models.Transfer) error {
	size, err := storedSize(t.FileSize)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transfers (id, device_id, file_name, file_size, file_hash, addressing, chunk_size, status, location, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.DeviceID, t.FileName, size, t.FileHash, string(t.Addressing), t.ChunkSize,
		string(t.Status), t.Location, t.CreatedAt.UTC(), dbx.NullTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Transfer, error) {
	query := `SELECT ` + columns + ` FROM transfers WHERE id = ?`
	return scanTransfer(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status models.TransferStatus, completedAt *time.Time, location string) error {
	query := `UPDATE transfers SET status = ?, completed_at = ?, location = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, string(status), dbx.NullTime(completedAt), location, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return exactlyOne(res)
}

func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.Transfer, error) {
	query := `SELECT ` + columns + ` FROM transfers WHERE device_id = ? ORDER BY created_at DESC`
	args := []any{deviceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanTransfers(rows)
}

func (r *SQLiteRepository) CountActive(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM transfers WHERE status NOT IN (?, ?)`
	var n int64
	err := r.db.QueryRowContext(ctx, query, string(models.TransferCompleted), string(models.TransferFailed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
