package transfers

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.Transfer) error {
	size, err := storedSize(t.FileSize)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transfers (id, device_id, file_name, file_size, file_hash, addressing, chunk_size, status, location, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.DeviceID, t.FileName, size, t.FileHash, string(t.Addressing), t.ChunkSize,
		string(t.Status), t.Location, t.CreatedAt.UTC(), dbx.NullTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Transfer, error) {
	query := `SELECT ` + columns + ` FROM transfers WHERE id = $1`
	return scanTransfer(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.TransferStatus, completedAt *time.Time, location string) error {
	query := `UPDATE transfers SET status = $1, completed_at = $2, location = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, string(status), dbx.NullTime(completedAt), location, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return exactlyOne(res)
}

func (r *PostgresRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.Transfer, error) {
	query := `SELECT ` + columns + ` FROM transfers WHERE device_id = $1 ORDER BY created_at DESC`
	args := []any{deviceID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanTransfers(rows)
}

func (r *PostgresRepository) CountActive(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM transfers WHERE status NOT IN ($1, $2)`
	var n int64
	err := r.db.QueryRowContext(ctx, query, string(models.TransferCompleted), string(models.TransferFailed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
