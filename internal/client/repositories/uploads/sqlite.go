package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/client/models"
	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/dbx"
)

const columns = `transfer_id, file_path, file_name, file_hash, file_size, chunk_size, status, location, created_at, updated_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, u *models.Upload) error {
	if u.FileSize > math.MaxInt64 {
		return fmt.Errorf("file size %d overflows storage", u.FileSize)
	}
	query := `
		INSERT INTO uploads (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transfer_id) DO UPDATE SET
			status = excluded.status, location = excluded.location, updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		u.TransferID, u.FilePath, u.FileName, u.FileHash, int64(u.FileSize), u.ChunkSize,
		string(u.Status), u.Location, u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save upload %s: %w", u.TransferID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, transferID string) (*models.Upload, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM uploads WHERE transfer_id = ?`, transferID)
	return scanUpload(row)
}

func (r *SQLiteRepository) FindResumable(ctx context.Context, filePath, fileHash string, fileSize uint64) (*models.Upload, error) {
	query := `SELECT ` + columns + ` FROM uploads
		WHERE file_path = ? AND file_hash = ? AND file_size = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, filePath, fileHash, int64(fileSize),
		string(models.UploadPending), string(models.UploadSending))
	return scanUpload(row)
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, transferID string, status models.UploadStatus, location string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE uploads SET status = ?, location = ?, updated_at = ? WHERE transfer_id = ?`,
		string(status), location, at.UTC(), transferID)
	if err != nil {
		return fmt.Errorf("failed to update upload %s: %w", transferID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update upload %s: %w", transferID, err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*models.Upload, error) {
	query := `SELECT ` + columns + ` FROM uploads ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var out []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate uploads: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, transferID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE transfer_id = ?`, transferID); err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", transferID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*models.Upload, error) {
	var (
		u      models.Upload
		size   int64
		status string
	)
	err := row.Scan(&u.TransferID, &u.FilePath, &u.FileName, &u.FileHash, &size,
		&u.ChunkSize, &status, &u.Location, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to scan upload: %w", err)
	}
	if size < 0 {
		return nil, fmt.Errorf("negative file size %d", size)
	}
	u.FileSize = uint64(size)
	u.Status = models.UploadStatus(status)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
