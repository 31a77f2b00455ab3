package transfers

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
)

const columns = `id, device_id, file_name, file_size, file_hash, addressing, chunk_size, status, location, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*models.Transfer, error) {
	var (
		t           models.Transfer
		size        int64
		addressing  string
		status      string
		completedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.DeviceID, &t.FileName, &size, &t.FileHash,
		&addressing, &t.ChunkSize, &status, &t.Location, &t.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if size < 0 {
		return nil, fmt.Errorf("db error: negative file size %d", size)
	}
	t.FileSize = uint64(size)
	t.Addressing = models.Addressing(addressing)
	t.Status = models.TransferStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.CompletedAt = dbx.TimePtr(completedAt)
	return &t, nil
}

func scanTransfers(rows *sql.Rows) ([]*models.Transfer, error) {
	defer rows.Close()

	var result []*models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// storedSize converts the declared size to the signed column type.
func storedSize(size uint64) (int64, error) {
	if size > math.MaxInt64 {
		return 0, fmt.Errorf("%w: file size %d too large", common.ErrInvalidRequest, size)
	}
	return int64(size), nil
}

func exactlyOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}
