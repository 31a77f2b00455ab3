package devices

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var (
		d        models.Device
		lastSeen sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.Name, &d.DeviceType, &d.PublicKey, &d.PairedAt, &lastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	d.PairedAt = d.PairedAt.UTC()
	d.LastSeen = dbx.TimePtr(lastSeen)
	return &d, nil
}

func scanDevices(rows *sql.Rows) ([]*models.Device, error) {
	defer rows.Close()

	var result []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// upsertResult maps the affected-row count of a guarded upsert.
func upsertResult(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrKeyMismatch
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
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
