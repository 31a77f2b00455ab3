// Package devices persists paired devices.
package devices

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/server/models"
)

// Repository is the storage contract for device records.
//
// Upsert inserts a new device or, when the id exists with the same public
// key, refreshes only last_seen. It returns common.ErrKeyMismatch when the
// stored public key differs and leaves the row untouched.
type Repository interface {
	Upsert(ctx context.Context, d *models.Device) error
	Get(ctx context.Context, id string) (*models.Device, error)
	List(ctx context.Context) ([]*models.Device, error)
	Delete(ctx context.Context, id string) error
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int64, error)
}
