// Package transfers persists transfer records.
package transfers

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/server/models"
)

// Repository is the storage contract for transfer records.
type Repository interface {
	Create(ctx context.Context, t *models.Transfer) error
	Get(ctx context.Context, id string) (*models.Transfer, error)
	// UpdateStatus records a state transition. completedAt and location are
	// stored as given; pass nil and "" for non-terminal states.
	UpdateStatus(ctx context.Context, id string, status models.TransferStatus, completedAt *time.Time, location string) error
	// ListByDevice returns the device's transfers, newest first. limit <= 0
	// means no limit.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.Transfer, error)
	// CountActive counts transfers that have not reached a terminal state.
	CountActive(ctx context.Context) (int64, error)
}
