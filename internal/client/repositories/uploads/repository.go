// Package uploads persists the sender's upload journal.
package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/client/models"
)

type Repository interface {
	Save(ctx context.Context, u *models.Upload) error
	Get(ctx context.Context, transferID string) (*models.Upload, error)
	// FindResumable returns the newest unfinished upload of the same file
	// content, or common.ErrorNotFound.
	FindResumable(ctx context.Context, filePath, fileHash string, fileSize uint64) (*models.Upload, error)
	UpdateStatus(ctx context.Context, transferID string, status models.UploadStatus, location string, at time.Time) error
	List(ctx context.Context, limit int) ([]*models.Upload, error)
	Delete(ctx context.Context, transferID string) error
}
