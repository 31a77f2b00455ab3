// Package models defines the sender's local records.
package models

import "time"

// UploadStatus mirrors the server's transfer state as last observed.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadSending   UploadStatus = "sending"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// Upload remembers a transfer started from this machine so it can be
// resumed after the process restarts.
type Upload struct {
	TransferID string
	FilePath   string
	FileName   string
	FileHash   string
	FileSize   uint64
	ChunkSize  int64
	Status     UploadStatus
	Location   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Resumable reports whether the server may still hold partial data.
func (u *Upload) Resumable() bool {
	return u.Status == UploadPending || u.Status == UploadSending
}
