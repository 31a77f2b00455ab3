// Package storage keeps completed transfer artifacts, either in a local
// directory or in an S3-compatible bucket.
package storage

import (
	"context"
	"io"
	"time"
)

// ArtifactStore receives the assembled file of a completed transfer.
type ArtifactStore interface {
	// Put stores size bytes read from body under key and returns the
	// artifact's location.
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64) (string, error)
}

// Downloader is implemented by stores that can hand out time-limited
// download links.
type Downloader interface {
	DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
