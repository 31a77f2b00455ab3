// Package netx fetches completed artifacts over presigned HTTP URLs.
package netx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrHashMismatch is returned when downloaded bytes do not hash to the
// expected value.
var ErrHashMismatch = errors.New("downloaded content hash mismatch")

// Download streams the body at url into w and returns the number of bytes
// written. When wantHash is non-empty the SHA-256 of the body must equal it
// (hex, case-insensitive).
func Download(ctx context.Context, c *http.Client, url string, w io.Writer, wantHash string) (int64, error) {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), resp.Body)
	if err != nil {
		return n, err
	}
	if wantHash != "" && !strings.EqualFold(hex.EncodeToString(h.Sum(nil)), wantHash) {
		return n, ErrHashMismatch
	}
	return n, nil
}
