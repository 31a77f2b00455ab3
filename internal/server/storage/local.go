package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/filex"
)

// LocalStore writes artifacts under a directory on the local file system.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{dir: abs}, nil
}

// Path returns the file path for key.
func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

// Put copies body to <dir>/<key>. Keys may contain '/' separated segments;
// each segment must be a valid file name.
func (s *LocalStore) Put(ctx context.Context, key string, body io.ReadSeeker, size int64) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	path := s.Path(key)
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, io.LimitReader(body, size+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n != size {
		err = fmt.Errorf("artifact size %d, want %d", n, size)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename %s: %w", path, err)
	}

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty artifact key", common.ErrInvalidRequest)
	}
	for _, seg := range strings.Split(key, "/") {
		if err := filex.ValidateFileName(seg); err != nil {
			return err
		}
	}
	return nil
}
