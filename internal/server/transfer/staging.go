package transfer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/bridgex/internal/filex"
)

// staging is the on-disk area of one transfer: one file per chunk, named by
// its byte offset.
type staging struct {
	dir string
}

func newStaging(root, transferID string) (*staging, error) {
	dir, err := filex.EnsureDir(filepath.Join(root, transferID))
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	return &staging{dir: dir}, nil
}

func (s *staging) chunkPath(offset uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("chunk_%d", offset))
}

func (s *staging) write(offset uint64, data []byte) error {
	return filex.WriteFileAtomic(s.chunkPath(offset), data, 0o600)
}

func (s *staging) read(offset uint64) ([]byte, error) {
	return os.ReadFile(s.chunkPath(offset))
}

func (s *staging) createAssembly() (*os.File, error) {
	return os.CreateTemp(s.dir, "assembled-*")
}

func (s *staging) destroy() error {
	return os.RemoveAll(s.dir)
}
