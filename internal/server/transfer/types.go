// Package transfer implements the resumable chunked-transfer state machine.
//
// A transfer moves Pending -> Uploading -> Assembling -> Completed, and can
// become Failed from any non-terminal state. Chunks are addressed either by
// byte offset (any arrival order, preferred for resumption) or by sequential
// index times a fixed chunk size; the scheme is chosen at init and fixed for
// the transfer.
//
// Every chunk carries an HMAC tag under a key derived from the device's
// pairing secret and the transfer id. Tags are checked before a chunk is
// staged and again for each staged chunk during finalize.
package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
)

// Range is the half-open byte range [Offset, Offset+Length).
type Range struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

func (r Range) End() uint64 { return r.Offset + r.Length }

// InitRequest describes a file the device is about to upload.
type InitRequest struct {
	DeviceID string
	FileName string
	FileSize uint64
	// FileHash is the hex SHA-256 of the whole file.
	FileHash   string
	Addressing models.Addressing
	// ChunkSize is required for index addressing and ignored otherwise.
	ChunkSize int64
}

// Chunk is one authenticated piece of a transfer. Position is a byte offset
// or a chunk index depending on the transfer's addressing.
type Chunk struct {
	TransferID string
	Position   uint64
	Data       []byte
	Tag        []byte
}

// ChunkAck reports what the transfer holds after a chunk was ingested, so a
// client can resume without starting over.
type ChunkAck struct {
	TransferID     string
	Position       uint64
	Offset         uint64
	BytesReceived  uint64
	ChunksReceived int
	Total          uint64
	// NextIndex is the lowest index not yet received (index addressing).
	NextIndex uint64
	// Duplicate is set when identical bytes were already staged.
	Duplicate bool
	// Corrected is set when different bytes replaced a staged chunk.
	Corrected bool
	Status    models.TransferStatus
}

// Status is a point-in-time view of a transfer.
type Status struct {
	TransferID     string
	DeviceID       string
	FileName       string
	State          models.TransferStatus
	Addressing     models.Addressing
	ChunkSize      int64
	BytesReceived  uint64
	ChunksReceived int
	Total          uint64
	NextIndex      uint64
	Missing        []Range
	Location       string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// FinalResult describes a completed transfer.
type FinalResult struct {
	TransferID  string
	State       models.TransferStatus
	Size        uint64
	Hash        string
	Location    string
	CompletedAt time.Time
}

// CoverageError is returned by Finalize when byte ranges are still missing.
// It matches common.ErrIncompleteTransfer with errors.Is.
type CoverageError struct {
	TransferID string
	Missing    []Range
}

func (e *CoverageError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for i, r := range e.Missing {
		if i == 4 {
			parts = append(parts, fmt.Sprintf("... %d more", len(e.Missing)-i))
			break
		}
		parts = append(parts, fmt.Sprintf("[%d,%d)", r.Offset, r.End()))
	}
	return fmt.Sprintf("%s: transfer %s missing %s", common.ErrIncompleteTransfer, e.TransferID, strings.Join(parts, " "))
}

func (e *CoverageError) Unwrap() error { return common.ErrIncompleteTransfer }
