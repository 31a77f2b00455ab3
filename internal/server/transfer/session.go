package transfer

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/cryptox"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
)

// Session is the in-memory state of one transfer. It owns the transfer's
// ChunkSet and staging area.
type Session struct {
	id         string
	deviceID   string
	fileName   string
	size       uint64
	hash       string
	addressing models.Addressing
	chunkSize  uint64
	key        [cryptox.KeySize]byte
	createdAt  time.Time
	staging    *staging

	// gate is held shared by ingest and exclusively by finalize and
	// reclaim, so finalize never evaluates coverage while a write is in
	// flight.
	gate      sync.RWMutex
	positions positionLocks

	mu           sync.Mutex
	state        models.TransferStatus
	chunks       *ChunkSet
	inflight     map[uint64]uint64
	nextIndex    uint64
	lastActivity time.Time
	completedAt  *time.Time
	location     string
}

// status snapshots the session. Callers must hold s.mu.
func (s *Session) status() *Status {
	st := &Status{
		TransferID:     s.id,
		DeviceID:       s.deviceID,
		FileName:       s.fileName,
		State:          s.state,
		Addressing:     s.addressing,
		ChunkSize:      int64(s.chunkSize),
		BytesReceived:  s.chunks.Bytes(),
		ChunksReceived: s.chunks.Len(),
		Total:          s.size,
		NextIndex:      s.nextIndex,
		Location:       s.location,
		CreatedAt:      s.createdAt,
	}
	if s.state != models.TransferCompleted {
		st.Missing = s.chunks.Missing(s.size)
	}
	if s.completedAt != nil {
		t := *s.completedAt
		st.CompletedAt = &t
	}
	return st
}

// ack builds the acknowledgement for a chunk. Callers must hold s.mu.
func (s *Session) ack(c Chunk, offset uint64) *ChunkAck {
	return &ChunkAck{
		TransferID:     s.id,
		Position:       c.Position,
		Offset:         offset,
		BytesReceived:  s.chunks.Bytes(),
		ChunksReceived: s.chunks.Len(),
		Total:          s.size,
		NextIndex:      s.nextIndex,
		Status:         s.state,
	}
}

// overlapsLocked checks both staged and in-flight chunks. Callers must hold
// s.mu.
func (s *Session) overlapsLocked(offset, length uint64) bool {
	if s.chunks.overlaps(offset, length) {
		return true
	}
	end := offset + length
	for off, n := range s.inflight {
		if off != offset && off < end && offset < off+n {
			return true
		}
	}
	return false
}

// advanceIndex moves nextIndex past contiguous received chunks. Callers
// must hold s.mu.
func (s *Session) advanceIndex() {
	if s.addressing != models.AddressingIndex {
		return
	}
	for {
		if _, ok := s.chunks.get(s.nextIndex * s.chunkSize); !ok {
			return
		}
		s.nextIndex++
	}
}

func (s *Session) snapshot() *models.Transfer {
	return &models.Transfer{
		ID:         s.id,
		DeviceID:   s.deviceID,
		FileName:   s.fileName,
		FileSize:   s.size,
		FileHash:   s.hash,
		Addressing: s.addressing,
		ChunkSize:  int64(s.chunkSize),
		Status:     s.state,
		CreatedAt:  s.createdAt,
	}
}
