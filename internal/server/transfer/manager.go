package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
	"github.com/dmitrijs2005/bridgex/internal/filex"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/server/metrics"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
	"github.com/dmitrijs2005/bridgex/internal/server/storage"
	"github.com/dmitrijs2005/bridgex/internal/timex"
	"github.com/google/uuid"
)

// DeviceRegistry is the persistence the manager reports transitions to.
type DeviceRegistry interface {
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	SaveTransfer(ctx context.Context, t *models.Transfer) error
	UpdateTransferStatus(ctx context.Context, id string, status models.TransferStatus, completedAt *time.Time, location string) error
	GetTransfer(ctx context.Context, id string) (*models.Transfer, error)
	ListTransfersForDevice(ctx context.Context, deviceID string, limit int) ([]*models.Transfer, error)
}

// KeySource derives per-transfer chunk keys from a device's pairing secret.
type KeySource interface {
	TransferKey(deviceID, transferID string) ([cryptox.KeySize]byte, error)
}

type Options struct {
	StagingDir   string
	MaxChunkSize int64
	MaxFileSize  int64
	Clock        timex.Clock
	Metrics      *metrics.Metrics
}

// Manager owns every live transfer session. Sessions are independent: no
// lock is shared between two transfers.
type Manager struct {
	registry   DeviceRegistry
	keys       KeySource
	store      storage.ArtifactStore
	stagingDir string
	maxChunk   int64
	maxFile    uint64
	clock      timex.Clock
	metrics    *metrics.Metrics
	log        logging.Logger

	sessions sync.Map // transfer id -> *Session
}

func NewManager(reg DeviceRegistry, keys KeySource, store storage.ArtifactStore, opts Options, log logging.Logger) (*Manager, error) {
	dir, err := filex.EnsureDir(opts.StagingDir)
	if err != nil {
		return nil, err
	}
	if opts.MaxChunkSize <= 0 || opts.MaxFileSize <= 0 {
		return nil, errors.New("max chunk and file size must be positive")
	}
	clock := opts.Clock
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &Manager{
		registry:   reg,
		keys:       keys,
		store:      store,
		stagingDir: dir,
		maxChunk:   opts.MaxChunkSize,
		maxFile:    uint64(opts.MaxFileSize),
		clock:      clock,
		metrics:    opts.Metrics,
		log:        log.With("module", "transfer"),
	}, nil
}

// Init starts a transfer for a paired device.
func (m *Manager) Init(ctx context.Context, req InitRequest) (*Status, error) {
	if err := m.validateInit(&req); err != nil {
		return nil, err
	}
	if _, err := m.registry.GetDevice(ctx, req.DeviceID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: %s", common.ErrUnknownDevice, req.DeviceID)
		}
		return nil, err
	}

	id := uuid.NewString()
	key, err := m.keys.TransferKey(req.DeviceID, id)
	if err != nil {
		return nil, err
	}

	st, err := newStaging(m.stagingDir, id)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	s := &Session{
		id:           id,
		deviceID:     req.DeviceID,
		fileName:     req.FileName,
		size:         req.FileSize,
		hash:         req.FileHash,
		addressing:   req.Addressing,
		chunkSize:    uint64(req.ChunkSize),
		key:          key,
		createdAt:    now,
		staging:      st,
		state:        models.TransferPending,
		chunks:       newChunkSet(),
		inflight:     make(map[uint64]uint64),
		lastActivity: now,
	}

	if err := m.registry.SaveTransfer(ctx, s.snapshot()); err != nil {
		_ = st.destroy()
		return nil, err
	}
	m.sessions.Store(id, s)
	m.metrics.TransferStarted()

	m.log.Info(ctx, "transfer initialized",
		"transfer_id", id, "device_id", req.DeviceID, "file_name", req.FileName,
		"size", req.FileSize, "addressing", req.Addressing)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status(), nil
}

func (m *Manager) validateInit(req *InitRequest) error {
	if req.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", common.ErrInvalidRequest)
	}
	if err := filex.ValidateFileName(req.FileName); err != nil {
		return err
	}
	if req.FileSize > m.maxFile {
		return fmt.Errorf("%w: file size %d exceeds limit %d", common.ErrInvalidRequest, req.FileSize, m.maxFile)
	}

	sum, err := hex.DecodeString(req.FileHash)
	if err != nil || len(sum) != sha256.Size {
		return fmt.Errorf("%w: file hash must be hex sha-256", common.ErrInvalidRequest)
	}
	req.FileHash = strings.ToLower(req.FileHash)

	if req.Addressing == "" {
		req.Addressing = models.AddressingOffset
	}
	if !req.Addressing.Valid() {
		return fmt.Errorf("%w: %q", common.ErrAddressingScheme, req.Addressing)
	}
	if req.ChunkSize < 0 || req.ChunkSize > m.maxChunk {
		return fmt.Errorf("%w: chunk size must be within [1, %d]", common.ErrChunkSize, m.maxChunk)
	}
	if req.Addressing == models.AddressingIndex && req.ChunkSize == 0 {
		return fmt.Errorf("%w: index addressing requires a chunk size", common.ErrChunkSize)
	}
	return nil
}

// IngestChunk authenticates and stages one chunk. deviceID, when not empty,
// must own the transfer.
//
// Re-sending identical bytes at a staged position is a no-op reported as
// Duplicate. Different bytes at a staged position replace the old chunk and
// are reported as Corrected.
func (m *Manager) IngestChunk(ctx context.Context, deviceID string, c Chunk) (*ChunkAck, error) {
	s, err := m.session(deviceID, c.TransferID)
	if err != nil {
		return nil, err
	}

	ack, err := m.ingest(ctx, s, c)
	if err != nil {
		m.metrics.Chunk("rejected", 0)
		m.log.Debug(ctx, "chunk rejected", "transfer_id", c.TransferID, "position", c.Position, "error", err)
		return nil, err
	}
	return ack, nil
}

func (m *Manager) ingest(ctx context.Context, s *Session, c Chunk) (*ChunkAck, error) {
	n := uint64(len(c.Data))
	if n == 0 {
		return nil, fmt.Errorf("%w: empty chunk", common.ErrInvalidRequest)
	}
	if int64(n) > m.maxChunk {
		return nil, fmt.Errorf("%w: chunk of %d bytes exceeds limit %d", common.ErrChunkSize, n, m.maxChunk)
	}

	offset, err := s.offsetOf(c.Position)
	if err != nil {
		return nil, err
	}
	if offset >= s.size || n > s.size-offset {
		return nil, fmt.Errorf("%w: [%d,%d) of %d", common.ErrChunkOutOfRange, offset, offset+n, s.size)
	}
	if !cryptox.VerifyChunkTag(s.key[:], s.id, string(s.addressing), c.Position, c.Data, c.Tag) {
		return nil, common.ErrChunkAuth
	}
	digest := sha256.Sum256(c.Data)

	s.gate.RLock()
	defer s.gate.RUnlock()

	unlock := s.positions.lock(offset)
	defer unlock()

	s.mu.Lock()
	if err := s.acceptLocked(c.Position, offset, n); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	prev, exists := s.chunks.get(offset)
	if exists && prev.length == n && prev.digest == digest {
		s.lastActivity = m.clock.Now()
		ack := s.ack(c, offset)
		ack.Duplicate = true
		s.mu.Unlock()
		m.metrics.Chunk("duplicate", 0)
		return ack, nil
	}
	if s.overlapsLocked(offset, n) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: [%d,%d)", common.ErrChunkOverlap, offset, offset+n)
	}

	s.inflight[offset] = n
	first := s.state == models.TransferPending
	if first {
		s.state = models.TransferUploading
	}
	s.mu.Unlock()

	writeErr := s.staging.write(offset, c.Data)

	s.mu.Lock()
	delete(s.inflight, offset)
	if writeErr == nil {
		s.chunks.put(chunkMeta{
			offset:   offset,
			length:   n,
			position: c.Position,
			tag:      append([]byte(nil), c.Tag...),
			digest:   digest,
		})
		s.advanceIndex()
	}
	s.lastActivity = m.clock.Now()
	ack := s.ack(c, offset)
	ack.Corrected = exists
	s.mu.Unlock()

	if first {
		m.persist(ctx, s.id, models.TransferUploading, nil, "")
	}
	if writeErr != nil {
		return nil, fmt.Errorf("stage chunk: %w", writeErr)
	}

	if exists {
		m.metrics.Chunk("corrected", int(n))
		m.log.Warn(ctx, "chunk corrected",
			"transfer_id", s.id, "offset", offset, "position", c.Position,
			"old_length", prev.length, "new_length", n)
	} else {
		m.metrics.Chunk("stored", int(n))
	}
	return ack, nil
}

func (s *Session) offsetOf(position uint64) (uint64, error) {
	if s.addressing == models.AddressingOffset {
		return position, nil
	}
	if position > s.size/s.chunkSize {
		return 0, fmt.Errorf("%w: index %d", common.ErrChunkOutOfRange, position)
	}
	return position * s.chunkSize, nil
}

// acceptLocked checks the session state and the addressing rules. Callers
// must hold s.mu.
func (s *Session) acceptLocked(position, offset, n uint64) error {
	switch s.state {
	case models.TransferPending, models.TransferUploading:
	default:
		return fmt.Errorf("%w: transfer %s is %s", common.ErrInvalidState, s.id, s.state)
	}
	if s.addressing != models.AddressingIndex {
		return nil
	}
	if position > s.nextIndex {
		return fmt.Errorf("%w: got %d, next is %d", common.ErrChunkOutOfOrder, position, s.nextIndex)
	}
	final := offset+n == s.size
	if (!final && n != s.chunkSize) || n > s.chunkSize {
		return fmt.Errorf("%w: chunk %d has %d bytes, chunk size is %d", common.ErrChunkSize, position, n, s.chunkSize)
	}
	return nil
}

// Finalize assembles the staged chunks, verifies the declared hash and
// hands the artifact to the store.
//
// Missing ranges yield a *CoverageError and leave the transfer as it was,
// so the client can upload them and retry. A hash mismatch or a chunk that
// no longer verifies fails the transfer for good. Finalizing a completed
// transfer returns the earlier result, also after its session was dropped
// from memory.
func (m *Manager) Finalize(ctx context.Context, deviceID, transferID string) (*FinalResult, error) {
	s, err := m.session(deviceID, transferID)
	if err != nil {
		return m.finalizeFromRecord(ctx, deviceID, transferID)
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	s.mu.Lock()
	switch s.state {
	case models.TransferCompleted:
		res := s.result()
		s.mu.Unlock()
		return res, nil
	case models.TransferFailed:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: transfer %s failed", common.ErrInvalidState, s.id)
	}
	if missing := s.chunks.Missing(s.size); len(missing) > 0 {
		s.mu.Unlock()
		m.metrics.Finalize("incomplete")
		return nil, &CoverageError{TransferID: s.id, Missing: missing}
	}
	prev := s.state
	s.state = models.TransferAssembling
	chunks := s.chunks.ordered()
	s.mu.Unlock()

	m.persist(ctx, s.id, models.TransferAssembling, nil, "")

	f, sum, err := s.assemble(chunks)
	if err != nil {
		if errors.Is(err, common.ErrIntegrity) {
			m.fail(ctx, s, err)
			return nil, err
		}
		m.revert(ctx, s, prev)
		return nil, err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	if sum != s.hash {
		err := fmt.Errorf("%w: transfer %s assembled hash %s, declared %s", common.ErrIntegrity, s.id, sum, s.hash)
		m.fail(ctx, s, err)
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		m.revert(ctx, s, prev)
		return nil, err
	}
	location, err := m.store.Put(ctx, s.artifactKey(), f, int64(s.size))
	if err != nil {
		m.revert(ctx, s, prev)
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	now := m.clock.Now()
	s.mu.Lock()
	s.state = models.TransferCompleted
	s.completedAt = &now
	s.location = location
	s.lastActivity = now
	res := s.result()
	s.mu.Unlock()

	m.persist(ctx, s.id, models.TransferCompleted, &now, location)
	if err := s.staging.destroy(); err != nil {
		m.log.Warn(ctx, "release staging", "transfer_id", s.id, "error", err)
	}

	m.metrics.Finalize("completed")
	m.metrics.TransferEnded()
	m.log.Info(ctx, "transfer completed", "transfer_id", s.id, "size", s.size, "location", location)
	return res, nil
}

// finalizeFromRecord answers Finalize for a transfer without a live session.
// Only a completed record has a result; anything else cannot make progress.
func (m *Manager) finalizeFromRecord(ctx context.Context, deviceID, transferID string) (*FinalResult, error) {
	t, err := m.record(ctx, deviceID, transferID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TransferCompleted {
		return nil, fmt.Errorf("%w: transfer %s failed", common.ErrInvalidState, transferID)
	}
	res := &FinalResult{
		TransferID: t.ID,
		State:      t.Status,
		Size:       t.FileSize,
		Hash:       t.FileHash,
		Location:   t.Location,
	}
	if t.CompletedAt != nil {
		res.CompletedAt = *t.CompletedAt
	}
	return res, nil
}

// assemble concatenates the chunks in offset order into a temporary file,
// re-verifying each chunk, and returns the file with its hex SHA-256.
func (s *Session) assemble(chunks []chunkMeta) (f *os.File, sum string, err error) {
	f, err = s.staging.createAssembly()
	if err != nil {
		return nil, "", fmt.Errorf("create assembly: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			f = nil
		}
	}()

	h := sha256.New()
	w := io.MultiWriter(f, h)

	var pos uint64
	for _, c := range chunks {
		if c.offset != pos {
			return nil, "", fmt.Errorf("assembly out of sequence at offset %d", c.offset)
		}
		data, err := s.staging.read(c.offset)
		if err != nil {
			return nil, "", fmt.Errorf("read chunk %d: %w", c.offset, err)
		}
		if uint64(len(data)) != c.length || sha256.Sum256(data) != c.digest ||
			!cryptox.VerifyChunkTag(s.key[:], s.id, string(s.addressing), c.position, data, c.tag) {
			return nil, "", fmt.Errorf("%w: staged chunk at offset %d does not verify", common.ErrIntegrity, c.offset)
		}
		if _, err := w.Write(data); err != nil {
			return nil, "", fmt.Errorf("write assembly: %w", err)
		}
		pos += c.length
	}
	return f, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Session) artifactKey() string {
	return s.id + "/" + s.fileName
}

// result builds the final result. Callers must hold s.mu.
func (s *Session) result() *FinalResult {
	return &FinalResult{
		TransferID:  s.id,
		State:       s.state,
		Size:        s.size,
		Hash:        s.hash,
		Location:    s.location,
		CompletedAt: *s.completedAt,
	}
}

func (m *Manager) fail(ctx context.Context, s *Session, cause error) {
	now := m.clock.Now()
	s.mu.Lock()
	s.state = models.TransferFailed
	s.completedAt = &now
	s.lastActivity = now
	s.mu.Unlock()

	m.persist(ctx, s.id, models.TransferFailed, &now, "")
	m.metrics.Finalize("integrity_failed")
	m.metrics.TransferEnded()
	m.log.Error(ctx, "transfer failed", "transfer_id", s.id, "error", cause)
}

func (m *Manager) revert(ctx context.Context, s *Session, prev models.TransferStatus) {
	s.mu.Lock()
	s.state = prev
	s.mu.Unlock()
	m.persist(ctx, s.id, prev, nil, "")
	m.metrics.Finalize("error")
}

func (m *Manager) persist(ctx context.Context, id string, status models.TransferStatus, completedAt *time.Time, location string) {
	if err := m.registry.UpdateTransferStatus(ctx, id, status, completedAt, location); err != nil {
		m.log.Error(ctx, "persist transfer status", "transfer_id", id, "status", status, "error", err)
	}
}

// Status reports the transfer's progress. It never blocks on ingestion or
// finalize. Transfers no longer held in memory are answered from the
// registry.
func (m *Manager) Status(ctx context.Context, deviceID, transferID string) (*Status, error) {
	if s, err := m.session(deviceID, transferID); err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.status(), nil
	}

	t, err := m.record(ctx, deviceID, transferID)
	if err != nil {
		return nil, err
	}
	return statusFromRecord(t), nil
}

func (m *Manager) record(ctx context.Context, deviceID, transferID string) (*models.Transfer, error) {
	t, err := m.registry.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if deviceID != "" && t.DeviceID != deviceID {
		return nil, fmt.Errorf("%w: transfer %s", common.ErrorNotFound, transferID)
	}
	return t, nil
}

// statusFromRecord describes a transfer without a live session. Its staged
// chunks are gone, so a record left in a non-terminal state (for example
// by a restart) is reported as failed and the client starts over.
func statusFromRecord(t *models.Transfer) *Status {
	state := t.Status
	if !state.Terminal() {
		state = models.TransferFailed
	}
	st := &Status{
		TransferID:  t.ID,
		DeviceID:    t.DeviceID,
		FileName:    t.FileName,
		State:       state,
		Addressing:  t.Addressing,
		ChunkSize:   t.ChunkSize,
		Total:       t.FileSize,
		Location:    t.Location,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.Status == models.TransferCompleted {
		st.BytesReceived = t.FileSize
	}
	return st
}

// List returns the device's transfer history, newest first.
func (m *Manager) List(ctx context.Context, deviceID string, limit int) ([]*models.Transfer, error) {
	return m.registry.ListTransfersForDevice(ctx, deviceID, limit)
}

// DownloadURL returns a time-limited link to a completed artifact when the
// store supports it.
func (m *Manager) DownloadURL(ctx context.Context, deviceID, transferID string, ttl time.Duration) (string, error) {
	d, ok := m.store.(storage.Downloader)
	if !ok {
		return "", nil
	}
	st, err := m.Status(ctx, deviceID, transferID)
	if err != nil {
		return "", err
	}
	if st.State != models.TransferCompleted {
		return "", fmt.Errorf("%w: transfer %s is %s", common.ErrInvalidState, transferID, st.State)
	}
	return d.DownloadURL(ctx, transferID+"/"+st.FileName, ttl)
}

// ActiveCount returns the number of sessions in a non-terminal state.
func (m *Manager) ActiveCount() int {
	n := 0
	m.sessions.Range(func(_, v any) bool {
		s := v.(*Session)
		s.mu.Lock()
		if !s.state.Terminal() {
			n++
		}
		s.mu.Unlock()
		return true
	})
	return n
}

// Reclaim releases resources of transfers that will not make progress:
// staging of failed transfers is removed, transfers idle for longer than
// olderThan are failed and removed, terminal sessions idle for as long are
// dropped from memory, and staging directories left without a session are
// deleted once old enough. It returns the number of items reclaimed.
func (m *Manager) Reclaim(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.clock.Now().Add(-olderThan)

	n := 0
	m.sessions.Range(func(_, v any) bool {
		if m.reclaimSession(ctx, v.(*Session), cutoff) {
			n++
		}
		return true
	})

	entries, err := os.ReadDir(m.stagingDir)
	if err != nil {
		return n, fmt.Errorf("read staging: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, live := m.sessions.Load(e.Name()); live {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.stagingDir, e.Name())); err != nil {
			m.log.Warn(ctx, "remove orphan staging", "dir", e.Name(), "error", err)
			continue
		}
		n++
	}
	return n, nil
}

func (m *Manager) reclaimSession(ctx context.Context, s *Session, cutoff time.Time) bool {
	s.gate.Lock()
	defer s.gate.Unlock()

	s.mu.Lock()
	idle := s.lastActivity.Before(cutoff)
	state := s.state

	switch {
	case state == models.TransferFailed:
		s.mu.Unlock()
		released := s.releaseStaging()
		if idle {
			m.sessions.Delete(s.id)
		}
		return released || idle

	case state == models.TransferCompleted:
		s.mu.Unlock()
		if idle {
			m.sessions.Delete(s.id)
		}
		return idle

	case idle:
		now := m.clock.Now()
		s.state = models.TransferFailed
		s.completedAt = &now
		s.mu.Unlock()

		m.persist(ctx, s.id, models.TransferFailed, &now, "")
		s.releaseStaging()
		m.sessions.Delete(s.id)
		m.metrics.TransferEnded()
		m.log.Info(ctx, "stale transfer reclaimed", "transfer_id", s.id, "state", state)
		return true

	default:
		s.mu.Unlock()
		return false
	}
}

// releaseStaging removes the staging area once. It reports whether this
// call removed it.
func (s *Session) releaseStaging() bool {
	if _, err := os.Stat(s.staging.dir); errors.Is(err, os.ErrNotExist) {
		return false
	}
	return s.staging.destroy() == nil
}

func (m *Manager) session(deviceID, transferID string) (*Session, error) {
	v, ok := m.sessions.Load(transferID)
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", common.ErrorNotFound, transferID)
	}
	s := v.(*Session)
	if deviceID != "" && s.deviceID != deviceID {
		return nil, fmt.Errorf("%w: transfer %s", common.ErrorNotFound, transferID)
	}
	return s, nil
}
