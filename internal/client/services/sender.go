package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dmitrijs2005/bridgex/internal/client/client"
	"github.com/dmitrijs2005/bridgex/internal/client/models"
	"github.com/dmitrijs2005/bridgex/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/netx"
	"github.com/dmitrijs2005/bridgex/internal/rpc"
	"github.com/dmitrijs2005/bridgex/internal/timex"
	"golang.org/x/sync/errgroup"
)

const (
	addressingOffset = "offset"

	remoteCompleted = "completed"
	remoteFailed    = "failed"

	// finalizeAttempts bounds how often missing ranges are re-sent after the
	// server reports an incomplete transfer.
	finalizeAttempts = 3
)

// ProgressFunc receives the number of bytes acknowledged so far.
type ProgressFunc func(sent, total uint64)

type SendOptions struct {
	ChunkSize   int64
	Parallelism int
	Progress    ProgressFunc
}

type SendResult struct {
	TransferID  string
	FileName    string
	Size        uint64
	Hash        string
	Location    string
	DownloadURL string
	Resumed     bool
}

// SenderService uploads files to the paired server and tracks them locally.
type SenderService interface {
	Send(ctx context.Context, path string, opts SendOptions) (*SendResult, error)
	Status(ctx context.Context, transferID string) (*rpc.TransferStatusResponse, error)
	// History lists uploads started from this machine, newest first.
	History(ctx context.Context, limit int) ([]*models.Upload, error)
	// Remote lists this device's transfers as the server records them.
	Remote(ctx context.Context, limit int) ([]rpc.TransferSummary, error)
	// Fetch downloads a completed transfer's artifact into w and checks it
	// against the hash the server reports.
	Fetch(ctx context.Context, transferID string, w io.Writer) (int64, error)
}

// ErrNoDownload means the server's artifact store does not hand out
// download URLs.
var ErrNoDownload = errors.New("artifact store does not serve downloads")

type senderService struct {
	client  client.Client
	creds   CredentialSource
	uploads uploads.Repository
	clock   timex.Clock
	logger  logging.Logger
	http    *http.Client
}

func NewSenderService(c client.Client, creds CredentialSource, repo uploads.Repository, clock timex.Clock, logger logging.Logger) SenderService {
	return &senderService{client: c, creds: creds, uploads: repo, clock: clock, logger: logger, http: http.DefaultClient}
}

// span is one chunk to upload.
type span struct {
	offset uint64
	length uint64
}

func (s *senderService) Send(ctx context.Context, path string, opts SendOptions) (*SendResult, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", common.ErrInvalidRequest)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}

	creds, err := s.creds.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	defer creds.Wipe()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", common.ErrInvalidRequest, path)
	}
	size := uint64(info.Size())

	hash, err := hashFile(f, info.Size())
	if err != nil {
		return nil, err
	}

	up, missing, resumed, err := s.resumeOrInit(ctx, abs, hash, size, opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	log := s.logger.With("transfer_id", up.TransferID, "file", up.FileName)
	if resumed {
		log.Info(ctx, "resuming transfer", "missing_ranges", len(missing))
	}

	key := creds.TransferKey(up.TransferID)
	defer common.WipeByteArray(key[:])

	if err := s.setStatus(ctx, up, models.UploadSending, ""); err != nil {
		return nil, err
	}

	chunk := uint64(up.ChunkSize)
	if chunk == 0 {
		chunk = uint64(opts.ChunkSize)
	}

	var sent atomic.Uint64
	for attempt := 1; ; attempt++ {
		sent.Store(size - rangesLen(missing))
		if opts.Progress != nil {
			opts.Progress(sent.Load(), size)
		}

		if err := s.upload(ctx, f, up, key[:], split(missing, chunk), opts, &sent); err != nil {
			return nil, err
		}

		fin, err := s.client.FinalizeTransfer(ctx, up.TransferID)
		if err == nil {
			if err := s.setStatus(ctx, up, models.UploadCompleted, fin.Location); err != nil {
				log.Warn(ctx, "transfer completed but local journal not updated", "error", err)
			}
			log.Info(ctx, "transfer completed", "location", fin.Location)
			return &SendResult{
				TransferID:  fin.TransferID,
				FileName:    up.FileName,
				Size:        fin.Size,
				Hash:        fin.Hash,
				Location:    fin.Location,
				DownloadURL: fin.DownloadURL,
				Resumed:     resumed,
			}, nil
		}

		switch {
		case errors.Is(err, client.ErrIntegrity):
			_ = s.setStatus(ctx, up, models.UploadFailed, "")
			return nil, err
		case errors.Is(err, client.ErrRejected) && attempt < finalizeAttempts:
			st, serr := s.client.TransferStatus(ctx, up.TransferID)
			if serr != nil {
				return nil, serr
			}
			if st.State == remoteFailed {
				_ = s.setStatus(ctx, up, models.UploadFailed, "")
				return nil, err
			}
			missing = st.Missing
			log.Warn(ctx, "server reported missing ranges", "attempt", attempt, "missing_ranges", len(missing))
		default:
			return nil, err
		}
	}
}

// resumeOrInit continues a journaled upload of the same content when the
// server still has it, and starts a new transfer otherwise. It returns the
// byte ranges still to send.
func (s *senderService) resumeOrInit(ctx context.Context, abs, hash string, size uint64, chunkSize int64) (*models.Upload, []rpc.ByteRange, bool, error) {
	prev, err := s.uploads.FindResumable(ctx, abs, hash, size)
	switch {
	case err == nil:
		st, serr := s.client.TransferStatus(ctx, prev.TransferID)
		switch {
		case serr == nil && st.State != remoteFailed:
			if st.State == remoteCompleted {
				return prev, nil, true, nil
			}
			return prev, st.Missing, true, nil
		case serr == nil, errors.Is(serr, client.ErrNotFound):
			s.logger.Info(ctx, "previous transfer is gone, starting over", "transfer_id", prev.TransferID)
			_ = s.setStatus(ctx, prev, models.UploadFailed, "")
		default:
			return nil, nil, false, serr
		}
	case errors.Is(err, common.ErrorNotFound):
	default:
		return nil, nil, false, err
	}

	st, err := s.client.InitTransfer(ctx, &rpc.InitTransferRequest{
		FileName:   filepath.Base(abs),
		FileSize:   size,
		FileHash:   hash,
		Addressing: addressingOffset,
		ChunkSize:  chunkSize,
	})
	if err != nil {
		return nil, nil, false, err
	}

	now := s.clock.Now()
	up := &models.Upload{
		TransferID: st.TransferID,
		FilePath:   abs,
		FileName:   filepath.Base(abs),
		FileHash:   hash,
		FileSize:   size,
		ChunkSize:  chunkSize,
		Status:     models.UploadPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.uploads.Save(ctx, up); err != nil {
		return nil, nil, false, err
	}

	var missing []rpc.ByteRange
	if size > 0 {
		missing = []rpc.ByteRange{{Offset: 0, Length: size}}
	}
	return up, missing, false, nil
}

// upload sends spans with at most opts.Parallelism chunks in flight. The
// first failure cancels the rest.
func (s *senderService) upload(ctx context.Context, f io.ReaderAt, up *models.Upload, key []byte, spans []span, opts SendOptions, sent *atomic.Uint64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for _, sp := range spans {
		g.Go(func() error {
			data := make([]byte, sp.length)
			if _, err := f.ReadAt(data, int64(sp.offset)); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read %s at %d: %w", up.FileName, sp.offset, err)
			}

			_, err := s.client.UploadChunk(gctx, &rpc.UploadChunkRequest{
				TransferID: up.TransferID,
				Position:   sp.offset,
				Data:       data,
				Tag:        cryptox.ChunkTag(key, up.TransferID, addressingOffset, sp.offset, data),
			})
			if err != nil {
				return fmt.Errorf("chunk at %d: %w", sp.offset, err)
			}

			n := sent.Add(sp.length)
			if opts.Progress != nil {
				opts.Progress(n, up.FileSize)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *senderService) setStatus(ctx context.Context, up *models.Upload, status models.UploadStatus, location string) error {
	if up.Status == status && up.Location == location {
		return nil
	}
	now := s.clock.Now()
	if err := s.uploads.UpdateStatus(ctx, up.TransferID, status, location, now); err != nil {
		return err
	}
	up.Status, up.Location, up.UpdatedAt = status, location, now
	return nil
}

func (s *senderService) Status(ctx context.Context, transferID string) (*rpc.TransferStatusResponse, error) {
	st, err := s.client.TransferStatus(ctx, transferID)
	if err != nil {
		return nil, err
	}

	// keep the journal in step with what the server reports
	var local models.UploadStatus
	switch st.State {
	case remoteCompleted:
		local = models.UploadCompleted
	case remoteFailed:
		local = models.UploadFailed
	}
	if local != "" {
		if up, gerr := s.uploads.Get(ctx, transferID); gerr == nil {
			if serr := s.setStatus(ctx, up, local, st.Location); serr != nil {
				s.logger.Warn(ctx, "journal update failed", "transfer_id", transferID, "error", serr)
			}
		}
	}
	return st, nil
}

func (s *senderService) History(ctx context.Context, limit int) ([]*models.Upload, error) {
	return s.uploads.List(ctx, limit)
}

func (s *senderService) Remote(ctx context.Context, limit int) ([]rpc.TransferSummary, error) {
	return s.client.ListTransfers(ctx, limit)
}

func (s *senderService) Fetch(ctx context.Context, transferID string, w io.Writer) (int64, error) {
	// finalizing a completed transfer returns its result again
	fin, err := s.client.FinalizeTransfer(ctx, transferID)
	if err != nil {
		return 0, err
	}
	if fin.DownloadURL == "" {
		return 0, ErrNoDownload
	}
	n, err := netx.Download(ctx, s.http, fin.DownloadURL, w, fin.Hash)
	if err != nil {
		return n, fmt.Errorf("fetch %s: %w", transferID, err)
	}
	return n, nil
}

func hashFile(f io.ReaderAt, size int64) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, size)); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// split cuts ranges into spans of at most chunkSize bytes.
func split(ranges []rpc.ByteRange, chunkSize uint64) []span {
	var out []span
	for _, r := range ranges {
		for off := r.Offset; off < r.Offset+r.Length; off += chunkSize {
			n := min(chunkSize, r.Offset+r.Length-off)
			out = append(out, span{offset: off, length: n})
		}
	}
	return out
}

func rangesLen(ranges []rpc.ByteRange) uint64 {
	var n uint64
	for _, r := range ranges {
		n += r.Length
	}
	return n
}
