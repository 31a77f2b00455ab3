package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/dmitrijs2005/bridgex/internal/client/client"
	"github.com/dmitrijs2005/bridgex/internal/client/migrations"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
	"github.com/dmitrijs2005/bridgex/internal/dbx"
	"github.com/dmitrijs2005/bridgex/internal/pairing"
	"github.com/dmitrijs2005/bridgex/internal/rpc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) dbx.DBTX {
	t.Helper()
	db, err := dbx.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

type fakeTransfer struct {
	size      uint64
	hash      string
	chunkSize int64
	data      []byte
	have      []bool
	state     string
}

func (t *fakeTransfer) missing() []rpc.ByteRange {
	var out []rpc.ByteRange
	for i := uint64(0); i < t.size; i++ {
		if t.have[i] {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Offset+out[n-1].Length == i {
			out[n-1].Length++
			continue
		}
		out = append(out, rpc.ByteRange{Offset: i, Length: 1})
	}
	return out
}

// fakeServer implements client.Client in memory, including the pairing key
// exchange and chunk tag checks.
type fakeServer struct {
	mu sync.Mutex

	kp       *cryptox.KeyPair
	deviceID string
	secret   [cryptox.KeySize]byte
	paired   bool
	token    string

	badConfirmation bool
	deleteErr       error
	pingErr         error

	transfers map[string]*fakeTransfer
	// dropOnce acknowledges a chunk at this offset once without storing it.
	dropOnce map[uint64]bool
	// failAfter makes every upload after n stored chunks fail with
	// client.ErrUnavailable; negative disables it.
	failAfter int
	stored    int
	chunks    int
	corrupt   bool
	// downloadBase prefixes DownloadURL; empty means no downloads.
	downloadBase string
}

var _ client.Client = (*fakeServer)(nil)

func newFakeServer(t *testing.T) *fakeServer {
	kp, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	return &fakeServer{
		kp:        kp,
		transfers: map[string]*fakeTransfer{},
		dropOnce:  map[uint64]bool{},
		failAfter: -1,
	}
}

func (f *fakeServer) Close() error                { return nil }
func (f *fakeServer) SetAccessToken(token string) { f.mu.Lock(); f.token = token; f.mu.Unlock() }
func (f *fakeServer) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeServer) RequestPairing(ctx context.Context, name, typ string) (*rpc.RequestPairingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceID = uuid.NewString()
	return &rpc.RequestPairingResponse{
		DeviceID:        f.deviceID,
		URI:             pairing.FormatURI(pairing.DefaultScheme, f.deviceID, f.kp.PublicKey[:]),
		ServerPublicKey: f.kp.PublicKey[:],
	}, nil
}

func (f *fakeServer) CompletePairing(ctx context.Context, deviceID string, pub []byte) (*rpc.CompletePairingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if deviceID != f.deviceID {
		return nil, fmt.Errorf("%w: unknown invitation", client.ErrNotFound)
	}
	secret, err := cryptox.DeriveSharedSecret(f.kp.PrivateKey[:], pub)
	if err != nil {
		return nil, err
	}
	f.secret = secret
	f.paired = true

	key := cryptox.DeriveSessionKey(secret[:], cryptox.InfoPairing)
	conf := cryptox.KeyConfirmation(key[:], deviceID)
	if f.badConfirmation {
		conf[0] ^= 0xff
	}
	return &rpc.CompletePairingResponse{
		DeviceID:        deviceID,
		DeviceName:      "laptop",
		AccessToken:     "token-" + deviceID,
		ServerPublicKey: f.kp.PublicKey[:],
		KeyConfirmation: conf,
	}, nil
}

func (f *fakeServer) ListDevices(ctx context.Context) ([]rpc.Device, error) {
	return []rpc.Device{{ID: f.deviceID, Name: "laptop"}}, nil
}

func (f *fakeServer) DeleteDevice(ctx context.Context, deviceID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	f.paired = false
	f.mu.Unlock()
	return nil
}

func (f *fakeServer) InitTransfer(ctx context.Context, req *rpc.InitTransferRequest) (*rpc.TransferStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.transfers[id] = &fakeTransfer{
		size:      req.FileSize,
		hash:      req.FileHash,
		chunkSize: req.ChunkSize,
		data:      make([]byte, req.FileSize),
		have:      make([]bool, req.FileSize),
		state:     "pending",
	}
	return &rpc.TransferStatusResponse{TransferID: id, State: "pending", Total: req.FileSize}, nil
}

func (f *fakeServer) UploadChunk(ctx context.Context, req *rpc.UploadChunkRequest) (*rpc.UploadChunkResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks++

	t, ok := f.transfers[req.TransferID]
	if !ok {
		return nil, client.ErrNotFound
	}
	if f.failAfter >= 0 && f.stored >= f.failAfter {
		return nil, client.ErrUnavailable
	}
	key := cryptox.DeriveSessionKey(f.secret[:], cryptox.TransferInfo(req.TransferID))
	if !cryptox.VerifyChunkTag(key[:], req.TransferID, "offset", req.Position, req.Data, req.Tag) {
		return nil, fmt.Errorf("%w: bad tag", client.ErrUnauthorized)
	}
	if int64(len(req.Data)) > t.chunkSize {
		return nil, fmt.Errorf("chunk too large")
	}
	ack := &rpc.UploadChunkResponse{TransferID: req.TransferID, Position: req.Position}
	if f.dropOnce[req.Position] {
		delete(f.dropOnce, req.Position)
		return ack, nil
	}
	copy(t.data[req.Position:], req.Data)
	for i := range req.Data {
		t.have[req.Position+uint64(i)] = true
	}
	t.state = "uploading"
	f.stored++
	return ack, nil
}

func (f *fakeServer) FinalizeTransfer(ctx context.Context, id string) (*rpc.FinalizeTransferResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	switch t.state {
	case "failed":
		return nil, fmt.Errorf("%w: invalid transfer state", client.ErrRejected)
	case "completed":
	default:
		if len(t.missing()) > 0 {
			return nil, fmt.Errorf("%w: incomplete transfer", client.ErrRejected)
		}
		sum := sha256.Sum256(t.data)
		if f.corrupt || hex.EncodeToString(sum[:]) != t.hash {
			t.state = "failed"
			return nil, fmt.Errorf("%w: hash mismatch", client.ErrIntegrity)
		}
		t.state = "completed"
	}
	res := &rpc.FinalizeTransferResponse{
		TransferID: id,
		State:      "completed",
		Size:       t.size,
		Hash:       t.hash,
		Location:   "file:///artifacts/" + id,
	}
	if f.downloadBase != "" {
		res.DownloadURL = f.downloadBase + "/" + id
	}
	return res, nil
}

func (f *fakeServer) TransferStatus(ctx context.Context, id string) (*rpc.TransferStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	st := &rpc.TransferStatusResponse{TransferID: id, State: t.state, Total: t.size, Missing: t.missing()}
	if t.state == "completed" {
		st.Location = "file:///artifacts/" + id
	}
	return st, nil
}

func (f *fakeServer) ListTransfers(ctx context.Context, limit int) ([]rpc.TransferSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rpc.TransferSummary
	for id, t := range f.transfers {
		out = append(out, rpc.TransferSummary{TransferID: id, FileSize: t.size, State: t.state})
	}
	return out, nil
}
