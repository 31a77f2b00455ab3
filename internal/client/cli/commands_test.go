package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/client/client"
	"github.com/dmitrijs2005/bridgex/internal/client/config"
	"github.com/dmitrijs2005/bridgex/internal/client/models"
	"github.com/dmitrijs2005/bridgex/internal/client/services"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePairing struct {
	paired   bool
	pairedTo string
	invited  string
	pingErr  error
	err      error
}

func (f *fakePairing) Credentials(ctx context.Context) (*models.Credentials, error) {
	if !f.paired {
		return nil, client.ErrNotPaired
	}
	return &models.Credentials{DeviceID: "dev-1", DeviceName: "laptop"}, nil
}

func (f *fakePairing) Invite(ctx context.Context, name string) (*rpc.RequestPairingResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.invited = name
	return &rpc.RequestPairingResponse{
		DeviceID:  "dev-1",
		URI:       "bridgex://pair?id=dev-1&key=abc",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}, nil
}

func (f *fakePairing) Pair(ctx context.Context, uri string) (*models.Credentials, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.pairedTo = uri
	f.paired = true
	return &models.Credentials{DeviceID: "dev-1", DeviceName: "laptop"}, nil
}

func (f *fakePairing) Restore(ctx context.Context) error { return nil }
func (f *fakePairing) Unpair(ctx context.Context) error {
	if !f.paired {
		return client.ErrNotPaired
	}
	f.paired = false
	return nil
}

func (f *fakePairing) Devices(ctx context.Context) ([]rpc.Device, error) {
	seen := time.Now()
	return []rpc.Device{
		{ID: "dev-1", Name: "laptop", DeviceType: "cli", PairedAt: time.Now(), LastSeen: &seen},
		{ID: "dev-2", Name: "phone", DeviceType: "android", PairedAt: time.Now()},
	}, nil
}

func (f *fakePairing) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakePairing) Close() error                   { return nil }

type fakeSender struct {
	sent    []string
	opts    services.SendOptions
	sendErr error
	content []byte
}

func (f *fakeSender) Send(ctx context.Context, path string, opts services.SendOptions) (*services.SendResult, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, path)
	f.opts = opts
	return &services.SendResult{
		TransferID:  "t-" + filepath.Base(path),
		FileName:    filepath.Base(path),
		Size:        2048,
		Hash:        "abc",
		Location:    "file:///artifacts/x",
		DownloadURL: "https://bucket/x",
		Resumed:     path == "resumed.bin",
	}, nil
}

func (f *fakeSender) Status(ctx context.Context, id string) (*rpc.TransferStatusResponse, error) {
	if id == "missing" {
		return nil, client.ErrNotFound
	}
	return &rpc.TransferStatusResponse{
		TransferID: id, FileName: "a.bin", State: "uploading",
		BytesReceived: 100, Total: 300, ChunksReceived: 1,
		Missing: []rpc.ByteRange{{Offset: 100, Length: 200}},
	}, nil
}

func (f *fakeSender) History(ctx context.Context, limit int) ([]*models.Upload, error) {
	return []*models.Upload{{TransferID: "t-1", FilePath: "/tmp/a.bin", FileSize: 10, Status: models.UploadSending, CreatedAt: time.Now()}}, nil
}

func (f *fakeSender) Remote(ctx context.Context, limit int) ([]rpc.TransferSummary, error) {
	return []rpc.TransferSummary{{TransferID: "t-9", FileName: "b.bin", FileSize: 5, State: "completed", CreatedAt: time.Now()}}, nil
}

func (f *fakeSender) Fetch(ctx context.Context, id string, w io.Writer) (int64, error) {
	if id == "local" {
		return 0, services.ErrNoDownload
	}
	n, err := w.Write(f.content)
	return int64(n), err
}

func newTestApp(input string) (*App, *fakePairing, *fakeSender, *bytes.Buffer) {
	fp := &fakePairing{}
	fs := &fakeSender{}
	var out bytes.Buffer
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return &App{
		config:  cfg,
		pairing: fp,
		sender:  fs,
		logger:  logging.Nop(),
		out:     &out,
		reader:  rdr(input),
	}, fp, fs, &out
}

func TestPair(t *testing.T) {
	ctx := context.Background()

	t.Run("self invitation", func(t *testing.T) {
		a, fp, _, out := newTestApp("")
		require.NoError(t, a.Pair(ctx, nil))
		assert.Equal(t, "bridgex-cli", fp.invited)
		assert.Equal(t, "bridgex://pair?id=dev-1&key=abc", fp.pairedTo)
		assert.Contains(t, out.String(), `Paired as "laptop" (device dev-1)`)
	})

	t.Run("scanned uri", func(t *testing.T) {
		a, fp, _, _ := newTestApp("")
		require.NoError(t, a.Pair(ctx, []string{"bridgex://pair?id=z&key=k"}))
		assert.Empty(t, fp.invited)
		assert.Equal(t, "bridgex://pair?id=z&key=k", fp.pairedTo)
	})

	t.Run("already paired, declined", func(t *testing.T) {
		a, fp, _, _ := newTestApp("n\n")
		fp.paired = true
		require.NoError(t, a.Pair(ctx, []string{"bridgex://pair?id=z&key=k"}))
		assert.Empty(t, fp.pairedTo)
	})

	t.Run("already paired, replaced", func(t *testing.T) {
		a, fp, _, _ := newTestApp("y\n")
		fp.paired = true
		require.NoError(t, a.Pair(ctx, []string{"bridgex://pair?id=z&key=k"}))
		assert.Equal(t, "bridgex://pair?id=z&key=k", fp.pairedTo)
	})

	t.Run("server error", func(t *testing.T) {
		a, fp, _, _ := newTestApp("")
		fp.err = client.ErrUnavailable
		assert.ErrorIs(t, a.Pair(ctx, nil), client.ErrUnavailable)
	})
}

func TestInvite_PrintsQR(t *testing.T) {
	a, fp, _, out := newTestApp("")
	require.NoError(t, a.Invite(context.Background(), []string{"phone"}))
	assert.Equal(t, "phone", fp.invited)
	assert.Contains(t, out.String(), "Pairing URI: bridgex://pair?id=dev-1&key=abc")
	assert.Contains(t, out.String(), "Expires:")
}

func TestSend(t *testing.T) {
	withTerminal(t, false)
	a, _, fs, out := newTestApp("")
	a.config.ChunkSize = 1024
	a.config.Parallelism = 3

	require.NoError(t, a.Send(context.Background(), []string{"a.bin", "resumed.bin"}))
	assert.Equal(t, []string{"a.bin", "resumed.bin"}, fs.sent)
	assert.Equal(t, int64(1024), fs.opts.ChunkSize)
	assert.Equal(t, 3, fs.opts.Parallelism)
	assert.Nil(t, fs.opts.Progress)

	s := out.String()
	assert.Contains(t, s, "Sent a.bin (2.0 KiB) as transfer t-a.bin")
	assert.Contains(t, s, "Resumed and sent resumed.bin")
	assert.Contains(t, s, "download https://bucket/x")

	assert.ErrorIs(t, a.Send(context.Background(), nil), errUsage)

	fs.sendErr = client.ErrNotPaired
	err := a.Send(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, client.ErrNotPaired)
	assert.Contains(t, describe(err), "not paired")
}

func TestStatus(t *testing.T) {
	a, _, _, out := newTestApp("")
	ctx := context.Background()

	require.NoError(t, a.Status(ctx, []string{"t-1"}))
	assert.Contains(t, out.String(), "t-1  a.bin  uploading")
	assert.Contains(t, out.String(), "missing [100, 300)")

	assert.ErrorIs(t, a.Status(ctx, nil), errUsage)
	assert.ErrorIs(t, a.Status(ctx, []string{"missing"}), client.ErrNotFound)
}

func TestListings(t *testing.T) {
	a, _, _, out := newTestApp("")
	ctx := context.Background()

	require.NoError(t, a.History(ctx, nil))
	assert.Contains(t, out.String(), "/tmp/a.bin")

	require.NoError(t, a.Transfers(ctx, []string{"5"}))
	assert.Contains(t, out.String(), "b.bin")

	require.NoError(t, a.Devices(ctx, nil))
	assert.Contains(t, out.String(), "phone")

	assert.ErrorIs(t, a.History(ctx, []string{"-1"}), errUsage)
	assert.ErrorIs(t, a.Transfers(ctx, []string{"many"}), errUsage)
}

func TestFetch(t *testing.T) {
	a, _, fs, out := newTestApp("")
	fs.content = []byte("payload")
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "out.bin")

	require.NoError(t, a.Fetch(ctx, []string{"t-1", dest}))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
	assert.Contains(t, out.String(), "Fetched 7 B")

	other := filepath.Join(t.TempDir(), "none.bin")
	assert.ErrorIs(t, a.Fetch(ctx, []string{"local", other}), services.ErrNoDownload)
	_, err = os.Stat(other)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	entries, err := os.ReadDir(filepath.Dir(other))
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, a.Fetch(ctx, []string{"t-1"}), errUsage)
}

func TestPingAndMode(t *testing.T) {
	a, fp, _, out := newTestApp("")
	ctx := context.Background()

	require.NoError(t, a.Ping(ctx, nil))
	assert.Equal(t, ModeOnline, a.mode())
	assert.Contains(t, out.String(), "is up")

	fp.pingErr = client.ErrUnavailable
	assert.ErrorIs(t, a.Ping(ctx, nil), client.ErrUnavailable)
	assert.Equal(t, ModeOffline, a.mode())

	fp.pingErr = nil
	a.checkOnline(ctx)
	assert.Equal(t, ModeOnline, a.mode())
}

func TestUnpairAndStatusLine(t *testing.T) {
	a, fp, _, out := newTestApp("")
	ctx := context.Background()

	assert.Equal(t, "(unpaired)", a.getStatus())

	fp.paired = true
	a.setMode(ModeOnline)
	assert.Equal(t, "(laptop online)", a.getStatus())

	require.NoError(t, a.Unpair(ctx, nil))
	assert.Contains(t, out.String(), "Unpaired")
	assert.ErrorIs(t, a.Unpair(ctx, nil), client.ErrNotPaired)
}

func TestSetMode_LogsOnChangeOnly(t *testing.T) {
	a, _, _, _ := newTestApp("")
	var buf bytes.Buffer
	a.logger = logging.NewTextLogger(&buf, "info")

	a.setMode(ModeOnline)
	assert.Contains(t, buf.String(), "mode=online")

	buf.Reset()
	a.setMode(ModeOnline)
	assert.Empty(t, buf.String())

	a.setMode(ModeOffline)
	assert.Contains(t, buf.String(), "mode=offline")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Server unavailable", describe(client.ErrUnavailable))
	assert.Contains(t, describe(usage("send <file>")), "send <file>")
	assert.Equal(t, "Error: boom", describe(errors.New("boom")))
}

func TestStartOnlineStatusWatcher_StopsOnCancel(t *testing.T) {
	a, _, _, _ := newTestApp("")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		a.StartOnlineStatusWatcher(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return a.mode() == ModeOnline }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRun_OneShot(t *testing.T) {
	capturePrint(t)
	a, _, _, out := newTestApp("")

	code := a.Run(context.Background(), []string{"-a", "host:1", "status", "t-7"})
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "t-7")

	a, _, _, _ = newTestApp("")
	assert.Equal(t, 1, a.Run(context.Background(), []string{"status"}))
}
