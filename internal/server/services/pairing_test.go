package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/pairing"
	"github.com/dmitrijs2005/bridgex/internal/server/auth"
	"github.com/dmitrijs2005/bridgex/internal/server/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPairingService(t *testing.T) (*PairingService, *testEnv, *metrics.Metrics) {
	t.Helper()
	env := newTestEnv(t)
	m := metrics.New(prometheus.NewRegistry())
	return NewPairingService(env.registry, env.keyring, env.cfg, env.clock, m, logging.Nop()), env, m
}

func TestRequestPairing(t *testing.T) {
	s, env, _ := newPairingService(t)

	inv, err := s.RequestPairing(context.Background(), "Pixel", "android")
	require.NoError(t, err)

	assert.Equal(t, env.clock.Now(), inv.IssuedAt)
	assert.Equal(t, inv.IssuedAt.Add(5*time.Minute), inv.ExpiresAt)
	assert.Len(t, inv.EphemeralPublicKey, cryptox.KeySize)
	assert.True(t, strings.HasPrefix(inv.URI, "bridgex://pair?id="+inv.DeviceID+"&key="))
	assert.True(t, strings.HasPrefix(inv.QRCode, "data:image/png;base64,"))

	parsed, err := pairing.ParseURI(inv.URI)
	require.NoError(t, err)
	assert.Equal(t, inv.DeviceID, parsed.DeviceID)
	assert.Equal(t, inv.EphemeralPublicKey, parsed.PublicKey[:])

	// provisional: nothing persisted
	n, err := env.registry.CountDevices(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, s.PendingCount())

	got, err := s.Invitation(inv.DeviceID)
	require.NoError(t, err)
	assert.Same(t, inv, got)
}

func TestCompletePairing_Success(t *testing.T) {
	s, env, m := newPairingService(t)
	ctx := context.Background()

	inv, err := s.RequestPairing(ctx, "Pixel", "android")
	require.NoError(t, err)

	peer, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)

	res, err := s.CompletePairing(ctx, inv.DeviceID, peer.PublicKey[:])
	require.NoError(t, err)

	assert.Equal(t, inv.DeviceID, res.Device.ID)
	assert.Equal(t, "Pixel", res.Device.Name)
	assert.Equal(t, peer.PublicKey[:], res.Device.PublicKey)

	deviceID, err := auth.GetDeviceIDFromToken(res.AccessToken, []byte(env.cfg.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, inv.DeviceID, deviceID)

	// both sides agree on the pairing key
	secret, err := cryptox.DeriveSharedSecret(peer.PrivateKey[:], res.ServerPublicKey)
	require.NoError(t, err)
	key := cryptox.DeriveSessionKey(secret[:], cryptox.InfoPairing)
	assert.True(t, cryptox.VerifyKeyConfirmation(key[:], inv.DeviceID, res.KeyConfirmation))

	// and on transfer keys derived from the stored secret
	serverKey, err := env.keyring.TransferKey(inv.DeviceID, "t1")
	require.NoError(t, err)
	assert.Equal(t, cryptox.DeriveSessionKey(secret[:], "transfer:t1"), serverKey)

	stored, err := env.registry.GetDevice(ctx, inv.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, peer.PublicKey[:], stored.PublicKey)
	assert.Zero(t, s.PendingCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PairingsTotal.WithLabelValues("completed")))
}

func TestCompletePairing_SingleUse(t *testing.T) {
	s, env, _ := newPairingService(t)
	ctx := context.Background()

	inv, err := s.RequestPairing(ctx, "Pixel", "android")
	require.NoError(t, err)
	peer, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)

	_, err = s.CompletePairing(ctx, inv.DeviceID, peer.PublicKey[:])
	require.NoError(t, err)

	_, err = s.CompletePairing(ctx, inv.DeviceID, peer.PublicKey[:])
	assert.ErrorIs(t, err, common.ErrAlreadyCompleted)

	n, err := env.registry.CountDevices(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCompletePairing_ConcurrentReplay(t *testing.T) {
	s, env, _ := newPairingService(t)
	ctx := context.Background()

	const workers = 32
	for round := 0; round < 20; round++ {
		inv, err := s.RequestPairing(ctx, "Pixel", "android")
		require.NoError(t, err)
		peer, err := cryptox.GenerateKeyPair()
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, workers)
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = s.CompletePairing(ctx, inv.DeviceID, peer.PublicKey[:])
			}(i)
		}
		close(start)
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			require.ErrorIs(t, err, common.ErrAlreadyCompleted)
		}
		assert.Equal(t, 1, successes)
	}

	n, err := env.registry.CountDevices(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 20, n)
}

func TestCompletePairing_RetryAfterStoreFailure(t *testing.T) {
	s, env, _ := newPairingService(t)
	ctx := context.Background()

	inv, err := s.RequestPairing(ctx, "Pixel", "android")
	require.NoError(t, err)
	peer, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)

	_, err = env.db.ExecContext(ctx, "ALTER TABLE devices RENAME TO devices_offline")
	require.NoError(t, err)

	_, err = s.CompletePairing(ctx, inv.DeviceID, peer.PublicKey[:])
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, 1, s.PendingCount())
	assert.False(t, env.keyring.Has(inv.DeviceID))

	_, err = env.db.ExecContext(ctx, "ALTER TABLE devices_offline RENAME TO devices")
	require.NoError(t, err)

	res, err := s.CompletePairing(ctx, inv.DeviceID, peer.PublicKey[:])
	require.NoError(t, err)
	assert.Equal(t, inv.DeviceID, res.Device.ID)
	assert.True(t, env.keyring.Has(inv.DeviceID))
}

func TestCompletePairing_Expired(t *testing.T) {
	s, env, m := newPairingService(t)
	ctx := context.Background()

	inv, err := s.RequestPairing(ctx, "Pixel", "android")
	require.NoError(t, err)
	peer, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)

	env.clock.Advance(pairing.InvitationTTL)

	_, err = s.CompletePairing(ctx, inv.DeviceID, peer.PublicKey[:])
	assert.ErrorIs(t, err, common.ErrExpired)

	n, err := env.registry.CountDevices(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, env.keyring.Has(inv.DeviceID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PairingsTotal.WithLabelValues("expired")))

	_, err = s.Invitation(inv.DeviceID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCompletePairing_JustBeforeExpiry(t *testing.T) {
	s, env, _ := newPairingService(t)
	ctx := context.Background()

	inv, err := s.RequestPairing(ctx, "Pixel", "android")
	require.NoError(t, err)
	peer, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)

	env.clock.Advance(pairing.InvitationTTL - time.Nanosecond)

	_, err = s.CompletePairing(ctx, inv.DeviceID, peer.PublicKey[:])
	assert.NoError(t, err)
}

func TestCompletePairing_InvalidPeerKeyIsRetryable(t *testing.T) {
	s, _, _ := newPairingService(t)
	ctx := context.Background()

	inv, err := s.RequestPairing(ctx, "Pixel", "android")
	require.NoError(t, err)

	_, err = s.CompletePairing(ctx, inv.DeviceID, []byte("short"))
	assert.ErrorIs(t, err, common.ErrInvalidKey)

	// low-order point: all zeros
	_, err = s.CompletePairing(ctx, inv.DeviceID, make([]byte, cryptox.KeySize))
	assert.ErrorIs(t, err, common.ErrInvalidKey)

	peer, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	_, err = s.CompletePairing(ctx, inv.DeviceID, peer.PublicKey[:])
	assert.NoError(t, err)
}

func TestCompletePairing_UnknownInvitation(t *testing.T) {
	s, _, _ := newPairingService(t)
	peer, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)

	_, err = s.CompletePairing(context.Background(), "nope", peer.PublicKey[:])
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPruneExpired(t *testing.T) {
	s, env, _ := newPairingService(t)
	ctx := context.Background()

	done, err := s.RequestPairing(ctx, "a", "ios")
	require.NoError(t, err)
	_, err = s.RequestPairing(ctx, "b", "ios")
	require.NoError(t, err)

	peer, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	_, err = s.CompletePairing(ctx, done.DeviceID, peer.PublicKey[:])
	require.NoError(t, err)

	assert.Zero(t, s.PruneExpired())

	env.clock.Advance(pairing.InvitationTTL)
	assert.Equal(t, 2, s.PruneExpired())
	assert.Zero(t, s.PendingCount())
}

func TestNewPairingService_CustomScheme(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.URIScheme = "bx"
	s := NewPairingService(env.registry, env.keyring, env.cfg, env.clock, nil, logging.Nop())

	inv, err := s.RequestPairing(context.Background(), "n", "t")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(inv.URI, "bx://pair?id="))
}
