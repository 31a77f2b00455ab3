package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/bridgex/internal/client/client"
	"github.com/dmitrijs2005/bridgex/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/pairing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPairing(t *testing.T) (*fakeServer, PairingService, metadata.Repository) {
	t.Helper()
	srv := newFakeServer(t)
	meta := metadata.NewSQLiteRepository(setupDB(t))
	return srv, NewPairingService(srv, meta, logging.Nop()), meta
}

func pair(t *testing.T, srv *fakeServer, svc PairingService) {
	t.Helper()
	ctx := context.Background()
	inv, err := svc.Invite(ctx, "laptop")
	require.NoError(t, err)
	_, err = svc.Pair(ctx, inv.URI)
	require.NoError(t, err)
}

func TestPair_StoresMatchingSecret(t *testing.T) {
	srv, svc, _ := newPairing(t)
	ctx := context.Background()

	inv, err := svc.Invite(ctx, "laptop")
	require.NoError(t, err)

	creds, err := svc.Pair(ctx, inv.URI)
	require.NoError(t, err)

	assert.Equal(t, srv.deviceID, creds.DeviceID)
	assert.Equal(t, srv.secret, creds.SharedSecret)
	assert.Equal(t, srv.kp.PublicKey, creds.ServerPublicKey)
	assert.Equal(t, "token-"+srv.deviceID, srv.token)

	stored, err := svc.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds.DeviceID, stored.DeviceID)
	assert.Equal(t, creds.AccessToken, stored.AccessToken)
	assert.Equal(t, srv.secret, stored.SharedSecret)
}

func TestPair_RejectsBadConfirmation(t *testing.T) {
	srv, svc, _ := newPairing(t)
	srv.badConfirmation = true
	ctx := context.Background()

	inv, err := svc.Invite(ctx, "laptop")
	require.NoError(t, err)

	_, err = svc.Pair(ctx, inv.URI)
	assert.ErrorIs(t, err, ErrKeyConfirmation)

	_, err = svc.Credentials(ctx)
	assert.ErrorIs(t, err, client.ErrNotPaired)
	assert.Empty(t, srv.token)
}

func TestPair_RejectsSubstitutedServerKey(t *testing.T) {
	_, svc, _ := newPairing(t)
	ctx := context.Background()

	inv, err := svc.Invite(ctx, "laptop")
	require.NoError(t, err)

	other, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	forged := pairing.FormatURI(pairing.DefaultScheme, inv.DeviceID, other.PublicKey[:])

	_, err = svc.Pair(ctx, forged)
	assert.ErrorIs(t, err, common.ErrKeyMismatch)
}

func TestPair_InvalidURI(t *testing.T) {
	_, svc, _ := newPairing(t)

	_, err := svc.Pair(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = svc.Pair(context.Background(), "bridgex://pair?id=x&key=AAAA")
	assert.ErrorIs(t, err, common.ErrInvalidKey)
}

func TestCredentials_NotPairedAndCorrupt(t *testing.T) {
	_, svc, meta := newPairing(t)
	ctx := context.Background()

	_, err := svc.Credentials(ctx)
	assert.ErrorIs(t, err, client.ErrNotPaired)
	assert.ErrorIs(t, svc.Restore(ctx), client.ErrNotPaired)

	require.NoError(t, meta.SetMany(ctx, map[string][]byte{
		keyDeviceID:        []byte("d"),
		keyDeviceName:      []byte("n"),
		keyAccessToken:     []byte("t"),
		keyServerPublicKey: {1, 2, 3},
		keySharedSecret:    {4, 5, 6},
	}))
	_, err = svc.Credentials(ctx)
	assert.ErrorIs(t, err, client.ErrNotPaired)
}

func TestRestore_SetsToken(t *testing.T) {
	srv, svc, _ := newPairing(t)
	pair(t, srv, svc)

	srv.SetAccessToken("")
	require.NoError(t, svc.Restore(context.Background()))
	assert.Equal(t, "token-"+srv.deviceID, srv.token)
}

func TestUnpair(t *testing.T) {
	tests := []struct {
		name      string
		deleteErr error
		wantErr   bool
	}{
		{name: "server deletes device"},
		{name: "server forgot device", deleteErr: client.ErrNotFound},
		{name: "token rejected", deleteErr: client.ErrUnauthorized},
		{name: "server down keeps credentials", deleteErr: client.ErrUnavailable, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, svc, _ := newPairing(t)
			pair(t, srv, svc)
			srv.deleteErr = tt.deleteErr
			ctx := context.Background()

			err := svc.Unpair(ctx)
			_, credErr := svc.Credentials(ctx)
			if tt.wantErr {
				assert.True(t, errors.Is(err, tt.deleteErr))
				assert.NoError(t, credErr)
				return
			}
			require.NoError(t, err)
			assert.ErrorIs(t, credErr, client.ErrNotPaired)
			assert.Empty(t, srv.token)
		})
	}
}

func TestUnpair_NotPaired(t *testing.T) {
	_, svc, _ := newPairing(t)
	assert.ErrorIs(t, svc.Unpair(context.Background()), client.ErrNotPaired)
}

func TestDevicesPingClose(t *testing.T) {
	srv, svc, _ := newPairing(t)
	pair(t, srv, svc)
	ctx := context.Background()

	devices, err := svc.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, srv.deviceID, devices[0].ID)

	assert.NoError(t, svc.Ping(ctx))
	srv.pingErr = client.ErrUnavailable
	assert.ErrorIs(t, svc.Ping(ctx), client.ErrUnavailable)
	assert.NoError(t, svc.Close())
}
