package keyring

import (
	"testing"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring_TransferKey(t *testing.T) {
	k := New()
	var secret [cryptox.KeySize]byte
	copy(secret[:], "0123456789abcdef0123456789abcdef")
	k.Put("d1", secret)

	key, err := k.TransferKey("d1", "t1")
	require.NoError(t, err)
	assert.Equal(t, cryptox.DeriveSessionKey(secret[:], "transfer:t1"), key)

	other, err := k.TransferKey("d1", "t2")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	pairingKey, err := k.SessionKey("d1", cryptox.InfoPairing)
	require.NoError(t, err)
	assert.NotEqual(t, key, pairingKey)
}

func TestKeyring_UnknownDevice(t *testing.T) {
	k := New()
	_, err := k.TransferKey("ghost", "t1")
	assert.ErrorIs(t, err, common.ErrNoSession)
}

func TestKeyring_PutForget(t *testing.T) {
	k := New()
	k.Put("a", [cryptox.KeySize]byte{1})
	k.Put("a", [cryptox.KeySize]byte{2})
	k.Put("b", [cryptox.KeySize]byte{3})
	assert.Equal(t, 2, k.Len())
	assert.True(t, k.Has("a"))

	k.Forget("a")
	assert.False(t, k.Has("a"))
	assert.Equal(t, 1, k.Len())
	k.Forget("a")
}
