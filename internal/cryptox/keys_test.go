package cryptox

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func TestGenerateKeyPair(t *testing.T) {
	a := mustKeyPair(t)
	b := mustKeyPair(t)

	assert.NotEqual(t, a.PublicKey, a.PrivateKey)
	assert.NotEqual(t, a.PublicKey, b.PublicKey)
	assert.NotEqual(t, [KeySize]byte{}, a.PublicKey)
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateKeyPair_SourceExhausted(t *testing.T) {
	restore := setRandomSource(emptyReader{})
	defer restore()

	_, err := GenerateKeyPair()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy exhausted")
}

func TestDeriveSharedSecret_Symmetric(t *testing.T) {
	for i := 0; i < 16; i++ {
		alice := mustKeyPair(t)
		bob := mustKeyPair(t)

		ab, err := DeriveSharedSecret(alice.PrivateKey[:], bob.PublicKey[:])
		require.NoError(t, err)
		ba, err := DeriveSharedSecret(bob.PrivateKey[:], alice.PublicKey[:])
		require.NoError(t, err)

		assert.Equal(t, ab, ba)
	}
}

func TestDeriveSharedSecret_RejectsBadPeerKeys(t *testing.T) {
	kp := mustKeyPair(t)

	tests := []struct {
		name string
		peer []byte
	}{
		{name: "short", peer: []byte{1, 2, 3}},
		{name: "long", peer: make([]byte, 33)},
		{name: "all zero (low order)", peer: make([]byte, 32)},
		{name: "order one point", peer: append([]byte{1}, make([]byte, 31)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				_, err := DeriveSharedSecret(kp.PrivateKey[:], tt.peer)
				assert.ErrorIs(t, err, common.ErrInvalidKey)
			})
		})
	}
}

func TestDeriveSessionKey_DeterministicAndSeparated(t *testing.T) {
	secret := bytes.Repeat([]byte{7}, KeySize)

	k1 := DeriveSessionKey(secret, InfoPairing)
	k2 := DeriveSessionKey(secret, InfoPairing)
	assert.Equal(t, k1, k2)

	k3 := DeriveSessionKey(secret, TransferInfo("t-1"))
	k4 := DeriveSessionKey(secret, TransferInfo("t-2"))
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k3, k4)
}

func TestDeriveSessionKey_ZeroSecret(t *testing.T) {
	k := DeriveSessionKey(make([]byte, KeySize), "bridgex-session")
	assert.Len(t, k, KeySize)
	assert.NotEqual(t, [KeySize]byte{}, k)
}

func TestTransferInfo(t *testing.T) {
	assert.Equal(t, "transfer:abc", TransferInfo("abc"))
}

func TestKeyPair_Wipe(t *testing.T) {
	kp := mustKeyPair(t)
	kp.Wipe()
	assert.Equal(t, [KeySize]byte{}, kp.PrivateKey)
}
