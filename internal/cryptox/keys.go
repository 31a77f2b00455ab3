// Package cryptox implements the key exchange used by device pairing:
// X25519 key pairs, ECDH shared secrets and HKDF-SHA256 session keys, plus
// the HMAC tags that authenticate transfer chunks.
//
// Example:
//
//	kp, err := cryptox.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	secret, err := cryptox.DeriveSharedSecret(kp.PrivateKey[:], peerPublic)
//	key := cryptox.DeriveSessionKey(secret[:], cryptox.InfoPairing)
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of X25519 keys, shared secrets and session keys.
const KeySize = 32

// InfoPairing scopes the session key derived when a pairing completes.
const InfoPairing = "pairing"

// TransferInfo returns the HKDF info string for a transfer's session key.
func TransferInfo(transferID string) string {
	return "transfer:" + transferID
}

var (
	randMu        sync.RWMutex
	randomnessSrc io.Reader = rand.Reader
)

// setRandomSource swaps the entropy source. Tests use it to simulate an
// exhausted source; it returns a func restoring the previous one.
func setRandomSource(r io.Reader) func() {
	randMu.Lock()
	prev := randomnessSrc
	randomnessSrc = r
	randMu.Unlock()
	return func() {
		randMu.Lock()
		randomnessSrc = prev
		randMu.Unlock()
	}
}

// KeyPair is an X25519 key pair. The private key must never leave the
// process that generated it.
type KeyPair struct {
	PublicKey  [KeySize]byte
	PrivateKey [KeySize]byte
}

// GenerateKeyPair creates a fresh X25519 key pair. An error means the random
// source is exhausted; callers should treat it as fatal.
func GenerateKeyPair() (*KeyPair, error) {
	randMu.RLock()
	src := randomnessSrc
	randMu.RUnlock()

	kp := &KeyPair{}
	if _, err := io.ReadFull(src, kp.PrivateKey[:]); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}

	pub, err := curve25519.X25519(kp.PrivateKey[:], curve25519.Basepoint)
	if err != nil {
		kp.Wipe()
		return nil, err
	}
	copy(kp.PublicKey[:], pub)
	return kp, nil
}

// Wipe zeroes the private key.
func (kp *KeyPair) Wipe() {
	common.WipeByteArray(kp.PrivateKey[:])
}

// DeriveSharedSecret computes X25519(privateKey, peerPublicKey).
//
// Both keys must be 32 bytes. Low-order peer points, which would produce an
// all-zero secret, are rejected with common.ErrInvalidKey instead of being
// trusted.
func DeriveSharedSecret(privateKey, peerPublicKey []byte) ([KeySize]byte, error) {
	var out [KeySize]byte
	if len(privateKey) != KeySize || len(peerPublicKey) != KeySize {
		return out, fmt.Errorf("%w: want %d bytes", common.ErrInvalidKey, KeySize)
	}

	shared, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return out, fmt.Errorf("%w: %v", common.ErrInvalidKey, err)
	}
	copy(out[:], shared)
	common.WipeByteArray(shared)
	return out, nil
}

// DeriveSessionKey expands sharedSecret with HKDF-SHA256 (no salt) using info
// as the context string. Equal inputs give equal keys; distinct info values
// give independent keys.
func DeriveSessionKey(sharedSecret []byte, info string) [KeySize]byte {
	var key [KeySize]byte
	r := hkdf.New(sha256.New, sharedSecret, nil, []byte(info))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		// HKDF-SHA256 can emit up to 255*32 bytes.
		panic(err)
	}
	return key
}
