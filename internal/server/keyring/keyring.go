// Package keyring keeps the pairing shared secret of every paired device in
// memory and derives per-transfer keys from it.
package keyring

import (
	"fmt"
	"sync"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
)

// Keyring maps device ids to ECDH shared secrets. Secrets are never written
// to disk; a restarted server requires devices to pair again.
type Keyring struct {
	mu      sync.RWMutex
	secrets map[string][cryptox.KeySize]byte
}

func New() *Keyring {
	return &Keyring{secrets: make(map[string][cryptox.KeySize]byte)}
}

// Put stores secret for deviceID, replacing any previous one.
func (k *Keyring) Put(deviceID string, secret [cryptox.KeySize]byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.secrets[deviceID] = secret
}

func (k *Keyring) Has(deviceID string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.secrets[deviceID]
	return ok
}

// Forget drops the secret for deviceID.
func (k *Keyring) Forget(deviceID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.secrets, deviceID)
}

// SessionKey derives the key scoped by info from deviceID's secret.
func (k *Keyring) SessionKey(deviceID, info string) ([cryptox.KeySize]byte, error) {
	k.mu.RLock()
	secret, ok := k.secrets[deviceID]
	k.mu.RUnlock()
	if !ok {
		return [cryptox.KeySize]byte{}, fmt.Errorf("%w: %s", common.ErrNoSession, deviceID)
	}
	key := cryptox.DeriveSessionKey(secret[:], info)
	common.WipeByteArray(secret[:])
	return key, nil
}

// TransferKey derives the chunk authentication key for transferID.
func (k *Keyring) TransferKey(deviceID, transferID string) ([cryptox.KeySize]byte, error) {
	return k.SessionKey(deviceID, cryptox.TransferInfo(transferID))
}

func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.secrets)
}
