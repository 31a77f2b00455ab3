package models

import (
	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
)

// Credentials is what a completed pairing leaves on the sender.
type Credentials struct {
	DeviceID        string
	DeviceName      string
	AccessToken     string
	ServerPublicKey [cryptox.KeySize]byte
	SharedSecret    [cryptox.KeySize]byte
}

// TransferKey derives the chunk authentication key for transferID.
func (c *Credentials) TransferKey(transferID string) [cryptox.KeySize]byte {
	return cryptox.DeriveSessionKey(c.SharedSecret[:], cryptox.TransferInfo(transferID))
}

// Wipe zeroes the shared secret.
func (c *Credentials) Wipe() {
	common.WipeByteArray(c.SharedSecret[:])
}
