// Package models defines server-side data models persisted by the device
// registry.
package models

import "time"

// Device is a peer that completed pairing.
type Device struct {
	// ID is allocated when the pairing invitation is issued.
	ID         string
	Name       string
	DeviceType string
	// PublicKey is the peer's X25519 public key presented at pairing.
	// It is never overwritten once stored.
	PublicKey []byte
	PairedAt  time.Time
	// LastSeen is refreshed on every authenticated contact.
	LastSeen *time.Time
}
