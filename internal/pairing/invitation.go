package pairing

import "time"

// InvitationTTL is the lifetime of a pairing invitation.
const InvitationTTL = 5 * time.Minute

// Invitation is a time-boxed, single-use pairing proposal. It is never
// persisted; only a completed pairing produces a durable device record.
//
// The invitation is addressed by DeviceID, which is the id carried in the
// pairing URI.
type Invitation struct {
	DeviceID           string
	DeviceName         string
	DeviceType         string
	EphemeralPublicKey []byte
	IssuedAt           time.Time
	ExpiresAt          time.Time
	URI                string
	// QRCode is the URI rendered as a PNG data URI, when available.
	QRCode             string
}

// Expired reports whether the invitation can no longer be completed at now.
// An invitation is usable strictly before ExpiresAt.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
