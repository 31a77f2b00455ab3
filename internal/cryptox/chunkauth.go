package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"
)

const (
	chunkTagDomain   = "bridgex-chunk"
	confirmTagDomain = "bridgex-pair-confirm"
)

// ChunkTagSize is the length of a chunk authentication tag.
const ChunkTagSize = sha256.Size

// ChunkTag authenticates one chunk of a transfer. The tag binds the payload
// to the transfer id, the addressing scheme and the chunk position (offset or
// index), so a chunk replayed at another position or into another transfer
// fails verification.
func ChunkTag(key []byte, transferID, scheme string, position uint64, data []byte) []byte {
	mac := hmac.New(sha256.New, key)

	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[:8], position)
	binary.BigEndian.PutUint64(hdr[8:], uint64(len(data)))

	mac.Write([]byte(chunkTagDomain))
	writeField(mac, []byte(transferID))
	writeField(mac, []byte(scheme))
	mac.Write(hdr[:])
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifyChunkTag reports whether tag is valid for the chunk, in constant time.
func VerifyChunkTag(key []byte, transferID, scheme string, position uint64, data, tag []byte) bool {
	if len(tag) != ChunkTagSize {
		return false
	}
	return hmac.Equal(ChunkTag(key, transferID, scheme, position, data), tag)
}

// writeField writes a length-prefixed field so adjacent fields cannot be
// shifted into each other.
func writeField(w io.Writer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	_, _ = w.Write(n[:])
	_, _ = w.Write(b)
}

// KeyConfirmation returns a MAC over deviceID under the pairing session key.
// Each side computes it independently; equal values prove both derived the
// same key without revealing it.
func KeyConfirmation(sessionKey []byte, deviceID string) []byte {
	mac := hmac.New(sha256.New, sessionKey)
	mac.Write([]byte(confirmTagDomain))
	writeField(mac, []byte(deviceID))
	return mac.Sum(nil)
}

// VerifyKeyConfirmation checks a peer's KeyConfirmation in constant time.
func VerifyKeyConfirmation(sessionKey []byte, deviceID string, confirmation []byte) bool {
	return hmac.Equal(KeyConfirmation(sessionKey, deviceID), confirmation)
}
