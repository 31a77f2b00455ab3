// Package pairing holds the pairing invitation value and its URI encoding,
// shared by the server that issues invitations and the client that scans
// them.
//
// The URI format is fixed for interop with existing mobile clients:
//
//	bridgex://pair?id=<device_id>&key=<base64(public_key)>
//
// The key uses standard base64 with padding and is not URL-escaped.
package pairing

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
)

// DefaultScheme is the URI scheme used when none is configured.
const DefaultScheme = "bridgex"

// FormatURI renders the pairing URI for deviceID and publicKey.
func FormatURI(scheme, deviceID string, publicKey []byte) string {
	return fmt.Sprintf("%s://pair?id=%s&key=%s", scheme, deviceID, base64.StdEncoding.EncodeToString(publicKey))
}

// ParsedURI is the content of a scanned pairing URI.
type ParsedURI struct {
	Scheme    string
	DeviceID  string
	PublicKey [cryptox.KeySize]byte
}

// ParseURI validates and decodes a pairing URI produced by FormatURI.
//
// The query is split by hand rather than with url.ParseQuery because the
// base64 alphabet contains '+', which form decoding would turn into a space.
func ParseURI(raw string) (*ParsedURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	if u.Scheme == "" || u.Host != "pair" {
		return nil, fmt.Errorf("%w: not a pairing uri", common.ErrInvalidRequest)
	}

	var id, key string
	for _, part := range strings.Split(u.RawQuery, "&") {
		name, value, _ := strings.Cut(part, "=")
		switch name {
		case "id":
			id = value
		case "key":
			key = value
		}
	}
	if id == "" || key == "" {
		return nil, fmt.Errorf("%w: missing id or key", common.ErrInvalidRequest)
	}

	raw32, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %v", common.ErrInvalidKey, err)
	}
	if len(raw32) != cryptox.KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", common.ErrInvalidKey, cryptox.KeySize)
	}

	p := &ParsedURI{Scheme: u.Scheme, DeviceID: id}
	copy(p.PublicKey[:], raw32)
	return p, nil
}
