// Package qr renders pairing URIs as QR code images. It is a pure encoder
// with no knowledge of the URI contents.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered image edge in pixels.
const DefaultSize = 300

const dataURIPrefix = "data:image/png;base64,"

// PNG encodes content as a PNG QR code of size×size pixels.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return png, nil
}

// DataURI encodes content as a PNG QR code wrapped in a data URI suitable
// for an <img> tag.
func DataURI(content string) (string, error) {
	png, err := PNG(content, DefaultSize)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// Terminal renders content as a QR code drawn with half-block characters
// for display in a terminal. inverse swaps dark and light modules for light
// on dark themes.
func Terminal(content string, inverse bool) (string, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("qr encode: %w", err)
	}
	return code.ToSmallString(inverse), nil
}
