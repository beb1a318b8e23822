// Package datauri parses the base64 image data URIs submitted by the capture client.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrMalformed       = errors.New("malformed data URI")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// Subtypes accepted after "image/". jpg is tolerated because some capture
// clients emit it.
var imageSubtypes = map[string]bool{
	"jpeg": true,
	"jpg":  true,
	"png":  true,
	"gif":  true,
	"webp": true,
	"bmp":  true,
}

type DataURI struct {
	MIMEType string // declared type, e.g. image/png
	Data     []byte
}

// Parse decodes "data:<mime>;base64,<payload>". The declared type must be a
// supported image subtype and the payload must sniff as an image.
func Parse(s string) (*DataURI, error) {
	mimeType, payload, err := ParseHeader(s)
	if err != nil {
		return nil, err
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, fmt.Errorf("%w: payload is %s", ErrUnsupportedType, detected.String())
	}

	return &DataURI{MIMEType: mimeType, Data: data}, nil
}

// ParseHeader checks the scheme, the base64 marker and the declared image
// type without decoding the payload.
func ParseHeader(s string) (mimeType, payload string, err error) {
	header, payload, ok := strings.Cut(strings.TrimSpace(s), ";base64,")
	if !ok {
		return "", "", fmt.Errorf("%w: missing base64 marker", ErrMalformed)
	}
	mimeType, ok = strings.CutPrefix(header, "data:")
	if !ok {
		return "", "", fmt.Errorf("%w: missing data: scheme", ErrMalformed)
	}
	mimeType = strings.ToLower(mimeType)

	if !IsImageType(mimeType) {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, mimeType)
	}
	return mimeType, payload, nil
}

// IsImageType reports whether mimeType is a supported image/<subtype>.
func IsImageType(mimeType string) bool {
	subtype, ok := strings.CutPrefix(strings.ToLower(mimeType), "image/")
	return ok && imageSubtypes[subtype]
}

// Ext returns the declared subtype, used as the stored file extension.
func (d *DataURI) Ext() string {
	_, sub, _ := strings.Cut(d.MIMEType, "/")
	return sub
}

// String re-encodes the data URI.
func (d *DataURI) String() string {
	return "data:" + d.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	if data, err := base64.RawStdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	if data, err := base64.URLEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(payload)
}
