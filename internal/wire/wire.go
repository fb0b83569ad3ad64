// Package wire defines the request and response payloads exchanged with a
// tokend server, and the codecs that carry them. Bodies are JSON by default
// or CBOR when the content type says so; token ids may also travel as packed
// little-endian uint32s.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"

	"github.com/fxamacker/cbor/v2"
)

// Content types understood by Marshal and Unmarshal.
const (
	ContentTypeJSON        = "application/json"
	ContentTypeCBOR        = "application/cbor"
	ContentTypeOctetStream = "application/octet-stream"
)

// ErrUnsupportedContentType is returned for bodies that are neither JSON nor CBOR.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// MediaType strips parameters from a Content-Type or single Accept value.
// An empty or malformed header yields "".
func MediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return mt
}

// Unmarshal decodes body into v according to contentType. An empty content
// type is treated as JSON.
func Unmarshal(contentType string, body []byte, v any) error {
	switch mt := MediaType(contentType); mt {
	case "", ContentTypeJSON:
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
	case ContentTypeCBOR:
		if err := cbor.Unmarshal(body, v); err != nil {
			return fmt.Errorf("decode cbor: %w", err)
		}
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedContentType, mt)
	}
	return nil
}

// Marshal encodes v as contentType. An empty content type means JSON.
func Marshal(contentType string, v any) ([]byte, error) {
	switch mt := MediaType(contentType); mt {
	case "", ContentTypeJSON:
		return json.Marshal(v)
	case ContentTypeCBOR:
		return cbor.Marshal(v)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedContentType, mt)
	}
}
