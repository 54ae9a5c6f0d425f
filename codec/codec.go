// Package codec turns computed values into the bytes a flightcache backend
// stores, and back.
//
// A Flight uses JSON unless told otherwise. JSON payloads are the only ones
// flightcache.Payload.Decode recognizes as structured; values encoded with
// the binary codecs come back to plain Get callers as raw bytes.
package codec

import "errors"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ErrTooLarge is returned by Limit when a stored payload exceeds its bound.
var ErrTooLarge = errors.New("codec: payload too large")
