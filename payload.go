package flightcache

import "encoding/json"

// Payload is a value as stored by a Backend.
type Payload []byte

// Decoded is the result of the two-step decode of a Payload: structured
// (JSON) when the bytes parse, raw bytes otherwise. Raw is always set.
type Decoded struct {
	Doc        any
	Raw        []byte
	Structured bool
}

// Decode tries JSON first and falls back to the raw bytes.
func (p Payload) Decode() Decoded {
	var doc any
	if len(p) > 0 && json.Valid(p) {
		if err := json.Unmarshal(p, &doc); err == nil {
			return Decoded{Doc: doc, Raw: p, Structured: true}
		}
	}
	return Decoded{Raw: p}
}

func (p Payload) Bytes() []byte  { return p }
func (p Payload) String() string { return string(p) }
