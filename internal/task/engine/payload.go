package engine

import (
	"maps"

	"github.com/spf13/cast"
)

// Payload is the flat parameter map handed to a Handler. Values come from
// decoded JSON, so accessors coerce loosely ("20" and 20.0 both read as 20).
type Payload map[string]any

// String returns the value at key, or def when the key is missing, null, or
// not representable as a string.
func (p Payload) String(key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

func (p Payload) Int(key string, def int) int {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

func (p Payload) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Clone returns a shallow copy; nil becomes an empty payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	return maps.Clone(p)
}
