// Package bencode implements the length-prefixed bencode serialization
// format used by torrent files and tracker responses: it decodes into a
// tagged Value tree rather than reflecting onto Go structs, so callers
// that need the exact source bytes of a sub-value (the info-hash
// computation does) can retain them verbatim instead of re-encoding and
// hoping the result round-trips byte for byte.
package bencode

// Kind tags which of the four bencode value shapes a Value holds.
type Kind int

const (
	KindInt Kind = iota
	KindBytes
	KindList
	KindDict
)

// Value is a decoded bencode value. Exactly one of Int, Bytes, List or
// Dict is meaningful, selected by Kind.
//
// Raw holds the exact encoded bytes this value was parsed from,
// including its own prefix/suffix markers. It is what the torrent model
// uses to compute the info-hash without re-encoding: re-encoding a dict
// whose source had unsorted or otherwise non-canonical keys would
// silently change the hash.
type Value struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	List  []Value
	Dict  map[string]Value
	Raw   []byte
}

// Dictionary lookup helpers. These exist because torrent metadata is
// accessed by key constantly and a three-line type-switch at every call
// site would drown the code that actually uses the values.

// Get returns the dict entry for key and whether it was present. On a
// Value that is not a dict (whose Dict map is nil) it reports false.
func (v Value) Get(key string) (Value, bool) {
	val, ok := v.Dict[key]
	return val, ok
}

// GetBytes returns the byte-string entry for key, and false if the key
// is absent or not a byte-string.
func (v Value) GetBytes(key string) ([]byte, bool) {
	val, ok := v.Get(key)
	if !ok || val.Kind != KindBytes {
		return nil, false
	}
	return val.Bytes, true
}

// GetInt returns the integer entry for key, and false if the key is
// absent or not an integer.
func (v Value) GetInt(key string) (int64, bool) {
	val, ok := v.Get(key)
	if !ok || val.Kind != KindInt {
		return 0, false
	}
	return val.Int, true
}

// String renders a byte-string Value as a Go string. Bencode strings are
// arbitrary bytes, not necessarily UTF-8; callers that need the raw
// bytes should use Bytes directly.
func (v Value) String() string {
	return string(v.Bytes)
}
