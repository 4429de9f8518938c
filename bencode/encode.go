package bencode

import (
	"strconv"
)

// Encode renders v in canonical bencode form: integers carry no
// redundant sign or leading zeros (Decode would have rejected those
// already if v came from Decode, but Encode does not trust that and
// re-derives the canonical digits from Int), and dict keys are emitted
// in sorted byte order even if the Value's Dict map iteration order
// would disagree.
func Encode(v Value) []byte {
	var buf []byte
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindInt:
		buf = append(buf, 'i')
		buf = append(buf, strconv.FormatInt(v.Int, 10)...)
		buf = append(buf, 'e')
		return buf
	case KindBytes:
		buf = append(buf, strconv.Itoa(len(v.Bytes))...)
		buf = append(buf, ':')
		buf = append(buf, v.Bytes...)
		return buf
	case KindList:
		buf = append(buf, 'l')
		for _, item := range v.List {
			buf = appendValue(buf, item)
		}
		buf = append(buf, 'e')
		return buf
	case KindDict:
		buf = append(buf, 'd')
		for _, key := range sortedKeys(v.Dict) {
			buf = appendValue(buf, Value{Kind: KindBytes, Bytes: []byte(key)})
			buf = appendValue(buf, v.Dict[key])
		}
		buf = append(buf, 'e')
		return buf
	default:
		return buf
	}
}

// Bytes is a convenience constructor for a byte-string Value.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// String is a convenience constructor for a byte-string Value from a Go
// string.
func String(s string) Value { return Value{Kind: KindBytes, Bytes: []byte(s)} }

// Int is a convenience constructor for an integer Value.
func Int(n int64) Value { return Value{Kind: KindInt, Int: n} }

// List is a convenience constructor for a list Value.
func List(items ...Value) Value { return Value{Kind: KindList, List: items} }

// Dict is a convenience constructor for a dict Value.
func Dict(m map[string]Value) Value { return Value{Kind: KindDict, Dict: m} }
