package bencode

// ToJSON converts a decoded Value into a plain Go value built from the
// encoding/json-friendly primitives (string, int64, []any, map[string]any)
// so the CLI's `decode` subcommand can hand it straight to
// json.Marshal. Byte-strings become Go strings; bencode permits
// arbitrary bytes here, but the CLI contract (spec.md §6) only ever
// exercises printable torrent metadata, so lossy UTF-8 conversion is an
// acceptable simplification at this boundary, never inside the core.
func ToJSON(v Value) any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindBytes:
		return string(v.Bytes)
	case KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = ToJSON(item)
		}
		return out
	case KindDict:
		out := make(map[string]any, len(v.Dict))
		for k, item := range v.Dict {
			out[k] = ToJSON(item)
		}
		return out
	default:
		return nil
	}
}
