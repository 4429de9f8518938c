package bencode

import (
	"bytes"
	"testing"
)

func TestDecodeString(t *testing.T) {
	v, n, err := Decode([]byte("5:hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 bytes consumed, got %d", n)
	}
	if string(v.Bytes) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", v.Bytes)
	}
}

func TestDecodeInt(t *testing.T) {
	v, _, err := Decode([]byte("i52e"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Int != 52 {
		t.Fatalf("expected 52, got %d", v.Int)
	}
}

func TestDecodeIntRejectsNegativeZero(t *testing.T) {
	if _, _, err := Decode([]byte("i-0e")); err == nil {
		t.Fatal("expected error for i-0e")
	}
}

func TestDecodeIntRejectsLeadingZero(t *testing.T) {
	if _, _, err := Decode([]byte("i03e")); err == nil {
		t.Fatal("expected error for i03e")
	}
}

func TestDecodeIntRejectsBareMinus(t *testing.T) {
	if _, _, err := Decode([]byte("i-e")); err == nil {
		t.Fatal("expected error for i-e")
	}
}

func TestDecodeIntRejectsEmpty(t *testing.T) {
	if _, _, err := Decode([]byte("ie")); err == nil {
		t.Fatal("expected error for ie")
	}
}

func TestDecodeStringRejectsOverlongLength(t *testing.T) {
	if _, _, err := Decode([]byte("10:hi")); err == nil {
		t.Fatal("expected error for truncated string")
	}
}

func TestDecodeList(t *testing.T) {
	v, _, err := Decode([]byte("l5:helloi52ee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v.List) != 2 {
		t.Fatalf("expected 2 items, got %d", len(v.List))
	}
	if string(v.List[0].Bytes) != "hello" || v.List[1].Int != 52 {
		t.Fatalf("unexpected list contents: %+v", v.List)
	}
}

func TestDecodeDict(t *testing.T) {
	v, _, err := Decode([]byte("d3:foo3:bar5:helloi52ee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foo, ok := v.GetBytes("foo")
	if !ok || string(foo) != "bar" {
		t.Fatalf("expected foo=bar, got %q ok=%v", foo, ok)
	}
	hello, ok := v.GetInt("hello")
	if !ok || hello != 52 {
		t.Fatalf("expected hello=52, got %d ok=%v", hello, ok)
	}
}

func TestDecodeDictRejectsDuplicateKey(t *testing.T) {
	if _, _, err := Decode([]byte("d3:fooi1e3:fooi2ee")); err == nil {
		t.Fatal("expected error for duplicate dict key")
	}
}

func TestDecodeDictAcceptsUnsortedKeys(t *testing.T) {
	// Decoder tolerates unsorted input; only the encoder must be
	// canonical.
	v, _, err := Decode([]byte("d1:zi1e1:ai2ee"))
	if err != nil {
		t.Fatalf("unexpected error for unsorted dict: %v", err)
	}
	if len(v.Dict) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(v.Dict))
	}
}

func TestEncodeCanonicalDictSortsKeys(t *testing.T) {
	v := Dict(map[string]Value{
		"z": Int(1),
		"a": Int(2),
	})
	got := Encode(v)
	want := []byte("d1:ai2e1:zi1ee")
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestEncodeInt(t *testing.T) {
	if got, want := Encode(Int(42)), []byte("i42e"); !bytes.Equal(got, want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got, want := Encode(Int(0)), []byte("i0e"); !bytes.Equal(got, want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got, want := Encode(Int(-5)), []byte("i-5e"); !bytes.Equal(got, want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestRoundTripCanonical(t *testing.T) {
	cases := [][]byte{
		[]byte("5:hello"),
		[]byte("i52e"),
		[]byte("i-52e"),
		[]byte("i0e"),
		[]byte("l5:helloi52ee"),
		[]byte("d3:foo3:bar5:helloi52ee"),
	}
	for _, c := range cases {
		v, n, err := Decode(c)
		if err != nil {
			t.Fatalf("decode(%s): %v", c, err)
		}
		if n != len(c) {
			t.Fatalf("decode(%s): expected to consume %d bytes, got %d", c, len(c), n)
		}
		got := Encode(v)
		if !bytes.Equal(got, c) {
			t.Fatalf("encode(decode(%s)) = %s, want %s", c, got, c)
		}
	}
}

func TestRawSpanRetention(t *testing.T) {
	data := []byte("d4:infod6:lengthi92063e4:name10:sample.txt12:piece lengthi32768e6:pieces1:aee8:announce5:http:e")
	v, _, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, ok := v.Get("info")
	if !ok {
		t.Fatal("expected info key")
	}
	if len(info.Raw) == 0 {
		t.Fatal("expected info value to retain raw bytes")
	}
	// The raw span must itself be valid, self-contained bencode.
	reparsed, n, err := Decode(info.Raw)
	if err != nil {
		t.Fatalf("raw span did not reparse: %v", err)
	}
	if n != len(info.Raw) {
		t.Fatalf("raw span has trailing bytes: consumed %d of %d", n, len(info.Raw))
	}
	length, ok := reparsed.GetInt("length")
	if !ok || length != 92063 {
		t.Fatalf("expected length 92063, got %d ok=%v", length, ok)
	}
}
