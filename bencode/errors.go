package bencode

import "torrentcore/errs"

// These helpers wrap errs.Bencode with the specific sub-reasons spec.md
// §4.1 enumerates, so callers can errors.As down to errs.Error and
// inspect Kind, while the message still names what specifically went
// wrong.

func errInvalidLeadingByte(b byte, pos int) error {
	return errs.Newf(errs.Bencode, "invalid leading byte %q at offset %d", b, pos)
}

func errTruncatedInput(pos int) error {
	return errs.Newf(errs.Bencode, "truncated input at offset %d", pos)
}

func errBadInteger(s string, pos int) error {
	return errs.Newf(errs.Bencode, "bad integer %q at offset %d", s, pos)
}

func errNegativeZero(pos int) error {
	return errs.Newf(errs.Bencode, "negative zero is not a valid integer at offset %d", pos)
}

func errLengthOverflow(pos int) error {
	return errs.Newf(errs.Bencode, "byte-string length overflows remaining input at offset %d", pos)
}

func errBadDictKey(pos int) error {
	return errs.Newf(errs.Bencode, "dict key must be a byte-string at offset %d", pos)
}

func errDuplicateKey(key string, pos int) error {
	return errs.Newf(errs.Bencode, "duplicate dict key %q at offset %d", key, pos)
}
