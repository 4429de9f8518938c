// Package torrent implements the immutable torrent model: parsing the
// top-level metadata dictionary, deriving piece count and per-piece
// length, and computing the info-hash (spec.md §4.2). It is adapted
// from the bencode-struct half of the teacher's torrent.go, rebuilt on
// top of the bencode package's tagged Value tree instead of struct-tag
// reflection so the info-hash can be computed from the info
// dictionary's raw source bytes.
package torrent

import (
	"crypto/sha1"
	"io"

	"torrentcore/bencode"
	"torrentcore/errs"
)

// Hash is a 20-byte SHA-1 digest: either a torrent's info-hash or one
// piece's expected hash. Comparison is bytewise via ==.
type Hash [20]byte

// Torrent is the immutable, already-validated metadata this core needs
// to drive a download: announce URL, total length, piece length, the
// ordered piece hashes, and the info-hash.
type Torrent struct {
	Announce    string
	Name        string
	Length      int64
	PieceLength int64
	PieceHashes []Hash
	InfoHash    Hash
}

// Open parses a bencode-encoded torrent file from r into a Torrent,
// validating every invariant spec.md §3/§4.2 requires: positive
// lengths, a pieces byte-string whose length is a multiple of 20, and
// a piece count consistent with ceil(length/pieceLength).
func Open(r io.Reader) (*Torrent, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "reading torrent file")
	}
	return Parse(data)
}

// Parse parses a bencode-encoded torrent file already read into
// memory. Open is a thin io.Reader wrapper around this.
func Parse(data []byte) (*Torrent, error) {
	root, _, err := bencode.Decode(data)
	if err != nil {
		return nil, err
	}
	if root.Kind != bencode.KindDict {
		return nil, errs.New(errs.TorrentInvariant, "top-level value is not a dictionary")
	}

	announceBytes, ok := root.GetBytes("announce")
	if !ok {
		return nil, errs.New(errs.TorrentInvariant, "missing announce key")
	}

	infoVal, ok := root.Get("info")
	if !ok || infoVal.Kind != bencode.KindDict {
		return nil, errs.New(errs.TorrentInvariant, "missing or malformed info dictionary")
	}

	length, ok := infoVal.GetInt("length")
	if !ok || length <= 0 {
		return nil, errs.New(errs.TorrentInvariant, "info.length must be a positive integer")
	}
	pieceLength, ok := infoVal.GetInt("piece length")
	if !ok || pieceLength <= 0 {
		return nil, errs.New(errs.TorrentInvariant, "info.piece length must be a positive integer")
	}
	piecesBytes, ok := infoVal.GetBytes("pieces")
	if !ok {
		return nil, errs.New(errs.TorrentInvariant, "info.pieces must be a byte-string")
	}
	if len(piecesBytes)%20 != 0 {
		return nil, errs.Newf(errs.TorrentInvariant, "info.pieces length %d is not a multiple of 20", len(piecesBytes))
	}
	nameBytes, _ := infoVal.GetBytes("name")

	hashes := make([]Hash, len(piecesBytes)/20)
	for i := range hashes {
		copy(hashes[i][:], piecesBytes[i*20:(i+1)*20])
	}

	expectedCount := PieceCount(length, pieceLength)
	if int64(len(hashes)) != expectedCount {
		return nil, errs.Newf(errs.TorrentInvariant,
			"piece count mismatch: pieces field has %d hashes, expected ceil(%d/%d)=%d",
			len(hashes), length, pieceLength, expectedCount)
	}

	// The info-hash is SHA-1 of info's raw source bytes, retained
	// verbatim during decode (spec.md §4.1 option (a)), not a
	// re-encode of the decoded Value: a source file whose info dict
	// happened to have non-canonical key order would otherwise hash
	// differently than the producer intended.
	if len(infoVal.Raw) == 0 {
		return nil, errs.New(errs.TorrentInvariant, "internal error: info value missing raw span")
	}
	infoHash := Hash(sha1.Sum(infoVal.Raw))

	return &Torrent{
		Announce:    string(announceBytes),
		Name:        string(nameBytes),
		Length:      length,
		PieceLength: pieceLength,
		PieceHashes: hashes,
		InfoHash:    infoHash,
	}, nil
}

// PieceCount returns ceil(length/pieceLength), the number of pieces a
// torrent of the given total length and piece length must have.
func PieceCount(length, pieceLength int64) int64 {
	return (length + pieceLength - 1) / pieceLength
}

// LastPieceLength returns the length of the final piece, which is the
// only piece whose length can differ from pieceLength:
// ((length-1) mod pieceLength) + 1, per spec.md §4.2.
func LastPieceLength(length, pieceLength int64) int64 {
	return (length-1)%pieceLength + 1
}

// PieceLengthAt returns the length of piece index within t: PieceLength
// for every piece except the last, whose length is LastPieceLength.
func (t *Torrent) PieceLengthAt(index int) int64 {
	if index == len(t.PieceHashes)-1 {
		return LastPieceLength(t.Length, t.PieceLength)
	}
	return t.PieceLength
}

// PieceCount returns the number of pieces in t.
func (t *Torrent) PieceCount() int {
	return len(t.PieceHashes)
}
