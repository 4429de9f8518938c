package peerconn

// BlockSize is the fixed sub-chunk size (spec.md's B) that a piece is
// partitioned into for wire request/response, per spec.md §3/§4.6.
const BlockSize = 16384

// BlockRequest is one (offset, length) pair within a piece, generated
// by a per-piece block iterator (spec.md §3).
type BlockRequest struct {
	Offset int
	Length int
}

// BlockRequests partitions [0, pieceLength) into BlockSize chunks,
// except the final one which may be shorter. It is the pure function
// backing both the session's request loop and the property tests in
// §8: for all pieceLength, the returned lengths sum to pieceLength,
// offsets are strictly increasing starting at 0, and no length exceeds
// BlockSize.
func BlockRequests(pieceLength int) []BlockRequest {
	if pieceLength <= 0 {
		return nil
	}
	n := (pieceLength + BlockSize - 1) / BlockSize
	reqs := make([]BlockRequest, 0, n)
	for offset := 0; offset < pieceLength; offset += BlockSize {
		length := BlockSize
		if remaining := pieceLength - offset; remaining < length {
			length = remaining
		}
		reqs = append(reqs, BlockRequest{Offset: offset, Length: length})
	}
	return reqs
}
