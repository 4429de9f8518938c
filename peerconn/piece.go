package peerconn

import (
	"bytes"
	"crypto/sha1"
	"time"

	"torrentcore/errs"
	"torrentcore/wire"
)

// Job describes one piece to download: which piece, its expected
// SHA-1 digest, and its length (the final piece's length differs from
// every other piece's). It mirrors spec.md §3's PieceJob.
type Job struct {
	Index        int
	ExpectedHash [20]byte
	Length       int
}

// inflight tracks one outstanding block request so a piece response
// can be matched by (index, begin) when requests are pipelined, per
// spec.md §4.6: "responses MUST be matched to outstanding requests by
// (index, begin); unmatched responses are a protocol error."
type inflight struct {
	begin  int
	length int
}

// DownloadPiece runs the block-request/response loop for one piece
// over this session: it issues up to cfg.PipelineDepth requests at a
// time, matches piece responses to outstanding requests, concatenates
// blocks in ascending offset order, and verifies the result's SHA-1
// against job.ExpectedHash before returning it.
//
// Per spec.md §4.4 this session never sends `have` after completing a
// piece: the core only sends interested, request, and optionally
// cancel, never have — it has nothing to announce since it does not
// seed.
func (s *Session) DownloadPiece(job Job) ([]byte, error) {
	buf := make([]byte, job.Length)
	requests := BlockRequests(job.Length)
	outstanding := make(map[int]inflight) // keyed by begin offset
	next := 0
	received := 0

	s.Conn.SetDeadline(time.Now().Add(100 * time.Second))
	defer s.Conn.SetDeadline(time.Time{})

	for received < job.Length {
		for !s.Choked && len(outstanding) < s.cfg.PipelineDepth && next < len(requests) {
			req := requests[next]
			if err := wire.WriteMessage(s.Conn, wire.FormatRequest(job.Index, req.Offset, req.Length)); err != nil {
				return nil, err
			}
			outstanding[req.Offset] = inflight{begin: req.Offset, length: req.Length}
			next++
		}

		s.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		msg, err := wire.ReadMessage(s.Conn)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue // keep-alive
		}

		switch msg.ID {
		case wire.Unchoke:
			s.Choked = false
		case wire.Choke:
			s.Choked = true
		case wire.Have:
			index, err := wire.ParseHave(msg)
			if err != nil {
				return nil, err
			}
			s.Bitfield.Set(index)
		case wire.Piece:
			index, begin, block, err := wire.ParsePiece(msg)
			if err != nil {
				return nil, err
			}
			if index != job.Index {
				return nil, errs.Newf(errs.ProtocolSequence, "piece response for index %d while downloading index %d", index, job.Index)
			}
			want, ok := outstanding[begin]
			if !ok {
				return nil, errs.Newf(errs.ProtocolSequence, "unmatched piece response at begin %d", begin)
			}
			if len(block) != want.length {
				return nil, errs.Newf(errs.Frame, "block at begin %d: expected length %d, got %d", begin, want.length, len(block))
			}
			copy(buf[begin:begin+len(block)], block)
			delete(outstanding, begin)
			received += len(block)
		default:
			return nil, errs.Newf(errs.ProtocolSequence, "unexpected message id %d during piece download", msg.ID)
		}
	}

	sum := sha1.Sum(buf)
	if !bytes.Equal(sum[:], job.ExpectedHash[:]) {
		return nil, errs.Newf(errs.HashMismatch, "piece %d: hash mismatch", job.Index)
	}
	return buf, nil
}
