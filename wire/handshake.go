// Package wire implements the peer-wire protocol's fixed framing:
// the 68-byte handshake and the length-prefixed typed message frame
// (spec.md §4.4). It is adapted from the teacher's message package and
// the handshake half of its peer package, generalized to enforce the
// frame size cap and the exact handshake field layout the spec
// requires rather than trusting every peer to send well-formed bytes.
package wire

import (
	"bytes"
	"io"

	"torrentcore/errs"
)

const (
	// ProtocolString is the fixed ASCII identifier every BitTorrent
	// handshake carries in bytes 1..20.
	ProtocolString = "BitTorrent protocol"

	// HandshakeLen is the exact wire length of a handshake: 1 length
	// byte + 19 protocol bytes + 8 reserved bytes + 20 info-hash bytes
	// + 20 peer-id bytes.
	HandshakeLen = 1 + len(ProtocolString) + 8 + 20 + 20
)

// Handshake is the 68-byte prelude that negotiates protocol and torrent
// identity on a freshly dialed peer connection.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// New builds a Handshake for the given info-hash and local peer id.
func New(infoHash, peerID [20]byte) Handshake {
	return Handshake{InfoHash: infoHash, PeerID: peerID}
}

// Marshal serializes h into its exact 68-byte wire form.
func (h Handshake) Marshal() []byte {
	buf := make([]byte, HandshakeLen)
	cursor := 0
	buf[cursor] = byte(len(ProtocolString))
	cursor++
	cursor += copy(buf[cursor:], ProtocolString)
	cursor += 8 // reserved, already zero
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and validates a 68-byte handshake from r,
// rejecting any protocol string or length other than the one this core
// speaks. It does not check the info-hash against an expected value;
// callers that know which torrent they're handshaking for should use
// ExpectHandshake instead.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, errs.Wrap(errs.IO, err, "reading handshake")
	}
	pstrlen := int(buf[0])
	if pstrlen != len(ProtocolString) || string(buf[1:1+pstrlen]) != ProtocolString {
		return Handshake{}, errs.New(errs.HandshakeMismatch, "unexpected protocol string")
	}
	var h Handshake
	cursor := 1 + pstrlen + 8
	copy(h.InfoHash[:], buf[cursor:cursor+20])
	copy(h.PeerID[:], buf[cursor+20:cursor+40])
	return h, nil
}

// ExpectHandshake reads a handshake from r and verifies its info-hash
// matches expectedInfoHash exactly, as spec.md §4.4 requires: any byte
// difference is a HandshakeMismatch, not a partial acceptance.
func ExpectHandshake(r io.Reader, expectedInfoHash [20]byte) (Handshake, error) {
	h, err := ReadHandshake(r)
	if err != nil {
		return Handshake{}, err
	}
	if !bytes.Equal(h.InfoHash[:], expectedInfoHash[:]) {
		return Handshake{}, errs.Newf(errs.HandshakeMismatch,
			"expected info-hash %x, got %x", expectedInfoHash, h.InfoHash)
	}
	return h, nil
}
