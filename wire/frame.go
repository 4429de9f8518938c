package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"torrentcore/errs"
)

// ID identifies a peer-wire message type (spec.md §4.4's table).
type ID uint8

const (
	Choke         ID = 0
	Unchoke       ID = 1
	Interested    ID = 2
	NotInterested ID = 3
	Have          ID = 4
	BitfieldMsg   ID = 5
	Request       ID = 6
	Piece         ID = 7
	Cancel        ID = 8
)

// MaxPayloadLen is the largest payload this core accepts in a single
// message frame. A peer that claims a larger length is either
// malfunctioning or actively hostile; either way the frame is rejected
// rather than allocated.
const MaxPayloadLen = 1 << 20 // 1,048,576 bytes

// Message is a single length-prefixed peer-wire message: a keep-alive
// decodes to a nil *Message, handled by the caller without allocating
// an ID at all.
type Message struct {
	ID      ID
	Payload []byte
}

// Serialize renders m into its wire form: a 4-byte big-endian length,
// then (for non-keep-alive messages) the id byte and payload. A nil
// *Message serializes to a keep-alive.
func (m *Message) Serialize() []byte {
	if m == nil {
		return []byte{0, 0, 0, 0}
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads one frame from r. A keep-alive (length-prefix 0)
// returns (nil, nil); callers should loop and read again rather than
// treating it as an error or as end of stream. A read that runs into
// r's deadline is reported as errs.Stalled rather than errs.IO.
func ReadMessage(r io.Reader) (*Message, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, errs.Wrap(errs.Stalled, err, "no bytes received before read deadline")
		}
		return nil, errs.Wrap(errs.IO, err, "reading message length prefix")
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length == 0 {
		return nil, nil
	}
	if length-1 > MaxPayloadLen {
		return nil, errs.Newf(errs.Frame, "payload length %d exceeds cap %d", length-1, MaxPayloadLen)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, errs.Wrap(errs.Stalled, err, "message body not received before read deadline")
		}
		return nil, errs.Wrap(errs.IO, err, "reading message body")
	}
	return &Message{ID: ID(body[0]), Payload: body[1:]}, nil
}

// WriteMessage serializes and writes m to w.
func WriteMessage(w io.Writer, m *Message) error {
	_, err := w.Write(m.Serialize())
	if err != nil {
		return errs.Wrap(errs.IO, err, "writing message")
	}
	return nil
}

// FormatRequest builds a `request` message for the given block.
func FormatRequest(index, begin, length int) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return &Message{ID: Request, Payload: payload}
}

// FormatCancel builds a `cancel` message mirroring a prior request.
func FormatCancel(index, begin, length int) *Message {
	m := FormatRequest(index, begin, length)
	m.ID = Cancel
	return m
}

// FormatHave builds a `have` message announcing piece index.
func FormatHave(index int) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return &Message{ID: Have, Payload: payload}
}

// ParsePiece decodes a `piece` message's payload into its piece index,
// block offset and block bytes, per spec.md §4.4's u32,u32,bytes shape.
func ParsePiece(m *Message) (index, begin int, block []byte, err error) {
	if m.ID != Piece {
		return 0, 0, nil, errs.Newf(errs.ProtocolSequence, "expected piece message, got id %d", m.ID)
	}
	if len(m.Payload) < 8 {
		return 0, 0, nil, errs.Newf(errs.Frame, "piece payload too short: %d bytes", len(m.Payload))
	}
	index = int(binary.BigEndian.Uint32(m.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(m.Payload[4:8]))
	block = m.Payload[8:]
	return index, begin, block, nil
}

// ParseHave decodes a `have` message's payload into a piece index.
func ParseHave(m *Message) (int, error) {
	if m.ID != Have {
		return 0, errs.Newf(errs.ProtocolSequence, "expected have message, got id %d", m.ID)
	}
	if len(m.Payload) != 4 {
		return 0, errs.Newf(errs.Frame, "have payload must be 4 bytes, got %d", len(m.Payload))
	}
	return int(binary.BigEndian.Uint32(m.Payload)), nil
}
