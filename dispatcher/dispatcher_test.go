package dispatcher

import (
	"bytes"
	"context"
	"crypto/sha1"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"torrentcore/errs"
	"torrentcore/peerconn"
	"torrentcore/torrent"
	"torrentcore/wire"
)

// fakePeer listens on a loopback port and serves exactly one piece's
// worth of block requests over the real peer-wire handshake sequence,
// so Dispatcher.Run exercises peerconn.Dial/DownloadPiece end to end
// rather than against a mock.
type fakePeer struct {
	listener net.Listener
	data     []byte
}

func newFakePeer(t *testing.T, infoHash [20]byte, data []byte) *fakePeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fp := &fakePeer{listener: ln, data: data}
	go fp.serveOne(infoHash)
	return fp
}

func (fp *fakePeer) endpoint() peerconn.Endpoint {
	addr := fp.listener.Addr().(*net.TCPAddr)
	return peerconn.Endpoint{IP: addr.IP, Port: uint16(addr.Port)}
}

func (fp *fakePeer) serveOne(infoHash [20]byte) {
	conn, err := fp.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	var peerID [20]byte
	copy(peerID[:], "fake-peer-id-0123456")
	if _, err := wire.ExpectHandshake(conn, infoHash); err != nil {
		return
	}
	if _, err := conn.Write(wire.New(infoHash, peerID).Marshal()); err != nil {
		return
	}

	if err := wire.WriteMessage(conn, &wire.Message{ID: wire.BitfieldMsg, Payload: []byte{0x80}}); err != nil {
		return
	}
	if msg, err := wire.ReadMessage(conn); err != nil || msg == nil || msg.ID != wire.Interested {
		return
	}
	if err := wire.WriteMessage(conn, &wire.Message{ID: wire.Unchoke}); err != nil {
		return
	}

	remaining := len(fp.data)
	for remaining > 0 {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}
		if msg == nil || msg.ID != wire.Request {
			return
		}
		index, begin, length := parseRequestForTest(msg)
		block := fp.data[begin : begin+length]
		if err := wire.WriteMessage(conn, &wire.Message{ID: wire.Piece, Payload: buildPiecePayload(index, begin, block)}); err != nil {
			return
		}
		remaining -= length
	}
}

func buildPiecePayload(index, begin int, block []byte) []byte {
	payload := make([]byte, 8+len(block))
	payload[0] = byte(index >> 24)
	payload[1] = byte(index >> 16)
	payload[2] = byte(index >> 8)
	payload[3] = byte(index)
	payload[4] = byte(begin >> 24)
	payload[5] = byte(begin >> 16)
	payload[6] = byte(begin >> 8)
	payload[7] = byte(begin)
	copy(payload[8:], block)
	return payload
}

func parseRequestForTest(msg *wire.Message) (index, begin, length int) {
	p := msg.Payload
	index = int(p[0])<<24 | int(p[1])<<16 | int(p[2])<<8 | int(p[3])
	begin = int(p[4])<<24 | int(p[5])<<16 | int(p[6])<<8 | int(p[7])
	length = int(p[8])<<24 | int(p[9])<<16 | int(p[10])<<8 | int(p[11])
	return index, begin, length
}

// memSink is an in-memory io.WriterAt standing in for the destination
// file.
type memSink struct {
	buf []byte
}

func (m *memSink) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], p)
	return len(p), nil
}

func TestDispatcherRunSinglePieceSinglePeer(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 20000) // spans two 16384-byte blocks
	hash := sha1.Sum(data)

	var infoHash [20]byte
	copy(infoHash[:], "test-info-hash-000000")

	peer := newFakePeer(t, infoHash, data)

	tr := &torrent.Torrent{
		Length:      int64(len(data)),
		PieceLength: int64(len(data)),
		PieceHashes: []torrent.Hash{torrent.Hash(hash)},
		InfoHash:    torrent.Hash(infoHash),
	}

	sink := &memSink{}
	var localPeerID [20]byte
	copy(localPeerID[:], "local-peer-id-0000000")

	d := &Dispatcher{
		Torrent:         tr,
		Peers:           []peerconn.Endpoint{peer.endpoint()},
		LocalPeerID:     localPeerID,
		Sink:            sink,
		SessionConfig:   peerconn.DefaultConfig(),
		ProgressTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, d.Run(ctx))
	require.True(t, bytes.Equal(sink.buf, data), "sink contents do not match expected piece data")
}

func TestDispatcherRunNoPeersFails(t *testing.T) {
	tr := &torrent.Torrent{
		Length:      20,
		PieceLength: 20,
		PieceHashes: []torrent.Hash{{}},
	}
	d := &Dispatcher{Torrent: tr, Sink: &memSink{}}
	require.Error(t, d.Run(context.Background()))
}

func TestDispatcherRunZeroPiecesSucceeds(t *testing.T) {
	tr := &torrent.Torrent{PieceHashes: nil}
	d := &Dispatcher{Torrent: tr, Sink: &memSink{}}
	require.NoError(t, d.Run(context.Background()))
}

// stallingPeer completes the handshake/bitfield/unchoke sequence and
// then goes silent, answering no requests. It drives the race between
// collect's progress timeout firing and a worker still blocked in a
// deadline-bound socket read: by the time that read finally times out
// and the worker tries to re-enqueue its job, Run has already canceled
// the shared context.
type stallingPeer struct {
	listener net.Listener
	stop     chan struct{}
}

func newStallingPeer(t *testing.T, infoHash [20]byte) *stallingPeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	sp := &stallingPeer{listener: ln, stop: make(chan struct{})}
	go sp.serve(infoHash)
	return sp
}

func (sp *stallingPeer) endpoint() peerconn.Endpoint {
	addr := sp.listener.Addr().(*net.TCPAddr)
	return peerconn.Endpoint{IP: addr.IP, Port: uint16(addr.Port)}
}

func (sp *stallingPeer) close() {
	close(sp.stop)
	sp.listener.Close()
}

func (sp *stallingPeer) serve(infoHash [20]byte) {
	conn, err := sp.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	var peerID [20]byte
	copy(peerID[:], "stall-peer-id-012345")
	if _, err := wire.ExpectHandshake(conn, infoHash); err != nil {
		return
	}
	if _, err := conn.Write(wire.New(infoHash, peerID).Marshal()); err != nil {
		return
	}
	if err := wire.WriteMessage(conn, &wire.Message{ID: wire.BitfieldMsg, Payload: []byte{0x80}}); err != nil {
		return
	}
	if msg, err := wire.ReadMessage(conn); err != nil || msg == nil || msg.ID != wire.Interested {
		return
	}
	if err := wire.WriteMessage(conn, &wire.Message{ID: wire.Unchoke}); err != nil {
		return
	}
	<-sp.stop // never answer a request; the caller's read deadline does the rest
}

func TestDispatcherRunStalledPeerHitsNoProgressWithoutPanic(t *testing.T) {
	data := bytes.Repeat([]byte{0x07}, 5000)
	hash := sha1.Sum(data)

	var infoHash [20]byte
	copy(infoHash[:], "stalled-info-hash-00")

	peer := newStallingPeer(t, infoHash)
	defer peer.close()

	tr := &torrent.Torrent{
		Length:      int64(len(data)),
		PieceLength: int64(len(data)),
		PieceHashes: []torrent.Hash{torrent.Hash(hash)},
		InfoHash:    torrent.Hash(infoHash),
	}

	cfg := peerconn.DefaultConfig()
	cfg.ReadTimeout = 300 * time.Millisecond

	var localPeerID [20]byte
	copy(localPeerID[:], "local-peer-id-0000000")

	d := &Dispatcher{
		Torrent:         tr,
		Peers:           []peerconn.Endpoint{peer.endpoint()},
		LocalPeerID:     localPeerID,
		Sink:            &memSink{},
		SessionConfig:   cfg,
		ProgressTimeout: 100 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := d.Run(ctx)
	require.True(t, errs.Is(err, errs.NoProgress), "expected NoProgress, got %v", err)

	// The stalled worker's read deadline fires after Run has already
	// returned; a regression that closes jobs and lets the re-enqueue
	// race it panics the whole test binary here instead of just failing.
	time.Sleep(cfg.ReadTimeout + 200*time.Millisecond)
}
