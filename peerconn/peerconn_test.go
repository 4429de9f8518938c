package peerconn

import (
	"testing"
)

func TestBlockRequestsTwoFullBlocks(t *testing.T) {
	reqs := BlockRequests(32768)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Offset != 0 || reqs[0].Length != 16384 {
		t.Fatalf("unexpected first request: %+v", reqs[0])
	}
	if reqs[1].Offset != 16384 || reqs[1].Length != 16384 {
		t.Fatalf("unexpected second request: %+v", reqs[1])
	}
}

func TestBlockRequestsSingleShortBlock(t *testing.T) {
	reqs := BlockRequests(6241)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Offset != 0 || reqs[0].Length != 6241 {
		t.Fatalf("unexpected request: %+v", reqs[0])
	}
}

func TestBlockRequestsInvariants(t *testing.T) {
	for _, pieceLength := range []int{1, 16383, 16384, 16385, 32768, 92063 % 32768, 100000} {
		reqs := BlockRequests(pieceLength)
		sum := 0
		wantOffset := 0
		for _, r := range reqs {
			if r.Offset != wantOffset {
				t.Fatalf("pieceLength=%d: expected offset %d, got %d", pieceLength, wantOffset, r.Offset)
			}
			if r.Length > BlockSize {
				t.Fatalf("pieceLength=%d: block length %d exceeds BlockSize", pieceLength, r.Length)
			}
			sum += r.Length
			wantOffset += r.Length
		}
		if sum != pieceLength {
			t.Fatalf("pieceLength=%d: block lengths sum to %d, want %d", pieceLength, sum, pieceLength)
		}
	}
}

func TestParseEndpointHostPort(t *testing.T) {
	ep, err := ParseEndpoint("127.0.0.1:6881")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ep.Port != 6881 || ep.IP.String() != "127.0.0.1" {
		t.Fatalf("unexpected endpoint: %+v", ep)
	}
}

func TestParseCompactPeers(t *testing.T) {
	data := []byte{127, 0, 0, 1, 0x1A, 0xE1} // 127.0.0.1:6881
	peers, err := ParseCompactPeers(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(peers))
	}
	if peers[0].String() != "127.0.0.1:6881" {
		t.Fatalf("unexpected peer: %s", peers[0])
	}
}

func TestParseCompactPeersRejectsBadLength(t *testing.T) {
	if _, err := ParseCompactPeers([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for length not a multiple of 6")
	}
}
