// Package peerconn implements the per-connection peer-wire protocol:
// the PeerSession state machine (spec.md §4.5) and the per-piece block
// scheduler that rides on top of it (§4.6). It is adapted from the
// teacher's peer package and the piece-download loop that lived in its
// torrent.go.
package peerconn

import (
	"encoding/binary"
	"net"
	"strconv"

	"torrentcore/errs"
)

// Endpoint is a peer's address: an IPv4 or IPv6 address plus a 16-bit
// port. The IP is opaque beyond what net.Dial needs — spec.md's
// non-goals explicitly treat IPv6 as "supported only because the
// address is an opaque endpoint".
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// String renders the endpoint as a dial-ready "ip:port" string.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
}

// ParseEndpoint parses a "host:port" string into an Endpoint.
func ParseEndpoint(hostport string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, errs.Wrapf(errs.IO, err, "parsing endpoint %q", hostport)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, errs.Wrapf(errs.IO, err, "parsing port in %q", hostport)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		// Endpoint holds a net.IP, so a bare hostname is resolved
		// here, at parse time, and its first address is used.
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return Endpoint{}, errs.Newf(errs.IO, "cannot resolve host %q", host)
		}
		ip = ips[0]
	}
	return Endpoint{IP: ip, Port: uint16(port)}, nil
}

// ParseCompactPeers decodes a tracker's compact peer list: 6 bytes per
// peer, 4-byte big-endian IPv4 address followed by a 2-byte big-endian
// port (spec.md §4.3, §6).
func ParseCompactPeers(data []byte) ([]Endpoint, error) {
	const recordLen = 6
	if len(data)%recordLen != 0 {
		return nil, errs.Newf(errs.Tracker, "compact peer list length %d is not a multiple of %d", len(data), recordLen)
	}
	n := len(data) / recordLen
	peers := make([]Endpoint, n)
	for i := 0; i < n; i++ {
		offset := i * recordLen
		ip := make(net.IP, 4)
		copy(ip, data[offset:offset+4])
		port := binary.BigEndian.Uint16(data[offset+4 : offset+6])
		peers[i] = Endpoint{IP: ip, Port: port}
	}
	return peers, nil
}
