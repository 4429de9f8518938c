// Package trackerclient builds the tracker announce request and parses
// its bencode response into a peer list (spec.md §4.3). Split out of
// the teacher's torrent.go into its own package, matching
// matei-oltean-go-torrent's separate tracker.go.
package trackerclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"torrentcore/bencode"
	"torrentcore/errs"
	"torrentcore/logging"
	"torrentcore/peerconn"
)

// Port is the fixed peer listening port this core announces to
// trackers, per spec.md §6. The core never actually listens on it —
// it only downloads.
const Port = 6881

// Timeout is the tracker GET deadline spec.md §5 specifies.
const Timeout = 20 * time.Second

// isUnreserved reports whether b is left un-escaped by percentEncode,
// per the RFC 3986 unreserved set the BitTorrent convention borrows.
func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '~':
		return true
	default:
		return false
	}
}

// percentEncode renders b as the BitTorrent tracker convention expects:
// every byte that isn't unreserved becomes %HH, uppercase hex.
func percentEncode(b []byte) string {
	out := make([]byte, 0, len(b)*3)
	for _, c := range b {
		if isUnreserved(c) {
			out = append(out, c)
			continue
		}
		out = append(out, '%')
		out = append(out, "0123456789ABCDEF"[c>>4], "0123456789ABCDEF"[c&0xF])
	}
	return string(out)
}

// BuildAnnounceURL builds the GET request URL spec.md §4.3 specifies:
// announce with info_hash, peer_id, port, uploaded, downloaded, left
// and compact query parameters, with info-hash and peer-id
// percent-encoded per the BitTorrent convention rather than
// url.QueryEscape's form-encoding rules (which escape differently).
func BuildAnnounceURL(announce string, infoHash, peerID [20]byte, left int64) (string, error) {
	base, err := url.Parse(announce)
	if err != nil {
		return "", errs.Wrap(errs.Tracker, err, "parsing announce URL")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", errs.Newf(errs.Tracker, "unsupported announce scheme %q", base.Scheme)
	}

	query := url.Values{
		"port":       {strconv.Itoa(Port)},
		"uploaded":   {"0"},
		"downloaded": {"0"},
		"compact":    {"1"},
		"left":       {strconv.FormatInt(left, 10)},
	}
	base.RawQuery = query.Encode() +
		"&info_hash=" + percentEncode(infoHash[:]) +
		"&peer_id=" + percentEncode(peerID[:])
	return base.String(), nil
}

// response is the bencode dict shape a tracker reply takes: either
// peers (compact form) on success, or failure reason on failure.
type response struct {
	peers         []byte
	failureReason string
	hasFailure    bool
}

func parseResponse(data []byte) (response, error) {
	v, _, err := bencode.Decode(data)
	if err != nil {
		return response{}, err
	}
	if v.Kind != bencode.KindDict {
		return response{}, errs.New(errs.Tracker, "tracker response is not a dictionary")
	}
	if reason, ok := v.GetBytes("failure reason"); ok {
		return response{failureReason: string(reason), hasFailure: true}, nil
	}
	peers, ok := v.GetBytes("peers")
	if !ok {
		return response{}, errs.New(errs.Tracker, "tracker response missing peers field")
	}
	return response{peers: peers}, nil
}

// Announce issues the tracker GET request for torrent identified by
// infoHash/peerID/left, and returns the peers it announced in compact
// form decoded into endpoints.
func Announce(ctx context.Context, announceURL string, infoHash, peerID [20]byte, left int64) ([]peerconn.Endpoint, error) {
	reqURL, err := BuildAnnounceURL(announceURL, infoHash, peerID, left)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Tracker, err, "building tracker request")
	}

	logging.Log.Debugf("announcing to %s", announceURL)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Tracker, err, "tracker GET failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Newf(errs.Tracker, "tracker returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Tracker, err, "reading tracker response")
	}

	parsed, err := parseResponse(body)
	if err != nil {
		return nil, err
	}
	if parsed.hasFailure {
		return nil, errs.Newf(errs.Tracker, "tracker failure: %s", parsed.failureReason)
	}

	peers, err := peerconn.ParseCompactPeers(parsed.peers)
	if err != nil {
		return nil, err
	}
	logging.Log.Debugf("tracker returned %d peers", len(peers))
	return peers, nil
}
