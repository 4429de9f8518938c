package peerconn

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"

	"torrentcore/bitfield"
	"torrentcore/errs"
	"torrentcore/logging"
	"torrentcore/wire"
)

// State is a PeerSession's position in the handshake/setup state
// machine described by spec.md §4.5. Session.State is written only by
// Dial, its setup/awaitUnchoke sequence, and Close, so a session's
// state never needs a mutex: one worker owns one session exclusively.
type State int

const (
	Dialing State = iota
	Handshaking
	AwaitingBitfield
	SignalingInterest
	AwaitingUnchoke
	Ready
	Closing
)

func (s State) String() string {
	switch s {
	case Dialing:
		return "dialing"
	case Handshaking:
		return "handshaking"
	case AwaitingBitfield:
		return "awaiting-bitfield"
	case SignalingInterest:
		return "signaling-interest"
	case AwaitingUnchoke:
		return "awaiting-unchoke"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config bundles the timeouts and pipelining depth spec.md §5 and §9
// leave as implementation choices, rather than scattering magic
// durations through the session and dispatcher code — grounded on
// prxssh-rabbit's scheduler.Config, which bundles the equivalent knobs
// for its (much more elaborate) scheduler.
type Config struct {
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	PipelineDepth  int
	MaxBlockLength int
}

// DefaultConfig returns the timeouts spec.md §5 specifies and a
// pipelining depth of 5, the top of the range §4.6/§9 call out as safe
// without affecting correctness.
func DefaultConfig() Config {
	return Config{
		DialTimeout:    10 * time.Second,
		ReadTimeout:    30 * time.Second,
		PipelineDepth:  5,
		MaxBlockLength: BlockSize,
	}
}

// Session is a single peer-wire TCP connection and its handshake/setup
// state. It owns its socket exclusively: no other goroutine touches
// Conn once the session exists.
type Session struct {
	Endpoint     Endpoint
	Conn         net.Conn
	State        State
	Choked       bool
	Bitfield     bitfield.Bitfield
	RemotePeerID [20]byte

	localPeerID [20]byte
	infoHash    [20]byte
	cfg         Config
	sessionID   string
	log         interface {
		Debugf(format string, args ...any)
		Warnf(format string, args ...any)
	}
}

// Dial connects to endpoint, performs the handshake, and drives the
// session through AwaitingBitfield, SignalingInterest and
// AwaitingUnchoke up to Ready, per spec.md §4.5's transitions 1-5. Any
// failure along the way leaves the socket closed and returns an error;
// a caller never receives a Session in a partially-set-up state.
func Dial(ctx context.Context, endpoint Endpoint, infoHash, localPeerID [20]byte, cfg Config) (*Session, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.String())
	if err != nil {
		return nil, errs.Wrapf(errs.IO, err, "dialing %s", endpoint)
	}

	sid := uuid.NewString()[:8]
	s := &Session{
		Endpoint:    endpoint,
		Conn:        conn,
		State:       Handshaking,
		Choked:      true,
		localPeerID: localPeerID,
		infoHash:    infoHash,
		cfg:         cfg,
		sessionID:   sid,
		log:         logging.WithSession(sid, endpoint.String()),
	}

	if err := s.setup(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) setup() error {
	s.Conn.SetDeadline(time.Now().Add(s.cfg.DialTimeout))
	defer s.Conn.SetDeadline(time.Time{})

	if _, err := s.Conn.Write(wire.New(s.infoHash, s.localPeerID).Marshal()); err != nil {
		return errs.Wrap(errs.IO, err, "sending handshake")
	}
	remote, err := wire.ExpectHandshake(s.Conn, s.infoHash)
	if err != nil {
		return err
	}
	s.RemotePeerID = remote.PeerID
	s.State = AwaitingBitfield
	s.log.Debugf("handshake complete")

	msg, err := wire.ReadMessage(s.Conn)
	if err != nil {
		return err
	}
	if msg == nil || msg.ID != wire.BitfieldMsg {
		return errs.New(errs.ProtocolSequence, "expected bitfield as first message")
	}
	s.Bitfield = bitfield.Bitfield(msg.Payload)
	s.State = SignalingInterest
	s.log.Debugf("bitfield received (%d bytes)", len(msg.Payload))

	if err := wire.WriteMessage(s.Conn, &wire.Message{ID: wire.Interested}); err != nil {
		return err
	}
	s.State = AwaitingUnchoke
	s.log.Debugf("sent interested")

	return s.awaitUnchoke()
}

// awaitUnchoke drains messages until an unchoke arrives, tolerating the
// other message kinds spec.md §4.4 says this core accepts. A `piece`
// message here is out of sequence (no request has been sent yet) and
// is rejected.
func (s *Session) awaitUnchoke() error {
	for {
		s.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		msg, err := wire.ReadMessage(s.Conn)
		if err != nil {
			return err
		}
		if msg == nil {
			continue // keep-alive
		}
		switch msg.ID {
		case wire.Unchoke:
			s.Choked = false
			s.State = Ready
			s.log.Debugf("unchoked, session ready")
			return nil
		case wire.Choke:
			s.Choked = true
		case wire.BitfieldMsg:
			s.Bitfield = bitfield.Bitfield(msg.Payload)
		case wire.Have:
			index, err := wire.ParseHave(msg)
			if err != nil {
				return err
			}
			s.Bitfield.Set(index)
		default:
			return errs.Newf(errs.ProtocolSequence, "unexpected message id %d while awaiting unchoke", msg.ID)
		}
	}
}

// Close transitions the session to Closing and releases its socket.
// Safe to call more than once.
func (s *Session) Close() error {
	s.State = Closing
	return s.Conn.Close()
}
