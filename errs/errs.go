// Package errs defines the error taxonomy shared by every layer of the
// downloader core: bencode decoding, the torrent model, the tracker
// client, the peer wire protocol and the piece dispatcher.
//
// Callers should use errors.As to recover a *Error and inspect its Kind,
// or errs.Is to check for a specific kind without an intermediate
// variable. Wrapping preserves the cause chain via pkg/errors so the CLI
// can print it top to bottom.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which part of the spec's error taxonomy an Error
// belongs to.
type Kind int

const (
	// Bencode is malformed torrent metadata or tracker response bytes.
	Bencode Kind = iota
	// TorrentInvariant is a piece-count or length mismatch in parsed
	// torrent metadata.
	TorrentInvariant
	// Tracker is an HTTP status or failure-reason error from the
	// announce endpoint.
	Tracker
	// HandshakeMismatch is a peer handshake with the wrong protocol
	// string or info-hash.
	HandshakeMismatch
	// ProtocolSequence is a message received out of the expected
	// session state order.
	ProtocolSequence
	// Frame is a malformed or oversized message frame.
	Frame
	// HashMismatch is a piece whose SHA-1 does not match its expected
	// hash.
	HashMismatch
	// Stalled is a connection with no bytes received within the read
	// timeout.
	Stalled
	// NoProgress is a dispatcher with no surviving workers and
	// outstanding pieces.
	NoProgress
	// IO is an underlying socket or file failure.
	IO
)

func (k Kind) String() string {
	switch k {
	case Bencode:
		return "BencodeError"
	case TorrentInvariant:
		return "TorrentInvariantError"
	case Tracker:
		return "TrackerError"
	case HandshakeMismatch:
		return "HandshakeMismatch"
	case ProtocolSequence:
		return "ProtocolSequenceError"
	case Frame:
		return "FrameError"
	case HashMismatch:
		return "HashMismatch"
	case Stalled:
		return "Stalled"
	case NoProgress:
		return "NoProgress"
	case IO:
		return "IoError"
	default:
		return "UnknownError"
	}
}

// Error is a taxonomized, optionally-wrapped error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a leaf Error of the given kind. Err is left nil: a leaf
// error has no cause to chain, only its own message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches kind and msg to an existing error, preserving it as the
// cause for both errors.Unwrap and pkg/errors-style chain printing. The
// cause keeps its own stack trace via errors.WithStack without
// restating msg, which Error() already prefixes once.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: errors.WithStack(err)}
}

// Wrapf is Wrap with fmt.Sprintf-style formatting.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	return Wrap(kind, err, fmt.Sprintf(format, args...))
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Chain renders the full cause chain on a single line for CLI output,
// layers separated by ": ": "err1: err2: err3".
func Chain(err error) string {
	return err.Error()
}
