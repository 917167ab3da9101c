package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/jpillora/foxssh/sshd/message"
)

// Local disconnect reasons for socket failures. They are reported to
// OnDisconnect but never sent to the peer.
const (
	ReasonTimeout         = message.Timeout
	ReasonConnectionReset = message.ConnectionReset
	ReasonConnectionLost  = message.ConnectionLost
)

// ErrClosed is returned by Send once the session has terminated.
var ErrClosed = errors.New("transport: session closed")

// ErrQueueFull is returned by Send when too many messages are deferred
// behind a key exchange.
var ErrQueueFull = errors.New("transport: deferred queue full")

// ProtocolError is a fatal protocol violation. The peer is sent a
// disconnect carrying Reason before the connection is closed.
type ProtocolError struct {
	Reason message.DisconnectReason
	Msg    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("transport: %s: %s", e.Reason, e.Msg)
}

func protocolErrorf(reason message.DisconnectReason, format string, args ...any) error {
	return &ProtocolError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// TransportError is a socket level failure: timeout, reset or another
// I/O error on the underlying connection.
type TransportError struct {
	Reason message.DisconnectReason
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Reason, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PeerDisconnectError records a disconnect message sent by the peer.
type PeerDisconnectError struct {
	Reason      message.DisconnectReason
	Description string
}

func (e *PeerDisconnectError) Error() string {
	return fmt.Sprintf("transport: peer disconnected: %s: %s", e.Reason, e.Description)
}

// classify wraps a raw connection error into a TransportError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	reason := ReasonConnectionLost
	var ne net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &ne) && ne.Timeout():
		reason = ReasonTimeout
	case isReset(err):
		reason = ReasonConnectionReset
	}
	return &TransportError{Reason: reason, Err: err}
}

// reasonOf extracts the disconnect reason carried by a session error.
func reasonOf(err error) message.DisconnectReason {
	var pe *ProtocolError
	var te *TransportError
	var pd *PeerDisconnectError
	switch {
	case err == nil:
		return message.ByApplication
	case errors.As(err, &pe):
		return pe.Reason
	case errors.As(err, &pd):
		return pd.Reason
	case errors.As(err, &te):
		return te.Reason
	}
	return message.ProtocolError
}

// graceful reports whether err is the expected end of a session.
func graceful(err error) bool {
	var pd *PeerDisconnectError
	return err == nil || errors.Is(err, io.EOF) || errors.As(err, &pd)
}
