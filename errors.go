package kephascord

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by sessions. Match them with errors.Is.
var (
	// ErrSessionClosed is returned by sends attempted outside the SteadyState.
	ErrSessionClosed = errors.New("gateway session is closed")

	// ErrAlreadyRunning is returned by Run while another Run is active.
	ErrAlreadyRunning = errors.New("gateway session already running")

	// ErrMalformedFrame marks an inbound frame that could not be decoded or
	// violated the opcode/event type invariant.
	ErrMalformedFrame = errors.New("malformed gateway frame")

	// ErrHandlerLookupMiss marks an interaction whose name has no handler.
	ErrHandlerLookupMiss = errors.New("no handler registered for interaction")

	// ErrAuthenticationRejected is returned when the server refused the
	// identify credentials. Reconnecting with the same token cannot succeed.
	ErrAuthenticationRejected = errors.New("gateway authentication rejected")

	// ErrReconnectRequested is returned when the server sent opcode 7.
	ErrReconnectRequested = errors.New("gateway requested reconnect")

	// ErrInvalidSession is returned when the server sent opcode 9.
	ErrInvalidSession = errors.New("gateway invalidated the session")

	// ErrHeartbeatTimeout is returned when too many heartbeats went
	// unacknowledged in a row.
	ErrHeartbeatTimeout = errors.New("gateway heartbeat not acknowledged")
)

// TransportError reports a connection-level failure: dial refused, read or
// write failed, connection closed by the peer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CloseError is a close frame received from the gateway.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("gateway closed connection (code %d)", e.Code)
	}
	return fmt.Sprintf("gateway closed connection (code %d): %s", e.Code, e.Reason)
}

// Is lets errors.Is(err, ErrAuthenticationRejected) match an authentication
// failure close code.
func (e *CloseError) Is(target error) bool {
	return target == ErrAuthenticationRejected && e.Code == CloseAuthenticationFailed
}

// Recoverable reports whether reconnecting after this close can succeed.
func (e *CloseError) Recoverable() bool {
	return IsRecoverableClose(e.Code)
}
