package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrMediaAcquisition = errors.New("media acquisition failed")
	ErrRoomFull         = errors.New("room is full")
	ErrLinkFailed       = errors.New("peer link failed")
	ErrTransportFatal   = errors.New("discovery transport failed")
	ErrInvalidRoom      = errors.New("invalid room id")
	ErrEmptyMessage     = errors.New("empty message")
	ErrJoinAborted      = errors.New("join aborted")

	// Returned by the substrate.
	ErrIdentityTaken   = errors.New("identity unavailable")
	ErrPeerUnavailable = errors.New("peer unavailable")
)

// Error carries the failed operation and, for link failures, the remote
// identity involved.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// joinError tags cause with the session-level sentinel kind while keeping
// cause reachable through errors.Is.
func joinError(op string, kind, cause error) *Error {
	if cause == nil || errors.Is(cause, kind) {
		return &Error{Op: op, Err: kind}
	}
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", kind, cause)}
}
