package mesh

import (
	"context"

	"github.com/BioHazard786/Huddle/internal/media"
)

// Directory grants exclusive peer names. Register fails with
// ErrIdentityTaken when another live client holds name.
type Directory interface {
	Register(ctx context.Context, name string) (Peer, error)
}

// Peer is a registered identity on the substrate. Closing it releases the
// name and every link it carries.
type Peer interface {
	ID() string
	Call(remote string, stream *media.LocalStream) (MediaCall, error)
	Connect(remote string) (DataConn, error)
	// Events is never closed; consumers stop reading when they are done.
	Events() <-chan Event
	Close() error
}

// MediaCall is one media link, outbound or inbound.
type MediaCall interface {
	ID() string
	Remote() string
	// Answer accepts an inbound call, sending stream back.
	Answer(stream *media.LocalStream) error
	Close() error
}

// DataConn is one data link.
type DataConn interface {
	ID() string
	Remote() string
	Open() bool
	Send(data []byte) error
	Close() error
}

// Event is the closed set of notifications a Peer emits.
type Event interface {
	isEvent()
}

// CallEvent reports an inbound media call waiting to be answered.
type CallEvent struct {
	Call MediaCall
}

// ConnectionEvent reports an inbound data link.
type ConnectionEvent struct {
	Conn DataConn
}

// StreamEvent reports remote media arriving on a media link.
type StreamEvent struct {
	Remote string
	LinkID string
	Stream *media.RemoteStream
}

// OpenEvent reports a data link ready to carry payloads.
type OpenEvent struct {
	Conn DataConn
}

type DataEvent struct {
	Remote string
	LinkID string
	Data   []byte
}

type CloseEvent struct {
	Remote string
	LinkID string
}

// ErrorEvent reports a failure. Fatal errors mean the substrate itself is
// gone; the others concern one link.
type ErrorEvent struct {
	Remote string
	LinkID string
	Err    error
	Fatal  bool
}

func (CallEvent) isEvent()       {}
func (ConnectionEvent) isEvent() {}
func (StreamEvent) isEvent()     {}
func (OpenEvent) isEvent()       {}
func (DataEvent) isEvent()       {}
func (CloseEvent) isEvent()      {}
func (ErrorEvent) isEvent()      {}
