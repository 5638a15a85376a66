package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Huddle/internal/media"
)

// fakeNet is an in-memory substrate: exclusive names, instant links.
type fakeNet struct {
	mu    sync.Mutex
	peers map[string]*fakePeer
	seq   int

	// block, when set, holds every Register until closed or ctx ends.
	block chan struct{}
	fail  error
}

func newFakeNet() *fakeNet {
	return &fakeNet{peers: make(map[string]*fakePeer)}
}

func (n *fakeNet) Register(ctx context.Context, name string) (Peer, error) {
	if n.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-n.block:
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return nil, n.fail
	}
	if _, ok := n.peers[name]; ok {
		return nil, ErrIdentityTaken
	}
	p := &fakePeer{net: n, id: name, events: make(chan Event, 1024), ends: make(map[string]*fakeEnd)}
	n.peers[name] = p
	return p, nil
}

func (n *fakeNet) lookup(name string) *fakePeer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peers[name]
}

func (n *fakeNet) nextID(kind string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	return fmt.Sprintf("%s-%d", kind, n.seq)
}

func (n *fakeNet) live() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for name := range n.peers {
		out = append(out, name)
	}
	return out
}

type fakePeer struct {
	net    *fakeNet
	id     string
	events chan Event

	mu     sync.Mutex
	closed bool
	ends   map[string]*fakeEnd
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Events() <-chan Event { return p.events }

func (p *fakePeer) emit(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
	}
}

func (p *fakePeer) Call(remote string, stream *media.LocalStream) (MediaCall, error) {
	return p.open(remote, "media")
}

func (p *fakePeer) Connect(remote string) (DataConn, error) {
	return p.open(remote, "data")
}

func (p *fakePeer) open(remote, kind string) (*fakeEnd, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errors.New("peer closed")
	}

	id := p.net.nextID(kind)
	local := &fakeEnd{id: id, kind: kind, owner: p, remote: remote}
	p.attach(local)

	target := p.net.lookup(remote)
	if target == nil {
		go p.emit(ErrorEvent{Remote: remote, LinkID: id, Err: ErrPeerUnavailable})
		return local, nil
	}

	far := &fakeEnd{id: id, kind: kind, owner: target, remote: p.id, peer: local}
	local.peer = far
	target.attach(far)

	if kind == "media" {
		target.emit(CallEvent{Call: far})
	} else {
		local.setOpen()
		far.setOpen()
		target.emit(ConnectionEvent{Conn: far})
		target.emit(OpenEvent{Conn: far})
		p.emit(OpenEvent{Conn: local})
	}
	return local, nil
}

func (p *fakePeer) attach(e *fakeEnd) {
	p.mu.Lock()
	p.ends[e.id] = e
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	ends := make([]*fakeEnd, 0, len(p.ends))
	for _, e := range p.ends {
		ends = append(ends, e)
	}
	p.mu.Unlock()

	for _, e := range ends {
		e.Close()
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.net.mu.Lock()
	if p.net.peers[p.id] == p {
		delete(p.net.peers, p.id)
	}
	p.net.mu.Unlock()
	return nil
}

// fakeEnd is one side of a media or data link.
type fakeEnd struct {
	id     string
	kind   string
	owner  *fakePeer
	remote string
	peer   *fakeEnd

	mu       sync.Mutex
	open     bool
	closed   bool
	answered bool
}

func (e *fakeEnd) ID() string     { return e.id }
func (e *fakeEnd) Remote() string { return e.remote }

func (e *fakeEnd) Open() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open && !e.closed
}

func (e *fakeEnd) setOpen() {
	e.mu.Lock()
	e.open = true
	e.mu.Unlock()
}

func (e *fakeEnd) Answer(stream *media.LocalStream) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("call closed")
	}
	e.answered = true
	e.mu.Unlock()

	caller := e.peer
	e.owner.emit(StreamEvent{Remote: e.remote, LinkID: e.id, Stream: media.NewRemoteStream(e.id, e.remote)})
	caller.owner.emit(StreamEvent{Remote: caller.remote, LinkID: e.id, Stream: media.NewRemoteStream(e.id, caller.remote)})
	return nil
}

func (e *fakeEnd) Send(data []byte) error {
	if !e.Open() {
		return errors.New("link not open")
	}
	buf := append([]byte(nil), data...)
	e.peer.owner.emit(DataEvent{Remote: e.owner.id, LinkID: e.id, Data: buf})
	return nil
}

func (e *fakeEnd) Close() error {
	if !e.closeOne() {
		return nil
	}
	if e.peer != nil {
		e.peer.closeOne()
	}
	return nil
}

func (e *fakeEnd) closeOne() bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.closed = true
	e.mu.Unlock()

	e.owner.mu.Lock()
	delete(e.owner.ends, e.id)
	e.owner.mu.Unlock()

	e.owner.emit(CloseEvent{Remote: e.remote, LinkID: e.id})
	return true
}

// fakeCapturer hands out silent local streams and remembers them.
type fakeCapturer struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	streams []*media.LocalStream
}

func (c *fakeCapturer) Acquire(ctx context.Context, want media.Constraints) (*media.LocalStream, error) {
	if c.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.block:
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	audio, err := media.NewLocalTrack(media.KindAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "local", nil)
	if err != nil {
		return nil, err
	}
	video, err := media.NewLocalTrack(media.KindVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "local", nil)
	if err != nil {
		return nil, err
	}
	s := media.NewLocalStream("", audio, video)

	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeCapturer) last() *media.LocalStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return nil
	}
	return c.streams[len(c.streams)-1]
}
