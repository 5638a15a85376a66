package mesh

import (
	"sort"

	"github.com/BioHazard786/Huddle/internal/media"
)

type channelKind int

const (
	channelMedia channelKind = iota
	channelData
)

func (k channelKind) String() string {
	if k == channelData {
		return "data"
	}
	return "media"
}

type channelState int

const (
	channelPending channelState = iota
	channelOpen
)

// channel is one media or data session inside a link.
type channel struct {
	id    string
	kind  channelKind
	state channelState
	seq   uint64

	call   MediaCall
	conn   DataConn
	stream *media.RemoteStream
}

func (c *channel) close() {
	if c.call != nil {
		c.call.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// link aggregates every channel to one remote identity. Simultaneous dials
// in both directions can leave more than one channel of a kind.
type link struct {
	remote   string
	channels map[string]*channel
}

// stream returns the stream of the oldest media channel carrying one.
func (l *link) stream() *media.RemoteStream {
	var best *channel
	for _, c := range l.channels {
		if c.kind != channelMedia || c.stream == nil {
			continue
		}
		if best == nil || c.seq < best.seq {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best.stream
}

// linkSet is the link aggregate of one session. It is guarded by the
// session mutex.
type linkSet struct {
	links  map[string]*link
	owner  map[string]string // channel id -> remote
	closed map[string]struct{}
	seq    uint64
}

func newLinkSet() *linkSet {
	return &linkSet{
		links:  make(map[string]*link),
		owner:  make(map[string]string),
		closed: make(map[string]struct{}),
	}
}

// upsert returns the channel id on remote, creating it when unknown. It
// returns nil when the channel already closed.
func (s *linkSet) upsert(remote, id string, kind channelKind) *channel {
	if _, gone := s.closed[id]; gone {
		return nil
	}
	l, ok := s.links[remote]
	if !ok {
		l = &link{remote: remote, channels: make(map[string]*channel)}
		s.links[remote] = l
	}
	c, ok := l.channels[id]
	if !ok {
		s.seq++
		c = &channel{id: id, kind: kind, seq: s.seq}
		l.channels[id] = c
		s.owner[id] = remote
	}
	return c
}

// remove drops channel id and reports whether its link closed with it.
func (s *linkSet) remove(remote, id string) (*channel, bool) {
	s.closed[id] = struct{}{}
	if owner, ok := s.owner[id]; ok {
		remote = owner
	}
	delete(s.owner, id)

	l, ok := s.links[remote]
	if !ok {
		return nil, false
	}
	c := l.channels[id]
	delete(l.channels, id)
	if len(l.channels) == 0 {
		delete(s.links, remote)
		return c, true
	}
	return c, false
}

// openConns returns the data links ready to carry payloads.
func (s *linkSet) openConns() []DataConn {
	var out []DataConn
	for _, l := range s.links {
		for _, c := range l.channels {
			if c.kind == channelData && c.conn != nil && c.state == channelOpen && c.conn.Open() {
				out = append(out, c.conn)
			}
		}
	}
	return out
}

// drain empties the set and returns every channel for closing.
func (s *linkSet) drain() []*channel {
	var out []*channel
	for _, l := range s.links {
		for _, c := range l.channels {
			out = append(out, c)
		}
	}
	s.links = make(map[string]*link)
	s.owner = make(map[string]string)
	return out
}

func (s *linkSet) has(remote string) bool {
	_, ok := s.links[remote]
	return ok
}

// participants projects the set onto the remote identities that carry a
// stream.
func (s *linkSet) participants() Participants {
	streams := make(map[string]*media.RemoteStream)
	for remote, l := range s.links {
		if st := l.stream(); st != nil {
			streams[remote] = st
		}
	}
	return newParticipants(streams)
}

// Participants is an immutable view of remote identity to stream.
type Participants struct {
	ids     []string
	streams map[string]*media.RemoteStream
}

func newParticipants(streams map[string]*media.RemoteStream) Participants {
	ids := make([]string, 0, len(streams))
	for id := range streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Participants{ids: ids, streams: streams}
}

func (p Participants) Len() int { return len(p.ids) }

func (p Participants) Get(id string) (*media.RemoteStream, bool) {
	s, ok := p.streams[id]
	return s, ok
}

// IDs returns the remote identities in sorted order.
func (p Participants) IDs() []string {
	out := make([]string, len(p.ids))
	copy(out, p.ids)
	return out
}
