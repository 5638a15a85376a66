package media

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// StallAfter is how long a remote track may go without packets before it is
// reported as stalled.
const StallAfter = 2 * time.Second

// RemoteTrack records the liveness of one inbound track.
type RemoteTrack struct {
	id    string
	kind  Kind
	codec string

	packets    atomic.Uint64
	lastPacket atomic.Int64
}

func (t *RemoteTrack) ID() string    { return t.id }
func (t *RemoteTrack) Kind() Kind    { return t.kind }
func (t *RemoteTrack) Codec() string { return t.codec }

func (t *RemoteTrack) Packets() uint64 { return t.packets.Load() }

// Observe records a received packet.
func (t *RemoteTrack) Observe(at time.Time) {
	t.packets.Add(1)
	t.lastPacket.Store(at.UnixNano())
}

// Stalled reports whether the track has produced nothing for longer than
// after. A track that never produced a packet is stalled.
func (t *RemoteTrack) Stalled(now time.Time, after time.Duration) bool {
	last := t.lastPacket.Load()
	if last == 0 {
		return true
	}
	return now.Sub(time.Unix(0, last)) > after
}

// RemoteStream is the media received from one remote identity over one
// media link. Tracks are added as the transport reports them.
type RemoteStream struct {
	id   string
	peer string

	mu     sync.RWMutex
	tracks map[string]*RemoteTrack
}

func NewRemoteStream(id, peer string) *RemoteStream {
	return &RemoteStream{
		id:     id,
		peer:   peer,
		tracks: make(map[string]*RemoteTrack),
	}
}

func (s *RemoteStream) ID() string   { return s.id }
func (s *RemoteStream) Peer() string { return s.peer }

// AddTrack registers an inbound track and returns its liveness record.
// Adding an id twice returns the existing record.
func (s *RemoteStream) AddTrack(id string, kind Kind, codec string) *RemoteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		return t
	}
	t := &RemoteTrack{id: id, kind: kind, codec: codec}
	s.tracks[id] = t
	return t
}

// Tracks returns the tracks ordered by kind then id.
func (s *RemoteStream) Tracks() []*RemoteTrack {
	s.mu.RLock()
	out := make([]*RemoteTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].kind != out[j].kind {
			return out[i].kind < out[j].kind
		}
		return out[i].id < out[j].id
	})
	return out
}

// Live reports whether any track of kind produced a packet recently.
func (s *RemoteStream) Live(kind Kind, now time.Time) bool {
	for _, t := range s.Tracks() {
		if t.kind == kind && !t.Stalled(now, StallAfter) {
			return true
		}
	}
	return false
}
