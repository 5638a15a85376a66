package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/Huddle/internal/chat"
	"github.com/BioHazard786/Huddle/internal/media"
)

// Options configures a Session.
type Options struct {
	Directory Directory
	Capturer  media.Capturer

	// Constraints selects the captured kinds. Zero means audio and video.
	Constraints media.Constraints

	// Slots lowers the room size below MaxSlots. Zero means MaxSlots.
	Slots        int
	ClaimTimeout time.Duration

	// PresenceSignal broadcasts mute and video toggles over data links.
	PresenceSignal bool

	Logger *zerolog.Logger
	Now    func() time.Time
}

// Session coordinates one participant's membership in a room: claiming a
// slot, linking to every other slot, relaying chat and tearing down.
type Session struct {
	opts Options
	log  zerolog.Logger
	chat chat.Log

	// sendMu keeps local echo order equal to per-link send order.
	sendMu sync.Mutex

	mu           sync.Mutex
	status       Status
	err          error
	gen          uint64
	muted        bool
	videoOff     bool
	identity     Identity
	peer         Peer
	stream       *media.LocalStream
	links        *linkSet
	participants Participants
	presence     map[string]Presence
	cancelJoin   context.CancelFunc
	stopLoop     chan struct{}
	loopDone     chan struct{}

	subs    map[int]chan State
	nextSub int
}

func New(opts Options) (*Session, error) {
	if opts.Directory == nil {
		return nil, errors.New("mesh: directory is required")
	}
	if opts.Capturer == nil {
		return nil, errors.New("mesh: capturer is required")
	}
	if opts.Slots < 0 || opts.Slots > MaxSlots {
		return nil, fmt.Errorf("mesh: slots must be between 1 and %d", MaxSlots)
	}
	if opts.Slots == 0 {
		opts.Slots = MaxSlots
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = DefaultClaimTimeout
	}
	if !opts.Constraints.Audio && !opts.Constraints.Video {
		opts.Constraints = media.Constraints{Audio: true, Video: true}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Session{
		opts:     opts,
		log:      logger.With().Str("component", "mesh").Logger(),
		status:   StatusDisconnected,
		presence: make(map[string]Presence),
		subs:     make(map[int]chan State),
	}, nil
}

// JoinRoom tears down any previous session, then acquires local media,
// claims a slot in roomID and links to every other slot. Per-link failures
// are logged and never fail the join.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	room, err := NormalizeRoom(roomID)
	if err != nil {
		return err
	}

	s.Disconnect()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	joinCtx, cancel := context.WithCancel(ctx)
	s.cancelJoin = cancel
	s.status = StatusConnecting
	s.err = nil
	s.publishLocked()
	s.mu.Unlock()
	defer cancel()

	logger := s.log.With().Str("room", room).Logger()

	stream, err := s.opts.Capturer.Acquire(joinCtx, s.opts.Constraints)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if stream != nil {
			stream.Stop()
		}
		return NewError("join", ErrJoinAborted)
	}
	if err != nil {
		return s.abortJoinLocked(ctx, joinError("acquire media", ErrMediaAcquisition, err))
	}
	s.stream = stream
	stream.SetEnabled(media.KindAudio, !s.muted)
	stream.SetEnabled(media.KindVideo, !s.videoOff)
	s.mu.Unlock()

	peer, id, err := ClaimSlot(joinCtx, s.opts.Directory, room, s.opts.Slots, s.opts.ClaimTimeout, logger)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if peer != nil {
			peer.Close()
		}
		return NewError("join", ErrJoinAborted)
	}
	if err != nil {
		return s.abortJoinLocked(ctx, err)
	}

	s.peer = peer
	s.identity = id
	s.links = newLinkSet()
	s.participants = Participants{}
	s.stopLoop = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.status = StatusConnected
	go s.loop(gen, peer, s.stopLoop, s.loopDone)
	s.publishLocked()
	s.mu.Unlock()

	logger.Info().Str("peer", id.PeerName()).Msg("joined room")
	s.dialAll(gen, peer, stream, id)
	return nil
}

// abortJoinLocked tears down a failed join and unlocks s.mu. Cancellation
// by the caller leaves the session disconnected; anything else is an error.
func (s *Session) abortJoinLocked(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		td := s.detachLocked(StatusDisconnected, nil)
		s.mu.Unlock()
		td.run(true)
		return joinError("join", ErrJoinAborted, err)
	}

	td := s.detachLocked(StatusError, err)
	s.mu.Unlock()
	td.run(true)
	s.log.Warn().Err(err).Msg("join failed")
	return err
}

// dialAll opens a media call and a data link to every other slot.
// Unoccupied slots fail through the substrate and are not retried.
func (s *Session) dialAll(gen uint64, peer Peer, stream *media.LocalStream, self Identity) {
	var g errgroup.Group
	g.SetLimit(MaxSlots)

	for slot := 0; slot < s.opts.Slots; slot++ {
		if slot == self.Slot {
			continue
		}
		remote := PeerName(self.Room, slot)
		g.Go(func() error {
			var errs []error
			if call, err := peer.Call(remote, stream); err != nil {
				errs = append(errs, NewPeerError("call", remote, err))
			} else {
				s.track(gen, remote, call.ID(), channelMedia, call, nil)
			}
			if conn, err := peer.Connect(remote); err != nil {
				errs = append(errs, NewPeerError("connect", remote, err))
			} else {
				s.track(gen, remote, conn.ID(), channelData, nil, conn)
			}
			return errors.Join(errs...)
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Debug().Err(err).Msg("dial failed")
	}
}

// track records an outbound channel. Handles that resolve after teardown
// are closed immediately.
func (s *Session) track(gen uint64, remote, id string, kind channelKind, call MediaCall, conn DataConn) {
	s.mu.Lock()
	var c *channel
	if s.gen == gen && s.links != nil {
		c = s.links.upsert(remote, id, kind)
	}
	if c == nil {
		s.mu.Unlock()
		if call != nil {
			call.Close()
		}
		if conn != nil {
			conn.Close()
		}
		return
	}
	if call != nil {
		c.call = call
	}
	if conn != nil {
		c.conn = conn
		if conn.Open() {
			c.state = channelOpen
		}
	}
	s.mu.Unlock()
}

// loop is the single dispatch point for substrate events of one generation.
func (s *Session) loop(gen uint64, peer Peer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	events := peer.Events()
	for {
		select {
		case <-stop:
			return
		case ev := <-events:
			if !s.dispatch(gen, ev) {
				return
			}
		}
	}
}

// dispatch applies ev and reports whether the loop should continue.
func (s *Session) dispatch(gen uint64, ev Event) bool {
	switch e := ev.(type) {
	case CallEvent:
		s.onCall(gen, e.Call)
	case ConnectionEvent:
		s.onConnection(gen, e.Conn)
	case StreamEvent:
		s.onStream(gen, e)
	case OpenEvent:
		s.onOpen(gen, e.Conn)
	case DataEvent:
		s.onData(gen, e)
	case CloseEvent:
		s.onClose(gen, e.Remote, e.LinkID)
	case ErrorEvent:
		if e.Fatal {
			s.fail(gen, e.Err)
			return false
		}
		s.onLinkError(gen, e)
	}
	return true
}

func (s *Session) onCall(gen uint64, call MediaCall) {
	s.mu.Lock()
	if s.gen != gen || s.links == nil {
		s.mu.Unlock()
		call.Close()
		return
	}
	stream := s.stream
	c := s.links.upsert(call.Remote(), call.ID(), channelMedia)
	if c != nil {
		c.call = call
	}
	s.mu.Unlock()

	if c == nil {
		call.Close()
		return
	}
	if err := call.Answer(stream); err != nil {
		s.log.Warn().Err(err).Str("peer", call.Remote()).Msg("answer call")
		s.onClose(gen, call.Remote(), call.ID())
	}
}

func (s *Session) onConnection(gen uint64, conn DataConn) {
	s.track(gen, conn.Remote(), conn.ID(), channelData, nil, conn)
	if conn.Open() {
		s.onOpen(gen, conn)
	}
}

func (s *Session) onStream(gen uint64, e StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.links == nil {
		return
	}
	c := s.links.upsert(e.Remote, e.LinkID, channelMedia)
	if c == nil {
		return
	}
	c.stream = e.Stream
	c.state = channelOpen
	s.log.Debug().Str("peer", e.Remote).Str("link", e.LinkID).Msg("remote stream")
	s.refreshLocked()
}

func (s *Session) onOpen(gen uint64, conn DataConn) {
	s.mu.Lock()
	if s.gen != gen || s.links == nil {
		s.mu.Unlock()
		return
	}
	c := s.links.upsert(conn.Remote(), conn.ID(), channelData)
	if c == nil {
		s.mu.Unlock()
		return
	}
	c.conn = conn
	c.state = channelOpen
	announce := s.opts.PresenceSignal
	muted, videoOff := s.muted, s.videoOff
	s.mu.Unlock()

	if announce {
		s.send([]DataConn{conn}, chat.PresencePayload(muted, videoOff))
	}
}

func (s *Session) onClose(gen uint64, remote, linkID string) {
	s.mu.Lock()
	if s.gen != gen || s.links == nil {
		s.mu.Unlock()
		return
	}
	c, gone := s.links.remove(remote, linkID)
	if gone {
		delete(s.presence, remote)
	}
	s.refreshLocked()
	s.mu.Unlock()

	if c != nil {
		c.close()
		s.log.Debug().Str("peer", remote).Str("link", linkID).Str("kind", c.kind.String()).Msg("link closed")
	}
}

func (s *Session) onLinkError(gen uint64, e ErrorEvent) {
	if errors.Is(e.Err, ErrPeerUnavailable) {
		s.log.Debug().Str("peer", e.Remote).Msg("slot unoccupied")
	} else {
		s.log.Warn().Err(NewPeerError("link", e.Remote, fmt.Errorf("%w: %w", ErrLinkFailed, e.Err))).Msg("link failed")
	}
	if e.LinkID != "" {
		s.onClose(gen, e.Remote, e.LinkID)
	}
}

// refreshLocked recomputes the participant view and publishes.
func (s *Session) refreshLocked() {
	s.participants = s.links.participants()
	s.publishLocked()
}

// fail tears the session down to StatusError. It runs on the dispatch
// goroutine, so it does not wait for the loop.
func (s *Session) fail(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	err := joinError("transport", ErrTransportFatal, cause)
	td := s.detachLocked(StatusError, err)
	s.mu.Unlock()

	s.log.Error().Err(err).Msg("session failed")
	td.run(false)
}

// Disconnect closes every link, releases the identity and stops local
// media. It is safe from any state, while a join is in flight, and more
// than once. The chat log is kept.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.status == StatusDisconnected && s.peer == nil && s.stream == nil && s.cancelJoin == nil {
		s.mu.Unlock()
		return
	}
	td := s.detachLocked(StatusDisconnected, nil)
	s.mu.Unlock()

	td.run(true)
	s.log.Debug().Msg("disconnected")
}

// teardown holds what a detached session still has to release.
type teardown struct {
	cancel   context.CancelFunc
	channels []*channel
	peer     Peer
	stream   *media.LocalStream
	stop     chan struct{}
	loopDone chan struct{}
}

// detachLocked invalidates the current generation and moves every resource
// into a teardown, publishing the resulting state.
func (s *Session) detachLocked(status Status, err error) *teardown {
	td := &teardown{
		cancel:   s.cancelJoin,
		peer:     s.peer,
		stream:   s.stream,
		stop:     s.stopLoop,
		loopDone: s.loopDone,
	}
	if s.links != nil {
		td.channels = s.links.drain()
	}

	s.gen++
	s.cancelJoin = nil
	s.peer = nil
	s.stream = nil
	s.links = nil
	s.stopLoop = nil
	s.loopDone = nil
	s.identity = Identity{}
	s.participants = Participants{}
	s.presence = make(map[string]Presence)
	s.status = status
	s.err = err
	s.publishLocked()
	return td
}

func (td *teardown) run(wait bool) {
	if td.cancel != nil {
		td.cancel()
	}
	if td.stop != nil {
		close(td.stop)
	}
	for _, c := range td.channels {
		c.close()
	}
	if td.peer != nil {
		td.peer.Close()
	}
	if td.stream != nil {
		td.stream.Stop()
	}
	if wait && td.loopDone != nil {
		<-td.loopDone
	}
}
