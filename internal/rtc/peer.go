package rtc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/mesh"
	"github.com/BioHazard786/Huddle/internal/signaling"
)

const eventBuffer = 256

// peer is a registered name on the directory with the WebRTC links that
// hang off it.
type peer struct {
	net     *Network
	id      string
	client  *signaling.Client
	handler *signaling.Handler
	log     zerolog.Logger

	events    chan mesh.Event
	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once

	mu    sync.Mutex
	links map[string]*link
}

func newPeer(n *Network, id string, client *signaling.Client, handler *signaling.Handler) *peer {
	p := &peer{
		net:     n,
		id:      id,
		client:  client,
		handler: handler,
		log:     n.log.With().Str("peer", id).Logger(),
		events:  make(chan mesh.Event, eventBuffer),
		done:    make(chan struct{}),
		links:   make(map[string]*link),
	}
	go p.route()
	return p
}

func (p *peer) ID() string { return p.id }

func (p *peer) Events() <-chan mesh.Event { return p.events }

func (p *peer) emit(ev mesh.Event) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

// Call opens a media link to remote, offering the tracks of stream.
func (p *peer) Call(remote string, stream *media.LocalStream) (mesh.MediaCall, error) {
	l, err := p.newLink(uuid.NewString(), remote, signaling.LinkMedia)
	if err != nil {
		return nil, err
	}
	if err := l.addStream(stream); err != nil {
		l.Close()
		return nil, err
	}
	if err := l.offer(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Connect opens a data link to remote.
func (p *peer) Connect(remote string) (mesh.DataConn, error) {
	l, err := p.newLink(uuid.NewString(), remote, signaling.LinkData)
	if err != nil {
		return nil, err
	}
	dc, err := l.pc.CreateDataChannel("chat", nil)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	l.attachChannel(dc)
	if err := l.offer(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (p *peer) newLink(id, remote, linkType string) (*link, error) {
	if p.closing.Load() {
		return nil, signaling.ErrClosed
	}
	pc, err := p.net.api.NewPeerConnection(p.net.settings.Configuration())
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	l := &link{
		peer:     p,
		id:       id,
		remote:   remote,
		linkType: linkType,
		pc:       pc,
		log:      p.log.With().Str("remote", remote).Str("link", id).Logger(),
	}
	l.wire()

	p.mu.Lock()
	p.links[id] = l
	p.mu.Unlock()
	return l, nil
}

func (p *peer) link(id string) *link {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links[id]
}

func (p *peer) forget(id string) {
	p.mu.Lock()
	delete(p.links, id)
	p.mu.Unlock()
}

func (p *peer) signal(remote string, payload signaling.SignalPayload) error {
	msg, err := signaling.NewMessage(signaling.MessageTypeSignal, payload)
	if err != nil {
		return err
	}
	msg.Dst = remote
	return p.client.SendMessage(msg)
}

// route feeds directory traffic to the links until the handler closes.
func (p *peer) route() {
	for {
		select {
		case s, ok := <-p.handler.Signal:
			if !ok {
				p.lost()
				return
			}
			p.handleSignal(s)

		case e, ok := <-p.handler.Error:
			if !ok {
				p.lost()
				return
			}
			p.handleError(e)

		case id, ok := <-p.handler.Open:
			if !ok {
				p.lost()
				return
			}
			p.log.Debug().Str("id", id).Msg("duplicate open")

		case <-p.done:
			return
		}
	}
}

func (p *peer) lost() {
	if p.closing.Load() {
		return
	}
	p.emit(mesh.ErrorEvent{Err: errDirectoryGone, Fatal: true})
}

func (p *peer) handleSignal(s *signaling.Signal) {
	pl := s.Payload
	l := p.link(pl.ConnectionID)

	if l == nil {
		if pl.Kind != signaling.KindOffer {
			p.log.Debug().Str("src", s.Src).Str("kind", pl.Kind).Msg("signal for unknown link")
			return
		}
		p.inbound(s.Src, pl)
		return
	}

	if l.remote != s.Src {
		p.log.Warn().Str("src", s.Src).Str("link", l.id).Msg("signal from unexpected peer")
		return
	}

	switch pl.Kind {
	case signaling.KindAnswer:
		if err := l.accept(pl.SDP); err != nil {
			l.fail(err)
		}
	case signaling.KindCandidate:
		if pl.Candidate != nil {
			l.addRemoteCandidate(*pl.Candidate)
		}
	case signaling.KindBye:
		l.terminate(false, true)
	default:
		p.log.Debug().Str("kind", pl.Kind).Msg("unexpected signal")
	}
}

func (p *peer) inbound(src string, pl signaling.SignalPayload) {
	l, err := p.newLink(pl.ConnectionID, src, pl.LinkType)
	if err != nil {
		p.log.Warn().Err(err).Str("remote", src).Msg("inbound link")
		return
	}

	switch pl.LinkType {
	case signaling.LinkMedia:
		l.mu.Lock()
		l.pendingOffer = pl.SDP
		l.mu.Unlock()
		p.emit(mesh.CallEvent{Call: l})

	case signaling.LinkData:
		p.emit(mesh.ConnectionEvent{Conn: l})
		if err := l.answer(pl.SDP); err != nil {
			l.fail(err)
		}

	default:
		l.terminate(true, false)
	}
}

func (p *peer) handleError(e *signaling.ErrorPayload) {
	switch e.Type {
	case signaling.ErrorPeerUnavailable:
		if l := p.link(e.ConnectionID); l != nil {
			l.terminate(false, false)
			p.emit(mesh.ErrorEvent{Remote: l.remote, LinkID: l.id, Err: mesh.ErrPeerUnavailable})
		}
	default:
		p.log.Warn().Str("type", e.Type).Str("error", e.Error).Msg("directory error")
	}
}

// Close says bye on every link, leaves the directory and drops the
// websocket, which releases the name.
func (p *peer) Close() error {
	p.closeOnce.Do(func() {
		p.closing.Store(true)

		p.mu.Lock()
		links := make([]*link, 0, len(p.links))
		for _, l := range p.links {
			links = append(links, l)
		}
		p.mu.Unlock()

		for _, l := range links {
			l.terminate(true, false)
		}

		if msg, err := signaling.NewMessage(signaling.MessageTypeLeave, nil); err == nil {
			if err := p.client.SendMessage(msg); err != nil && !errors.Is(err, signaling.ErrClosed) {
				p.log.Debug().Err(err).Msg("send leave")
			}
		}
		close(p.done)
		p.client.Close()
	})
	return nil
}
