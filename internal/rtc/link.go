package rtc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/mesh"
	"github.com/BioHazard786/Huddle/internal/signaling"
)

var (
	errNotMedia   = errors.New("not a media link")
	errNoOffer    = errors.New("no offer to answer")
	errLinkClosed = errors.New("link closed")
	errNotOpen    = errors.New("data channel not open")
)

// link is one PeerConnection to a remote peer. It serves as a MediaCall or
// a DataConn depending on linkType.
type link struct {
	peer     *peer
	id       string
	remote   string
	linkType string
	pc       *webrtc.PeerConnection
	log      zerolog.Logger

	mu           sync.Mutex
	closed       bool
	dc           *webrtc.DataChannel
	pendingOffer string
	signalled    bool
	remoteSet    bool
	localCands   []webrtc.ICECandidateInit
	remoteCands  []webrtc.ICECandidateInit
	stream       *media.RemoteStream
	streamed     bool
}

func (l *link) ID() string     { return l.id }
func (l *link) Remote() string { return l.remote }

func (l *link) wire() {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		l.addLocalCandidate(c.ToJSON())
	})

	l.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l.log.Debug().Str("state", state.String()).Msg("connection state")
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if l.linkType == signaling.LinkMedia {
				l.announceStream()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			l.terminate(false, true)
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		l.onTrack(track, receiver)
	})

	l.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		l.attachChannel(dc)
	})
}

func (l *link) attachChannel(dc *webrtc.DataChannel) {
	l.mu.Lock()
	if l.dc != nil || l.closed {
		l.mu.Unlock()
		dc.Close()
		return
	}
	l.dc = dc
	l.mu.Unlock()

	dc.OnOpen(func() {
		l.peer.emit(mesh.OpenEvent{Conn: l})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		l.peer.emit(mesh.DataEvent{Remote: l.remote, LinkID: l.id, Data: msg.Data})
	})
	dc.OnClose(func() {
		l.terminate(false, true)
	})
}

// remoteStream returns the stream received over this link, creating it on
// first use. announce is true exactly once per link.
func (l *link) remoteStream() (stream *media.RemoteStream, announce bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stream == nil {
		l.stream = media.NewRemoteStream(l.id, l.remote)
	}
	announce = !l.streamed && !l.closed
	l.streamed = true
	return l.stream, announce
}

// announceStream reports the remote stream once the media link connects.
// The tracks come from the negotiated transceivers, so a remote that is
// muted or has no camera is announced before any packet arrives.
func (l *link) announceStream() {
	stream, announce := l.remoteStream()
	for _, tr := range l.pc.GetTransceivers() {
		receiver := tr.Receiver()
		if receiver == nil || tr.Mid() == "" || !receiving(tr.Direction()) {
			continue
		}
		codec := ""
		if codecs := receiver.GetParameters().Codecs; len(codecs) > 0 {
			codec = codecs[0].MimeType
		}
		stream.AddTrack(tr.Mid(), kindOf(tr.Kind()), codec)
	}
	if announce {
		l.log.Debug().Int("tracks", len(stream.Tracks())).Msg("remote stream")
		l.peer.emit(mesh.StreamEvent{Remote: l.remote, LinkID: l.id, Stream: stream})
	}
}

func receiving(d webrtc.RTPTransceiverDirection) bool {
	return d == webrtc.RTPTransceiverDirectionSendrecv || d == webrtc.RTPTransceiverDirectionRecvonly
}

func kindOf(k webrtc.RTPCodecType) media.Kind {
	if k == webrtc.RTPCodecTypeAudio {
		return media.KindAudio
	}
	return media.KindVideo
}

func (l *link) onTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	kind := kindOf(track.Kind())
	id := track.ID()
	if tr := receiver.RTPTransceiver(); tr != nil && tr.Mid() != "" {
		id = tr.Mid()
	}

	stream, announce := l.remoteStream()
	rt := stream.AddTrack(id, kind, track.Codec().MimeType)
	if announce {
		l.peer.emit(mesh.StreamEvent{Remote: l.remote, LinkID: l.id, Stream: stream})
	}

	l.log.Debug().Str("kind", string(kind)).Str("codec", rt.Codec()).Msg("remote track")
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
		rt.Observe(time.Now())
	}
}

// addStream attaches the local tracks. Without a stream the link still
// receives audio and video.
func (l *link) addStream(stream *media.LocalStream) error {
	if stream == nil || len(stream.Tracks()) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := l.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
		return nil
	}

	for _, t := range stream.Tracks() {
		sender, err := l.pc.AddTrack(t.RTP())
		if err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (l *link) offer() error {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	if err := l.send(signaling.KindOffer, offer.SDP, nil); err != nil {
		return err
	}
	l.flushLocal()
	return nil
}

// Answer accepts an inbound call and sends stream back.
func (l *link) Answer(stream *media.LocalStream) error {
	if l.linkType != signaling.LinkMedia {
		return errNotMedia
	}
	l.mu.Lock()
	sdp := l.pendingOffer
	l.pendingOffer = ""
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return errLinkClosed
	}
	if sdp == "" {
		return errNoOffer
	}

	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if err := l.addStream(stream); err != nil {
		return err
	}
	l.flushRemote()
	return l.reply()
}

func (l *link) answer(sdp string) error {
	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	l.flushRemote()
	return l.reply()
}

func (l *link) reply() error {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	if err := l.send(signaling.KindAnswer, answer.SDP, nil); err != nil {
		return err
	}
	l.flushLocal()
	return nil
}

// accept applies the remote answer to an outbound link.
func (l *link) accept(sdp string) error {
	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	l.flushRemote()
	return nil
}

// Local candidates wait until our description has been sent.
func (l *link) addLocalCandidate(c webrtc.ICECandidateInit) {
	l.mu.Lock()
	if !l.signalled {
		l.localCands = append(l.localCands, c)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	if err := l.send(signaling.KindCandidate, "", &c); err != nil {
		l.log.Debug().Err(err).Msg("send candidate")
	}
}

func (l *link) flushLocal() {
	l.mu.Lock()
	l.signalled = true
	queued := l.localCands
	l.localCands = nil
	l.mu.Unlock()

	for i := range queued {
		if err := l.send(signaling.KindCandidate, "", &queued[i]); err != nil {
			l.log.Debug().Err(err).Msg("send candidate")
			return
		}
	}
}

// Remote candidates wait until the remote description is set.
func (l *link) addRemoteCandidate(c webrtc.ICECandidateInit) {
	l.mu.Lock()
	if !l.remoteSet {
		l.remoteCands = append(l.remoteCands, c)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	if err := l.pc.AddICECandidate(c); err != nil {
		l.log.Debug().Err(err).Msg("add candidate")
	}
}

func (l *link) flushRemote() {
	l.mu.Lock()
	l.remoteSet = true
	queued := l.remoteCands
	l.remoteCands = nil
	l.mu.Unlock()

	for _, c := range queued {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.log.Debug().Err(err).Msg("add candidate")
		}
	}
}

func (l *link) send(kind, sdp string, c *webrtc.ICECandidateInit) error {
	return l.peer.signal(l.remote, signaling.SignalPayload{
		ConnectionID: l.id,
		LinkType:     l.linkType,
		Kind:         kind,
		SDP:          sdp,
		Candidate:    c,
	})
}

// Open reports whether the data channel can carry payloads.
func (l *link) Open() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && l.dc != nil && l.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (l *link) Send(data []byte) error {
	l.mu.Lock()
	dc, closed := l.dc, l.closed
	l.mu.Unlock()
	if closed {
		return errLinkClosed
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errNotOpen
	}
	return dc.Send(data)
}

// Close tears the link down and tells the remote.
func (l *link) Close() error {
	l.terminate(true, false)
	return nil
}

// fail reports a negotiation error for this link.
func (l *link) fail(err error) {
	l.log.Warn().Err(err).Msg("negotiation failed")
	l.terminate(true, false)
	l.peer.emit(mesh.ErrorEvent{Remote: l.remote, LinkID: l.id, Err: err})
}

// terminate closes the PeerConnection once. bye tells the remote; notify
// emits a CloseEvent for closes the owner did not ask for.
func (l *link) terminate(bye, notify bool) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	dc := l.dc
	l.mu.Unlock()

	l.peer.forget(l.id)
	if bye {
		if err := l.send(signaling.KindBye, "", nil); err != nil {
			l.log.Debug().Err(err).Msg("send bye")
		}
	}
	if dc != nil {
		dc.Close()
	}
	if err := l.pc.Close(); err != nil {
		l.log.Debug().Err(err).Msg("close peer connection")
	}
	if notify {
		l.peer.emit(mesh.CloseEvent{Remote: l.remote, LinkID: l.id})
	}
}
