package media

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// Kind is the media kind of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// LocalTrack is one captured track. A disabled track keeps consuming its
// source at the native pace. Disabled audio sends Opus silence so the remote
// keeps receiving packets; disabled video sends nothing and the remote holds
// its last frame.
type LocalTrack struct {
	kind    Kind
	rtp     *webrtc.TrackLocalStaticSample
	source  Source
	enabled atomic.Bool
	stopped atomic.Bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewLocalTrack wraps a sample track. source may be nil for a track that
// never produces frames (e.g. a camera that is present but idle).
func NewLocalTrack(kind Kind, codec webrtc.RTPCodecCapability, streamID string, source Source) (*LocalTrack, error) {
	rtp, err := webrtc.NewTrackLocalStaticSample(codec, string(kind), streamID)
	if err != nil {
		return nil, err
	}

	t := &LocalTrack{
		kind:   kind,
		rtp:    rtp,
		source: source,
		done:   make(chan struct{}),
	}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) Kind() Kind { return t.kind }

func (t *LocalTrack) ID() string { return t.rtp.ID() }

// RTP returns the pion track to attach to a PeerConnection.
func (t *LocalTrack) RTP() webrtc.TrackLocal { return t.rtp }

func (t *LocalTrack) Enabled() bool { return t.enabled.Load() }

func (t *LocalTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *LocalTrack) Stopped() bool { return t.stopped.Load() }

// Start pumps the source into the track until Stop.
func (t *LocalTrack) Start() {
	if t.source == nil {
		return
	}
	go t.pump()
}

func (t *LocalTrack) pump() {
	for {
		sample, err := t.source.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Str("track", string(t.kind)).Msg("media source failed")
			}
			return
		}

		if out, ok := t.outgoing(sample); ok {
			if err := t.rtp.WriteSample(out); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				log.Debug().Err(err).Str("track", string(t.kind)).Msg("write sample")
			}
		}

		select {
		case <-t.done:
			return
		case <-time.After(sample.Duration):
		}
	}
}

// outgoing returns what the track sends in place of sample.
func (t *LocalTrack) outgoing(sample Sample) (Sample, bool) {
	switch {
	case t.Enabled():
		return sample, true
	case t.kind == KindAudio:
		return Sample{Data: opusSilence, Duration: sample.Duration}, true
	default:
		return Sample{}, false
	}
}

// Stop releases the track and its source. Safe to call more than once.
func (t *LocalTrack) Stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		close(t.done)
		if t.source != nil {
			t.source.Close()
		}
	})
}

// LocalStream is the local capture shared by every outbound link and the
// local preview. It is owned by one session and stopped exactly once.
type LocalStream struct {
	id     string
	tracks []*LocalTrack
}

func NewLocalStream(id string, tracks ...*LocalTrack) *LocalStream {
	if id == "" {
		id = uuid.NewString()
	}
	return &LocalStream{id: id, tracks: tracks}
}

func (s *LocalStream) ID() string { return s.id }

func (s *LocalStream) Tracks() []*LocalTrack {
	out := make([]*LocalTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// TracksOf returns the tracks of the given kind.
func (s *LocalStream) TracksOf(kind Kind) []*LocalTrack {
	var out []*LocalTrack
	for _, t := range s.tracks {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// SetEnabled gates every track of kind.
func (s *LocalStream) SetEnabled(kind Kind, enabled bool) {
	for _, t := range s.TracksOf(kind) {
		t.SetEnabled(enabled)
	}
}

func (s *LocalStream) Start() {
	for _, t := range s.tracks {
		t.Start()
	}
}

func (s *LocalStream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Stopped reports whether every track has been stopped.
func (s *LocalStream) Stopped() bool {
	for _, t := range s.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

// Sample is re-exported so sources do not need to import pion directly.
type Sample = pionmedia.Sample
