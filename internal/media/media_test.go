package media

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCapturerDefaults(t *testing.T) {
	c := &FileCapturer{}
	s, err := c.Acquire(context.Background(), Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	defer s.Stop()

	require.Len(t, s.Tracks(), 2)
	assert.Len(t, s.TracksOf(KindAudio), 1)
	assert.Len(t, s.TracksOf(KindVideo), 1)
	for _, tr := range s.Tracks() {
		assert.True(t, tr.Enabled())
		assert.False(t, tr.Stopped())
	}
}

func TestFileCapturerMissingFile(t *testing.T) {
	c := &FileCapturer{VideoFile: filepath.Join(t.TempDir(), "missing.ivf")}
	_, err := c.Acquire(context.Background(), Constraints{Audio: true, Video: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
}

func TestFileCapturerNothingRequested(t *testing.T) {
	_, err := (&FileCapturer{}).Acquire(context.Background(), Constraints{})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestFileCapturerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&FileCapturer{}).Acquire(ctx, Constraints{Audio: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStreamGateAndStop(t *testing.T) {
	audio, err := NewLocalTrack(KindAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "s", NewSilenceSource())
	require.NoError(t, err)
	video, err := NewLocalTrack(KindVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "s", nil)
	require.NoError(t, err)

	s := NewLocalStream("s", audio, video)
	s.Start()

	s.SetEnabled(KindAudio, false)
	assert.False(t, audio.Enabled())
	assert.True(t, video.Enabled())

	s.Stop()
	s.Stop()
	assert.True(t, s.Stopped())
}

func TestDisabledTrackOutgoing(t *testing.T) {
	audio, err := NewLocalTrack(KindAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "s", nil)
	require.NoError(t, err)
	video, err := NewLocalTrack(KindVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "s", nil)
	require.NoError(t, err)

	voice := Sample{Data: []byte{1, 2, 3, 4}, Duration: 20 * time.Millisecond}
	out, ok := audio.outgoing(voice)
	require.True(t, ok)
	assert.Equal(t, voice.Data, out.Data)

	audio.SetEnabled(false)
	out, ok = audio.outgoing(voice)
	require.True(t, ok)
	assert.Equal(t, opusSilence, out.Data)
	assert.Equal(t, voice.Duration, out.Duration)

	video.SetEnabled(false)
	_, ok = video.outgoing(Sample{Data: []byte{9}, Duration: time.Second / 30})
	assert.False(t, ok)
}

func TestSilenceSourceEOFAfterClose(t *testing.T) {
	src := NewSilenceSource()
	sample, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, sample.Duration)

	require.NoError(t, src.Close())
	_, err = src.Next()
	assert.Error(t, err)
}

func TestRemoteTrackStall(t *testing.T) {
	s := NewRemoteStream("stream", "room-1")
	tr := s.AddTrack("a", KindAudio, webrtc.MimeTypeOpus)
	assert.Same(t, tr, s.AddTrack("a", KindAudio, webrtc.MimeTypeOpus))

	now := time.Now()
	assert.True(t, tr.Stalled(now, StallAfter))
	assert.False(t, s.Live(KindAudio, now))

	tr.Observe(now)
	assert.False(t, tr.Stalled(now.Add(time.Second), StallAfter))
	assert.True(t, s.Live(KindAudio, now.Add(time.Second)))
	assert.True(t, tr.Stalled(now.Add(3*time.Second), StallAfter))
	assert.Equal(t, uint64(1), tr.Packets())
	assert.False(t, s.Live(KindVideo, now))
}
