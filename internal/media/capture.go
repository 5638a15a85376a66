package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// ErrDeviceUnavailable is returned when a requested input cannot be opened.
var ErrDeviceUnavailable = errors.New("media device unavailable")

// Constraints selects which kinds to acquire.
type Constraints struct {
	Audio bool
	Video bool
}

// Capturer acquires the local capture stream. This is the single
// permission/device request a session makes.
type Capturer interface {
	Acquire(ctx context.Context, c Constraints) (*LocalStream, error)
}

// FileCapturer builds the local stream from media files: Ogg/Opus for audio
// and IVF (VP8/VP9) for video. Without an audio file it sends Opus silence;
// without a video file the video track exists but never produces frames.
type FileCapturer struct {
	AudioFile string
	VideoFile string
}

func (c *FileCapturer) Acquire(ctx context.Context, want Constraints) (*LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := uuid.NewString()
	var tracks []*LocalTrack
	release := func() {
		for _, t := range tracks {
			t.Stop()
		}
	}

	if want.Audio {
		var src Source = NewSilenceSource()
		if c.AudioFile != "" {
			ogg, err := OpenOgg(c.AudioFile)
			if err != nil {
				return nil, fmt.Errorf("%w: audio: %v", ErrDeviceUnavailable, err)
			}
			src = ogg
		}
		t, err := NewLocalTrack(KindAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, streamID, src)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("%w: audio: %v", ErrDeviceUnavailable, err)
		}
		tracks = append(tracks, t)
	}

	if want.Video {
		codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
		var src Source
		if c.VideoFile != "" {
			ivf, err := OpenIVF(c.VideoFile)
			if err != nil {
				release()
				return nil, fmt.Errorf("%w: video: %v", ErrDeviceUnavailable, err)
			}
			codec, src = ivf.Codec(), ivf
		}
		t, err := NewLocalTrack(KindVideo, codec, streamID, src)
		if err != nil {
			if src != nil {
				src.Close()
			}
			release()
			return nil, fmt.Errorf("%w: video: %v", ErrDeviceUnavailable, err)
		}
		tracks = append(tracks, t)
	}

	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no audio or video requested", ErrDeviceUnavailable)
	}

	s := NewLocalStream(streamID, tracks...)
	s.Start()
	return s, nil
}
