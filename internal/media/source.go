package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// Source produces paced samples for a LocalTrack. Next returns io.EOF once
// the source is closed.
type Source interface {
	Next() (Sample, error)
	Close() error
}

const opusFrame = 20 * time.Millisecond

// opusSilence is a single 20ms Opus frame encoding digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource emits Opus silence frames. It stands in for a microphone
// when no audio file is configured.
type SilenceSource struct {
	mu     sync.Mutex
	closed bool
}

func NewSilenceSource() *SilenceSource { return &SilenceSource{} }

func (s *SilenceSource) Next() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Sample{}, io.EOF
	}
	return Sample{Data: opusSilence, Duration: opusFrame}, nil
}

func (s *SilenceSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// OggSource replays an Ogg/Opus file in a loop.
type OggSource struct {
	path string

	mu          sync.Mutex
	file        *os.File
	reader      *oggreader.OggReader
	lastGranule uint64
	closed      bool
}

// OpenOgg validates the file header and returns a looping source.
func OpenOgg(path string) (*OggSource, error) {
	s := &OggSource{path: path}
	if err := s.rewind(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *OggSource) rewind() error {
	if s.file != nil {
		s.file.Close()
	}
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("read ogg header: %w", err)
	}
	s.file, s.reader, s.lastGranule = f, r, 0
	return nil
}

func (s *OggSource) Next() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if s.closed {
			return Sample{}, io.EOF
		}
		page, header, err := s.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if err := s.rewind(); err != nil {
				return Sample{}, err
			}
			continue
		}
		if err != nil {
			return Sample{}, err
		}

		samples := header.GranulePosition - s.lastGranule
		s.lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples)/48000*1000) * time.Millisecond
		return Sample{Data: page, Duration: duration}, nil
	}
	return Sample{}, io.EOF
}

func (s *OggSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// IVFSource replays a VP8/VP9 IVF file in a loop.
type IVFSource struct {
	path string

	mu       sync.Mutex
	file     *os.File
	reader   *ivfreader.IVFReader
	interval time.Duration
	fourcc   string
	closed   bool
}

func OpenIVF(path string) (*IVFSource, error) {
	s := &IVFSource{path: path}
	if err := s.rewind(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *IVFSource) rewind() error {
	if s.file != nil {
		s.file.Close()
	}
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	r, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("read ivf header: %w", err)
	}
	if header.TimebaseDenominator == 0 {
		f.Close()
		return errors.New("read ivf header: zero timebase")
	}
	s.file, s.reader, s.fourcc = f, r, header.FourCC
	s.interval = time.Duration(float64(header.TimebaseNumerator)/float64(header.TimebaseDenominator)*1000) * time.Millisecond
	return nil
}

// Codec maps the IVF FourCC to an RTP codec.
func (s *IVFSource) Codec() webrtc.RTPCodecCapability {
	if s.fourcc == "VP90" {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
}

func (s *IVFSource) Next() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if s.closed {
			return Sample{}, io.EOF
		}
		frame, _, err := s.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if err := s.rewind(); err != nil {
				return Sample{}, err
			}
			continue
		}
		if err != nil {
			return Sample{}, err
		}
		return Sample{Data: frame, Duration: s.interval}, nil
	}
	return Sample{}, io.EOF
}

func (s *IVFSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
