package mesh

import (
	"github.com/BioHazard786/Huddle/internal/chat"
	"github.com/BioHazard786/Huddle/internal/media"
)

// ToggleMute flips the mute flag and gates the local audio tracks. It
// returns the new flag. The flag outlives the session.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	s.muted = !s.muted
	if s.stream != nil {
		s.stream.SetEnabled(media.KindAudio, !s.muted)
	}
	muted := s.muted
	conns := s.presenceTargetsLocked()
	s.publishLocked()
	s.mu.Unlock()

	s.announce(conns)
	return muted
}

// ToggleVideo flips the video-off flag and gates the local video tracks.
func (s *Session) ToggleVideo() bool {
	s.mu.Lock()
	s.videoOff = !s.videoOff
	if s.stream != nil {
		s.stream.SetEnabled(media.KindVideo, !s.videoOff)
	}
	videoOff := s.videoOff
	conns := s.presenceTargetsLocked()
	s.publishLocked()
	s.mu.Unlock()

	s.announce(conns)
	return videoOff
}

func (s *Session) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Session) IsVideoOff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOff
}

func (s *Session) presenceTargetsLocked() []DataConn {
	if !s.opts.PresenceSignal || s.links == nil {
		return nil
	}
	return s.links.openConns()
}

func (s *Session) announce(conns []DataConn) {
	if len(conns) == 0 {
		return
	}
	s.mu.Lock()
	p := chat.PresencePayload(s.muted, s.videoOff)
	s.mu.Unlock()
	s.send(conns, p)
}

// applyPresenceLocked records a remote presence announcement. Announcements
// from identities without a link are ignored.
func (s *Session) applyPresenceLocked(remote string, p chat.Payload) {
	if s.links == nil || !s.links.has(remote) {
		return
	}
	cur := s.presence[remote]
	if p.Muted != nil {
		cur.Muted = *p.Muted
	}
	if p.VideoOff != nil {
		cur.VideoOff = *p.VideoOff
	}
	s.presence[remote] = cur
}
