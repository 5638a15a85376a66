package mesh

import (
	"errors"
	"strings"

	"github.com/BioHazard786/Huddle/internal/chat"
)

// SendMessage appends text to the log as a local message, then sends it
// over every open data link. Links that are not open drop it.
func (s *Session) SendMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return NewError("send message", ErrEmptyMessage)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	s.chat.Append(chat.Local(text, s.opts.Now()))
	var conns []DataConn
	if s.links != nil {
		conns = s.links.openConns()
	}
	s.publishLocked()
	s.mu.Unlock()

	s.send(conns, chat.ChatPayload(text))
	return nil
}

// send writes p to every conn. Failures only affect that link.
func (s *Session) send(conns []DataConn, p chat.Payload) {
	if len(conns) == 0 {
		return
	}
	b, err := chat.Encode(p)
	if err != nil {
		s.log.Error().Err(err).Str("type", p.Type).Msg("encode payload")
		return
	}
	for _, conn := range conns {
		if err := conn.Send(b); err != nil {
			s.log.Debug().Err(NewPeerError("send", conn.Remote(), errors.Join(ErrLinkFailed, err))).Msg("payload dropped")
		}
	}
}

func (s *Session) onData(gen uint64, e DataEvent) {
	p, err := chat.Decode(e.Data)
	if err != nil {
		s.log.Debug().Err(err).Str("peer", e.Remote).Msg("payload ignored")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	// Our own echo must never come back as a remote message.
	if e.Remote == s.identity.PeerName() {
		return
	}

	switch p.Type {
	case chat.TypeChat:
		s.chat.Append(chat.Remote(e.Remote, p.Text, s.opts.Now()))
	case chat.TypePresence:
		s.applyPresenceLocked(e.Remote, p)
	}
	s.publishLocked()
}
