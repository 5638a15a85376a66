package mesh

import (
	"github.com/BioHazard786/Huddle/internal/chat"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Presence is what a remote participant last announced about itself.
type Presence struct {
	Muted    bool
	VideoOff bool
}

// State is an immutable snapshot of a session.
type State struct {
	Status       Status
	Identity     Identity
	Participants Participants
	Presence     map[string]Presence
	Messages     []chat.Message
	Muted        bool
	VideoOff     bool
	Err          error
}

// snapshotLocked builds the current State. Callers hold s.mu.
func (s *Session) snapshotLocked() State {
	presence := make(map[string]Presence, len(s.presence))
	for k, v := range s.presence {
		presence[k] = v
	}
	return State{
		Status:       s.status,
		Identity:     s.identity,
		Participants: s.participants,
		Presence:     presence,
		Messages:     s.chat.Messages(),
		Muted:        s.muted,
		VideoOff:     s.videoOff,
		Err:          s.err,
	}
}

// publishLocked hands the current snapshot to every subscriber. A slow
// subscriber only ever sees the latest state.
func (s *Session) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	st := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// Subscribe returns a channel carrying the latest State, starting with the
// current one, and a func that cancels the subscription.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Participants() Participants {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants
}

func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Err returns the failure that moved the session to StatusError.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Messages() []chat.Message {
	return s.chat.Messages()
}
