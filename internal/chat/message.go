package chat

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Sender distinguishes locally typed messages from relayed ones.
type Sender string

const (
	SenderLocal  Sender = "local"
	SenderRemote Sender = "remote"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 9
)

// Message is one entry of the chat log. Values are never modified after
// they are appended.
type Message struct {
	ID        string
	Sender    Sender
	From      string // remote identity, empty for local messages
	Text      string
	Timestamp time.Time
	Complete  bool
}

// NewID returns a short base-36 message id.
func NewID() string {
	return gonanoid.MustGenerate(idAlphabet, idLength)
}

// Local builds a message typed by the local user.
func Local(text string, at time.Time) Message {
	return Message{ID: NewID(), Sender: SenderLocal, Text: text, Timestamp: at, Complete: true}
}

// Remote builds a message received from identity from.
func Remote(from, text string, at time.Time) Message {
	return Message{ID: NewID(), Sender: SenderRemote, From: from, Text: text, Timestamp: at, Complete: true}
}

// Log is an append-only, insertion-ordered message log.
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

func (l *Log) Append(m Message) {
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()
}

// Messages returns a copy of the log in display order.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
