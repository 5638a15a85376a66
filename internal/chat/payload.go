package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Payload types carried on data links.
const (
	TypeChat     = "chat"
	TypePresence = "presence"
)

var ErrUnknownPayload = errors.New("unknown payload type")

// Payload is the envelope exchanged over a data link. Presence fields are
// pointers so an absent flag is distinguishable from false.
type Payload struct {
	Type     string `msgpack:"type" json:"type"`
	Text     string `msgpack:"text,omitempty" json:"text,omitempty"`
	Muted    *bool  `msgpack:"muted,omitempty" json:"muted,omitempty"`
	VideoOff *bool  `msgpack:"videoOff,omitempty" json:"videoOff,omitempty"`
}

// ChatPayload builds a chat envelope.
func ChatPayload(text string) Payload {
	return Payload{Type: TypeChat, Text: text}
}

// PresencePayload builds a presence envelope.
func PresencePayload(muted, videoOff bool) Payload {
	return Payload{Type: TypePresence, Muted: &muted, VideoOff: &videoOff}
}

// Encode serializes p with MessagePack.
func Encode(p Payload) ([]byte, error) {
	return msgpack.Marshal(&p)
}

// Decode parses a data-link frame. MessagePack is tried first; peers that
// serialize JSON are accepted too.
func Decode(b []byte) (Payload, error) {
	var p Payload
	if len(b) == 0 {
		return p, errors.New("empty payload")
	}
	if b[0] == '{' {
		if err := json.Unmarshal(b, &p); err != nil {
			return Payload{}, fmt.Errorf("decode json payload: %w", err)
		}
	} else if err := msgpack.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("decode msgpack payload: %w", err)
	}

	switch p.Type {
	case TypeChat, TypePresence:
		return p, nil
	default:
		return p, fmt.Errorf("%w: %q", ErrUnknownPayload, p.Type)
	}
}
