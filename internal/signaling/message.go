package signaling

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Message is the envelope for every websocket frame between a peer and the
// directory.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Dst names the target of a signal. Src is stamped by the directory on
	// relay and ignored when sent by a peer.
	Dst string `json:"dst,omitempty"`
	Src string `json:"src,omitempty"`
}

// Message type constants.
const (
	MessageTypeRegister = "register"
	MessageTypeSignal   = "signal"
	MessageTypeLeave    = "leave"

	MessageTypeOpen  = "open"
	MessageTypeError = "error"
)

// Error types carried in ErrorPayload.Type.
const (
	ErrorUnavailableID   = "unavailable-id"
	ErrorInvalidID       = "invalid-id"
	ErrorPeerUnavailable = "peer-unavailable"
	ErrorNotRegistered   = "not-registered"
	ErrorServer          = "server-error"
)

// Link types and signal kinds.
const (
	LinkMedia = "media"
	LinkData  = "data"

	KindOffer     = "offer"
	KindAnswer    = "answer"
	KindCandidate = "candidate"
	KindBye       = "bye"
)

// RegisterPayload claims a peer name. The same shape confirms it in an
// open message.
type RegisterPayload struct {
	ID string `json:"id"`
}

// SignalPayload carries SDP or ICE for one link between two peers.
type SignalPayload struct {
	ConnectionID string                   `json:"connection_id"`
	LinkType     string                   `json:"link_type"`
	Kind         string                   `json:"kind"`
	SDP          string                   `json:"sdp,omitempty"`
	Candidate    *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// ErrorPayload represents error messages from the directory.
type ErrorPayload struct {
	Type         string `json:"type"`
	Error        string `json:"error,omitempty"`
	Peer         string `json:"peer,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// NewMessage builds a message with payload marshalled to JSON.
func NewMessage(t string, payload any) (*Message, error) {
	msg := &Message{Type: t}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = b
	}
	return msg, nil
}

// DecodePayload decodes the message payload into v.
func (m *Message) DecodePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}
