package signaling

import "github.com/rs/zerolog/log"

// Signal is a relayed signal together with the peer that sent it.
type Signal struct {
	Src     string
	Payload SignalPayload
}

// Handler routes incoming signaling messages to typed channels.
type Handler struct {
	client *Client
	Open   chan string
	Signal chan *Signal
	Error  chan *ErrorPayload
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client: client,
		Open:   make(chan string, 1),
		Signal: make(chan *Signal, 64),
		Error:  make(chan *ErrorPayload, 16),
	}
}

// Start routes messages until the client's incoming channel closes, then
// closes every handler channel.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case MessageTypeOpen:
			h.handleOpen(msg)
		case MessageTypeSignal:
			h.handleSignal(msg)
		case MessageTypeError:
			h.handleError(msg)
		default:
			log.Debug().Str("type", msg.Type).Msg("unknown signaling message")
		}
	}
}

func (h *Handler) handleOpen(msg *Message) {
	var p RegisterPayload
	if err := msg.DecodePayload(&p); err != nil {
		h.Error <- &ErrorPayload{Type: ErrorServer, Error: "malformed open payload"}
		return
	}
	h.Open <- p.ID
}

func (h *Handler) handleSignal(msg *Message) {
	var p SignalPayload
	if err := msg.DecodePayload(&p); err != nil || p.ConnectionID == "" {
		log.Debug().Str("src", msg.Src).Msg("malformed signal payload")
		return
	}
	h.Signal <- &Signal{Src: msg.Src, Payload: p}
}

func (h *Handler) handleError(msg *Message) {
	var p ErrorPayload
	if err := msg.DecodePayload(&p); err != nil {
		h.Error <- &ErrorPayload{Type: ErrorServer, Error: "unknown error from server"}
		return
	}
	h.Error <- &p
}

func (h *Handler) close() {
	close(h.Open)
	close(h.Signal)
	close(h.Error)
}
