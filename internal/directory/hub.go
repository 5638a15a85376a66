package directory

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/signaling"
)

// Peer names follow the same grammar as room ids plus a slot suffix.
var peerIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:[_-][a-z0-9]+)*$`)

const registryTimeout = 3 * time.Second

type envelope struct {
	client *Client
	msg    *signaling.Message
}

// HubOptions configures a Hub.
type HubOptions struct {
	Registry Registry
	// Relay is optional; without it signals only reach local peers.
	Relay    Relay
	Instance string
	// RefreshEvery is how often local claims are refreshed. Zero disables.
	RefreshEvery time.Duration
	Logger       zerolog.Logger
}

// Hub owns every peer name held by this instance. All state is touched
// from the Run goroutine only.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan envelope
	ready      chan struct{}
	done       chan struct{}

	clients  map[*Client]struct{}
	peers    map[string]*Client
	registry Registry
	relay    Relay
	instance string
	refresh  time.Duration
	log      zerolog.Logger
}

func NewHub(opts HubOptions) *Hub {
	if opts.Registry == nil {
		opts.Registry = NewMemoryRegistry()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan envelope),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		peers:      make(map[string]*Client),
		registry:   opts.Registry,
		relay:      opts.Relay,
		instance:   opts.Instance,
		refresh:    opts.RefreshEvery,
		log:        opts.Logger.With().Str("component", "hub").Str("instance", opts.Instance).Logger(),
	}
}

// Ready is closed once Run is accepting clients.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Run processes clients until ctx ends, then releases every local claim.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	var relayed <-chan *signaling.Message
	if h.relay != nil {
		ch, err := h.relay.Subscribe(ctx, h.instance)
		if err != nil {
			return err
		}
		relayed = ch
	}

	var tick <-chan time.Time
	if h.refresh > 0 {
		ticker := time.NewTicker(h.refresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	close(h.ready)

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.log.Debug().Str("remote", client.conn.RemoteAddr().String()).Msg("client connected")

		case client := <-h.unregister:
			h.release(client)
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case env := <-h.inbound:
			h.handle(env.client, env.msg)

		case msg, ok := <-relayed:
			if !ok {
				relayed = nil
				h.log.Warn().Msg("relay subscription ended")
				continue
			}
			h.deliverRelayed(msg)

		case <-tick:
			h.refreshClaims()
		}
	}
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeRegister:
		h.handleRegister(c, msg)
	case signaling.MessageTypeSignal:
		h.handleSignal(c, msg)
	case signaling.MessageTypeLeave:
		h.release(c)
	default:
		h.log.Debug().Str("type", msg.Type).Msg("unknown message type")
	}
}

func (h *Hub) handleRegister(c *Client, msg *signaling.Message) {
	var p signaling.RegisterPayload
	if err := msg.DecodePayload(&p); err != nil || !peerIDPattern.MatchString(p.ID) {
		h.sendError(c, signaling.ErrorPayload{Type: signaling.ErrorInvalidID, Error: "invalid peer id"})
		return
	}
	if c.name != "" {
		h.sendError(c, signaling.ErrorPayload{Type: signaling.ErrorInvalidID, Error: "already registered as " + c.name})
		return
	}
	if _, local := h.peers[p.ID]; local {
		h.sendError(c, signaling.ErrorPayload{Type: signaling.ErrorUnavailableID, Error: "id is taken", Peer: p.ID})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	ok, err := h.registry.Claim(ctx, p.ID, h.instance)
	if err != nil {
		h.log.Error().Err(err).Str("peer", p.ID).Msg("claim failed")
		h.sendError(c, signaling.ErrorPayload{Type: signaling.ErrorServer, Error: "registry unavailable"})
		return
	}
	if !ok {
		h.sendError(c, signaling.ErrorPayload{Type: signaling.ErrorUnavailableID, Error: "id is taken", Peer: p.ID})
		return
	}

	c.name = p.ID
	h.peers[p.ID] = c
	h.log.Debug().Str("peer", p.ID).Msg("peer registered")

	reply, _ := signaling.NewMessage(signaling.MessageTypeOpen, p)
	h.send(c, reply)
}

func (h *Hub) handleSignal(c *Client, msg *signaling.Message) {
	if c.name == "" {
		h.sendError(c, signaling.ErrorPayload{Type: signaling.ErrorNotRegistered, Error: "register before signaling"})
		return
	}

	dst := msg.Dst
	out := &signaling.Message{Type: signaling.MessageTypeSignal, Payload: msg.Payload, Dst: dst, Src: c.name}

	if target, ok := h.peers[dst]; ok {
		h.send(target, out)
		return
	}

	if h.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		defer cancel()
		owner, err := h.registry.Owner(ctx, dst)
		if err != nil {
			h.log.Warn().Err(err).Str("peer", dst).Msg("owner lookup failed")
		} else if owner != "" && owner != h.instance {
			if err := h.relay.Publish(ctx, owner, out); err != nil {
				h.log.Warn().Err(err).Str("peer", dst).Msg("relay publish failed")
			} else {
				return
			}
		}
	}

	var sp signaling.SignalPayload
	msg.DecodePayload(&sp)
	h.sendError(c, signaling.ErrorPayload{
		Type:         signaling.ErrorPeerUnavailable,
		Error:        "peer is not connected",
		Peer:         dst,
		ConnectionID: sp.ConnectionID,
	})
}

// deliverRelayed hands a signal published by another instance to its
// local destination.
func (h *Hub) deliverRelayed(msg *signaling.Message) {
	target, ok := h.peers[msg.Dst]
	if !ok {
		h.log.Debug().Str("peer", msg.Dst).Msg("relayed signal for unknown peer")
		return
	}
	h.send(target, msg)
}

func (h *Hub) release(c *Client) {
	if c.name == "" {
		return
	}
	name := c.name
	c.name = ""
	if h.peers[name] == c {
		delete(h.peers, name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	if err := h.registry.Release(ctx, name, h.instance); err != nil {
		h.log.Warn().Err(err).Str("peer", name).Msg("release failed")
	}
	h.log.Debug().Str("peer", name).Msg("peer released")
}

func (h *Hub) refreshClaims() {
	if len(h.peers) == 0 {
		return
	}
	names := make([]string, 0, len(h.peers))
	for name := range h.peers {
		names = append(names, name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	if err := h.registry.Refresh(ctx, h.instance, names); err != nil {
		h.log.Warn().Err(err).Int("peers", len(names)).Msg("refresh failed")
	}
}

// shutdown releases every claim and closes every connection. Pumps that
// are still running see done and stop talking to the hub.
func (h *Hub) shutdown() {
	close(h.done)
	for name := range h.peers {
		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		if err := h.registry.Release(ctx, name, h.instance); err != nil {
			h.log.Warn().Err(err).Str("peer", name).Msg("release failed")
		}
		cancel()
	}
	for c := range h.clients {
		c.name = ""
		close(c.send)
	}
	h.peers = make(map[string]*Client)
	h.clients = make(map[*Client]struct{})
}

// Register hands a new connection to the hub. It reports false once the
// hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// send never blocks the hub; a client that cannot keep up loses the message
// and is disconnected by its own pumps timing out.
func (h *Hub) send(c *Client, msg *signaling.Message) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn().Str("peer", c.name).Msg("send buffer full, dropping message")
	}
}

func (h *Hub) sendError(c *Client, p signaling.ErrorPayload) {
	msg, err := signaling.NewMessage(signaling.MessageTypeError, p)
	if err != nil {
		return
	}
	h.send(c, msg)
}
