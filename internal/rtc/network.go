package rtc

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/mesh"
	"github.com/BioHazard786/Huddle/internal/signaling"
)

var errDirectoryGone = errors.New("directory closed the connection")

// Network registers peers on a directory server. Each registered peer
// holds its own websocket so that closing it releases exactly its name.
type Network struct {
	url      string
	resolve  bool
	settings Settings
	api      *webrtc.API
	log      zerolog.Logger
}

// NewNetwork prepares a Network talking to the directory at url. resolve
// enables DNS lookup with public resolver fallback.
func NewNetwork(url string, resolve bool, s Settings, logger zerolog.Logger) (*Network, error) {
	api, err := NewAPI(s)
	if err != nil {
		return nil, fmt.Errorf("build webrtc api: %w", err)
	}
	return &Network{
		url:      url,
		resolve:  resolve,
		settings: s,
		api:      api,
		log:      logger.With().Str("component", "rtc").Logger(),
	}, nil
}

// Register claims name. A name held by another client fails with
// mesh.ErrIdentityTaken; every other failure means the directory itself is
// unusable.
func (n *Network) Register(ctx context.Context, name string) (mesh.Peer, error) {
	client := signaling.NewClient(n.url, n.resolve)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	handler := signaling.NewHandler(client)
	go handler.Start()

	msg, err := signaling.NewMessage(signaling.MessageTypeRegister, signaling.RegisterPayload{ID: name})
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SendMessage(msg); err != nil {
		client.Close()
		return nil, err
	}

	select {
	case id, ok := <-handler.Open:
		if !ok {
			client.Close()
			return nil, errDirectoryGone
		}
		return newPeer(n, id, client, handler), nil

	case e, ok := <-handler.Error:
		client.Close()
		if !ok {
			return nil, errDirectoryGone
		}
		if e.Type == signaling.ErrorUnavailableID {
			return nil, mesh.ErrIdentityTaken
		}
		return nil, fmt.Errorf("register %s: %s: %s", name, e.Type, e.Error)

	case <-ctx.Done():
		client.Close()
		return nil, ctx.Err()
	}
}
