package cmd

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/mesh"
	"github.com/BioHazard786/Huddle/internal/rtc"
)

// LoadConfig loads client configuration and rejects combinations that can
// never connect.
func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, mesh.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.TURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// SessionOptions are the join flags that shape the session rather than the
// network.
type SessionOptions struct {
	NoVideo bool
}

// NewSession wires a mesh session to the directory and pion.
func NewSession(cfg *config.Config, opts SessionOptions) (*mesh.Session, error) {
	network, err := rtc.NewNetwork(cfg.WebSocketURL, true, rtc.SettingsFromConfig(cfg), log.Logger)
	if err != nil {
		return nil, mesh.NewError("create network", err)
	}

	want := media.Constraints{Audio: true, Video: !opts.NoVideo}
	return mesh.New(mesh.Options{
		Directory:      network,
		Capturer:       &media.FileCapturer{AudioFile: cfg.AudioFile, VideoFile: cfg.VideoFile},
		Constraints:    want,
		ClaimTimeout:   cfg.ClaimTimeout,
		PresenceSignal: true,
		Logger:         &log.Logger,
	})
}

// describeJoinError turns join failures into something a user can act on.
func describeJoinError(room string, err error) error {
	switch {
	case errors.Is(err, mesh.ErrRoomFull):
		return fmt.Errorf("room %q is full (%d participants max)", room, mesh.MaxSlots)
	case errors.Is(err, mesh.ErrInvalidRoom):
		return fmt.Errorf("%q is not a valid room name: use letters, digits, '-' or '_'", room)
	case errors.Is(err, mesh.ErrMediaAcquisition):
		return fmt.Errorf("could not open local media: %w", err)
	case errors.Is(err, mesh.ErrTransportFatal):
		return fmt.Errorf("could not reach the directory server: %w", err)
	default:
		return err
	}
}
