package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/mesh"
)

func TestLoadConfigRelay(t *testing.T) {
	cfg, err := LoadConfig(config.Options{ForceRelay: true, TURNServer: "turn:relay.example.org"})
	require.NoError(t, err)
	assert.True(t, cfg.ForceRelay)
	assert.NotEmpty(t, cfg.TURNServers())
}

func TestNewSession(t *testing.T) {
	cfg, err := LoadConfig(config.Options{Domain: "localhost:8080", Insecure: true})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WebSocketURL)

	s, err := NewSession(cfg, SessionOptions{NoVideo: true})
	require.NoError(t, err)
	assert.Equal(t, mesh.StatusDisconnected, s.Status())
	s.Disconnect()
}

func TestDescribeJoinError(t *testing.T) {
	err := describeJoinError("team", mesh.WrapError("join", mesh.ErrRoomFull, ""))
	assert.Contains(t, err.Error(), "full")

	err = describeJoinError("a b", mesh.NewError("join", mesh.ErrInvalidRoom))
	assert.Contains(t, err.Error(), "not a valid room name")

	plain := errors.New("other")
	assert.Same(t, plain, describeJoinError("team", plain))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["join"])
	assert.True(t, names["serve"])
}
