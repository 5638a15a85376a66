package rtc

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/directory"
	"github.com/BioHazard786/Huddle/internal/mesh"
)

func startDirectory(t *testing.T) string {
	t.Helper()
	hub := directory.NewHub(directory.HubOptions{
		Registry: directory.NewMemoryRegistry(),
		Instance: "test",
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	<-hub.Ready()

	srv := httptest.NewServer(directory.NewRouter(hub, config.WebSocketConfig{
		WriteWait:      time.Second,
		PongWait:       10 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     64,
	}, zerolog.Nop()))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func newTestNetwork(t *testing.T) *Network {
	t.Helper()
	n, err := NewNetwork(startDirectory(t), false, Settings{IncludeLoopback: true}, zerolog.Nop())
	require.NoError(t, err)
	return n
}

func nextEvent[T mesh.Event](t *testing.T, p mesh.Peer) T {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-p.Events():
			if e, ok := ev.(T); ok {
				return e
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestRegisterExclusive(t *testing.T) {
	n := newTestNetwork(t)
	ctx := context.Background()

	p, err := n.Register(ctx, "room-0")
	require.NoError(t, err)
	assert.Equal(t, "room-0", p.ID())

	_, err = n.Register(ctx, "room-0")
	assert.ErrorIs(t, err, mesh.ErrIdentityTaken)

	require.NoError(t, p.Close())
	require.Eventually(t, func() bool {
		again, err := n.Register(ctx, "room-0")
		if err != nil {
			return false
		}
		again.Close()
		return true
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRegisterCancelled(t *testing.T) {
	n := newTestNetwork(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.Register(ctx, "room-0")
	assert.Error(t, err)
}

func TestConnectUnoccupiedSlot(t *testing.T) {
	n := newTestNetwork(t)
	p, err := n.Register(context.Background(), "room-0")
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Connect("room-4")
	require.NoError(t, err)

	ev := nextEvent[mesh.ErrorEvent](t, p)
	assert.False(t, ev.Fatal)
	assert.Equal(t, "room-4", ev.Remote)
	assert.Equal(t, conn.ID(), ev.LinkID)
	assert.ErrorIs(t, ev.Err, mesh.ErrPeerUnavailable)
}

func TestDataLinkLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("establishes real ICE sessions")
	}
	n := newTestNetwork(t)
	ctx := context.Background()

	a, err := n.Register(ctx, "room-0")
	require.NoError(t, err)
	defer a.Close()
	b, err := n.Register(ctx, "room-1")
	require.NoError(t, err)
	defer b.Close()

	conn, err := a.Connect("room-1")
	require.NoError(t, err)

	inbound := nextEvent[mesh.ConnectionEvent](t, b)
	assert.Equal(t, "room-0", inbound.Conn.Remote())
	assert.Equal(t, conn.ID(), inbound.Conn.ID())

	nextEvent[mesh.OpenEvent](t, a)
	require.True(t, conn.Open())
	require.NoError(t, conn.Send([]byte("hello")))

	data := nextEvent[mesh.DataEvent](t, b)
	assert.Equal(t, "room-0", data.Remote)
	assert.Equal(t, []byte("hello"), data.Data)

	require.NoError(t, conn.Close())
	closed := nextEvent[mesh.CloseEvent](t, b)
	assert.Equal(t, conn.ID(), closed.LinkID)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{
		STUNServer: "stun:stun.example.org:3478",
		TURNServer: "turn:relay.example.org",
		TURNUser:   "u",
		TURNPass:   "p",
		ForceRelay: true,
	}
	s := SettingsFromConfig(cfg)
	require.Len(t, s.ICEServers, 2)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, s.ICEServers[0].URLs)
	assert.Equal(t, "u", s.ICEServers[1].Username)
	assert.True(t, s.ForceRelay)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, s.Configuration().ICETransportPolicy)

	s = SettingsFromConfig(&config.Config{ForceRelay: true})
	assert.Empty(t, s.ICEServers)
	assert.False(t, s.ForceRelay)
	assert.Equal(t, webrtc.ICETransportPolicyAll, s.Configuration().ICETransportPolicy)
}

func TestNewAPI(t *testing.T) {
	api, err := NewAPI(Settings{})
	require.NoError(t, err)
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	assert.NoError(t, pc.Close())
}
