package mesh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Huddle/internal/chat"
	"github.com/BioHazard786/Huddle/internal/media"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type client struct {
	*Session
	capturer *fakeCapturer
}

func newClient(t *testing.T, n *fakeNet, mutate ...func(*Options)) *client {
	t.Helper()
	c := &fakeCapturer{}
	logger := zerolog.Nop()
	opts := Options{Directory: n, Capturer: c, ClaimTimeout: time.Second, Logger: &logger}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)
	return &client{Session: s, capturer: c}
}

func join(t *testing.T, c *client, room string) {
	t.Helper()
	require.NoError(t, c.JoinRoom(context.Background(), room))
}

func sees(c *client, ids ...string) func() bool {
	return func() bool {
		got := c.Participants().IDs()
		if len(got) != len(ids) {
			return false
		}
		for i := range ids {
			if got[i] != ids[i] {
				return false
			}
		}
		return true
	}
}

func TestNewRejectsLargeRoom(t *testing.T) {
	_, err := New(Options{Directory: newFakeNet(), Capturer: &fakeCapturer{}, Slots: MaxSlots + 1})
	assert.Error(t, err)
}

func TestJoinRoomInvalid(t *testing.T) {
	a := newClient(t, newFakeNet())
	err := a.JoinRoom(context.Background(), "not a room")
	assert.ErrorIs(t, err, ErrInvalidRoom)
	assert.Equal(t, StatusDisconnected, a.Status())
	assert.Nil(t, a.capturer.last())
}

func TestDistinctSlots(t *testing.T) {
	n := newFakeNet()
	seen := map[int]bool{}
	for i := 0; i < MaxSlots-1; i++ {
		c := newClient(t, n)
		join(t, c, "Room")
		id := c.Identity()
		assert.Equal(t, "room", id.Room)
		assert.False(t, seen[id.Slot], "slot %d claimed twice", id.Slot)
		seen[id.Slot] = true
		assert.Equal(t, StatusConnected, c.Status())
	}
}

func TestHelloScenario(t *testing.T) {
	n := newFakeNet()
	a := newClient(t, n)
	b := newClient(t, n)

	join(t, a, "room")
	join(t, b, "room")
	assert.Equal(t, 0, a.Identity().Slot)
	assert.Equal(t, 1, b.Identity().Slot)

	require.Eventually(t, sees(a, "room-1"), waitFor, tick)
	require.Eventually(t, sees(b, "room-0"), waitFor, tick)

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.links.openConns()) > 0
	}, waitFor, tick)

	require.NoError(t, a.SendMessage("hello"))

	// Local echo is immediate.
	msgs := a.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.SenderLocal, msgs[0].Sender)
	assert.Equal(t, "hello", msgs[0].Text)

	require.Eventually(t, func() bool { return len(b.Messages()) == 1 }, waitFor, tick)
	got := b.Messages()[0]
	assert.Equal(t, chat.SenderRemote, got.Sender)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "room-0", got.From)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, a.Messages(), 1)
	assert.Len(t, b.Messages(), 1)
}

func TestRoomFull(t *testing.T) {
	n := newFakeNet()
	a := newClient(t, n, func(o *Options) { o.Slots = 2 })
	b := newClient(t, n, func(o *Options) { o.Slots = 2 })
	c := newClient(t, n, func(o *Options) { o.Slots = 2 })

	join(t, a, "room")
	join(t, b, "room")
	require.Eventually(t, sees(a, "room-1"), waitFor, tick)

	err := c.JoinRoom(context.Background(), "room")
	require.ErrorIs(t, err, ErrRoomFull)

	st := c.State()
	assert.Equal(t, StatusError, st.Status)
	assert.True(t, st.Identity.IsZero())
	assert.Equal(t, 0, st.Participants.Len())
	assert.ErrorIs(t, st.Err, ErrRoomFull)
	assert.True(t, c.capturer.last().Stopped())

	assert.Equal(t, StatusConnected, a.Status())
	assert.Equal(t, StatusConnected, b.Status())
	assert.Eventually(t, sees(a, "room-1"), waitFor, tick)
	assert.Eventually(t, sees(b, "room-0"), waitFor, tick)
}

func TestFullMesh(t *testing.T) {
	n := newFakeNet()
	clients := make([]*client, MaxSlots)
	for i := range clients {
		clients[i] = newClient(t, n)
		join(t, clients[i], "mesh")
	}

	for i, c := range clients {
		var want []string
		for j := range clients {
			if j != i {
				want = append(want, PeerName("mesh", j))
			}
		}
		require.Eventually(t, sees(c, want...), waitFor, tick, "client %d", i)
	}

	extra := newClient(t, n)
	assert.ErrorIs(t, extra.JoinRoom(context.Background(), "mesh"), ErrRoomFull)
}

func TestDisconnect(t *testing.T) {
	n := newFakeNet()
	a := newClient(t, n)
	b := newClient(t, n)
	join(t, a, "room")
	join(t, b, "room")
	require.Eventually(t, sees(b, "room-0"), waitFor, tick)

	stream := b.capturer.last()
	b.Disconnect()

	st := b.State()
	assert.Equal(t, StatusDisconnected, st.Status)
	assert.Equal(t, 0, st.Participants.Len())
	assert.True(t, st.Identity.IsZero())
	assert.True(t, stream.Stopped())
	assert.NotContains(t, n.live(), "room-1")

	b.Disconnect()
	assert.Equal(t, StatusDisconnected, b.Status())

	require.Eventually(t, sees(a), waitFor, tick)
}

func TestDisconnectKeepsChat(t *testing.T) {
	a := newClient(t, newFakeNet())
	join(t, a, "room")
	require.NoError(t, a.SendMessage("kept"))
	a.Disconnect()
	require.Len(t, a.Messages(), 1)
	assert.Equal(t, "kept", a.Messages()[0].Text)
}

func TestClosingOnePeer(t *testing.T) {
	n := newFakeNet()
	a, b, c := newClient(t, n), newClient(t, n), newClient(t, n)
	join(t, a, "room")
	join(t, b, "room")
	join(t, c, "room")

	require.Eventually(t, sees(a, "room-1", "room-2"), waitFor, tick)
	require.Eventually(t, sees(b, "room-0", "room-2"), waitFor, tick)
	require.Eventually(t, sees(c, "room-0", "room-1"), waitFor, tick)

	c.Disconnect()

	require.Eventually(t, sees(a, "room-1"), waitFor, tick)
	require.Eventually(t, sees(b, "room-0"), waitFor, tick)
	assert.Equal(t, StatusConnected, a.Status())
	assert.Equal(t, StatusConnected, b.Status())
}

func TestSendMessageWithoutLinks(t *testing.T) {
	a := newClient(t, newFakeNet())
	require.NoError(t, a.SendMessage("alone"))
	join(t, a, "room")
	require.NoError(t, a.SendMessage("still alone"))
	assert.Len(t, a.Messages(), 2)
}

func TestSendMessageEmpty(t *testing.T) {
	a := newClient(t, newFakeNet())
	assert.ErrorIs(t, a.SendMessage("   "), ErrEmptyMessage)
	assert.Empty(t, a.Messages())
}

func TestSelfEchoDropped(t *testing.T) {
	n := newFakeNet()
	a := newClient(t, n)
	join(t, a, "room")

	b, err := chat.Encode(chat.ChatPayload("loop"))
	require.NoError(t, err)
	self := n.lookup("room-0")
	self.emit(DataEvent{Remote: "room-0", LinkID: "x", Data: b})
	self.emit(DataEvent{Remote: "room-3", LinkID: "y", Data: b})

	require.Eventually(t, func() bool { return len(a.Messages()) == 1 }, waitFor, tick)
	assert.Equal(t, "room-3", a.Messages()[0].From)
}

func TestToggleGatesTracksAndPersists(t *testing.T) {
	a := newClient(t, newFakeNet())

	assert.True(t, a.ToggleMute())
	join(t, a, "room")

	stream := a.capturer.last()
	for _, tr := range stream.TracksOf(media.KindAudio) {
		assert.False(t, tr.Enabled())
	}
	for _, tr := range stream.TracksOf(media.KindVideo) {
		assert.True(t, tr.Enabled())
	}

	assert.True(t, a.ToggleVideo())
	for _, tr := range stream.TracksOf(media.KindVideo) {
		assert.False(t, tr.Enabled())
	}
	assert.True(t, a.IsVideoOff())

	assert.False(t, a.ToggleMute())
	for _, tr := range stream.TracksOf(media.KindAudio) {
		assert.True(t, tr.Enabled())
	}
}

func TestPresenceSignal(t *testing.T) {
	n := newFakeNet()
	withPresence := func(o *Options) { o.PresenceSignal = true }
	a := newClient(t, n, withPresence)
	b := newClient(t, n, withPresence)
	join(t, a, "room")
	join(t, b, "room")

	require.Eventually(t, func() bool {
		_, ok := b.State().Presence["room-0"]
		return ok
	}, waitFor, tick)

	a.ToggleMute()
	require.Eventually(t, func() bool {
		return b.State().Presence["room-0"].Muted
	}, waitFor, tick)
	assert.False(t, b.State().Presence["room-0"].VideoOff)
}

func TestMediaAcquisitionFailure(t *testing.T) {
	n := newFakeNet()
	a := newClient(t, n)
	a.capturer.err = media.ErrDeviceUnavailable

	err := a.JoinRoom(context.Background(), "room")
	assert.ErrorIs(t, err, ErrMediaAcquisition)
	assert.ErrorIs(t, err, media.ErrDeviceUnavailable)
	assert.Equal(t, StatusError, a.Status())
	assert.Empty(t, n.live())
}

func TestFatalTransportError(t *testing.T) {
	n := newFakeNet()
	a := newClient(t, n)
	b := newClient(t, n)
	join(t, a, "room")
	join(t, b, "room")
	require.Eventually(t, sees(a, "room-1"), waitFor, tick)

	n.lookup("room-0").emit(ErrorEvent{Err: errors.New("socket closed"), Fatal: true})

	require.Eventually(t, func() bool { return a.Status() == StatusError }, waitFor, tick)
	st := a.State()
	assert.ErrorIs(t, st.Err, ErrTransportFatal)
	assert.Equal(t, 0, st.Participants.Len())
	assert.True(t, a.capturer.last().Stopped())

	require.Eventually(t, sees(b), waitFor, tick)
	assert.Equal(t, StatusConnected, b.Status())
}

func TestDisconnectDuringJoin(t *testing.T) {
	n := newFakeNet()
	n.block = make(chan struct{})
	a := newClient(t, n, func(o *Options) { o.ClaimTimeout = time.Minute })

	errc := make(chan error, 1)
	go func() { errc <- a.JoinRoom(context.Background(), "room") }()

	require.Eventually(t, func() bool { return a.Status() == StatusConnecting }, waitFor, tick)
	require.Eventually(t, func() bool { return a.capturer.last() != nil }, waitFor, tick)
	a.Disconnect()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrJoinAborted)
	case <-time.After(waitFor):
		t.Fatal("join did not return")
	}
	assert.Equal(t, StatusDisconnected, a.Status())
	assert.True(t, a.capturer.last().Stopped())
	assert.Empty(t, n.live())
}

func TestClaimTimeoutFails(t *testing.T) {
	n := newFakeNet()
	n.block = make(chan struct{})
	a := newClient(t, n, func(o *Options) { o.ClaimTimeout = 20 * time.Millisecond })

	err := a.JoinRoom(context.Background(), "room")
	assert.ErrorIs(t, err, ErrTransportFatal)
	assert.Equal(t, StatusError, a.Status())
}

func TestRejoinTearsDownFirst(t *testing.T) {
	n := newFakeNet()
	a := newClient(t, n)
	b := newClient(t, n)
	join(t, a, "room")
	join(t, b, "room")
	require.Eventually(t, sees(a, "room-1"), waitFor, tick)

	first := b.capturer.last()
	join(t, b, "other")

	assert.True(t, first.Stopped())
	assert.Equal(t, "other", b.Identity().Room)
	assert.NotContains(t, n.live(), "room-1")
	require.Eventually(t, sees(a), waitFor, tick)
	assert.Equal(t, 0, b.Participants().Len())
}

func TestSubscribeLatestWins(t *testing.T) {
	a := newClient(t, newFakeNet())
	states, cancel := a.Subscribe()
	defer cancel()

	first := <-states
	assert.Equal(t, StatusDisconnected, first.Status)

	join(t, a, "room")
	require.NoError(t, a.SendMessage("one"))
	require.NoError(t, a.SendMessage("two"))

	latest := <-states
	assert.Equal(t, StatusConnected, latest.Status)
	assert.Len(t, latest.Messages, 2)

	cancel()
	cancel()
	for range states {
	}
}
