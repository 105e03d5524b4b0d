/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testConfig() *Config {
	return &Config{
		actionBurst:     20,
		actionRate:      10,
		roomExpiry:      time.Hour,
		sweepInterval:   time.Hour,
		transitionDelay: 0,
	}
}

// newTestGateway returns a gateway driven synchronously by the test, along
// with the transitions it schedules.
func newTestGateway(codes ...string) (*Gateway, *[]transition) {
	g := newGateway(testConfig())
	g.engine = seededEngine(1)
	if len(codes) > 0 {
		g.registry.newCode = fixedCodes(codes...)
	}

	pending := &[]transition{}
	g.after = func(_ time.Duration, t transition) {
		*pending = append(*pending, t)
	}

	return g, pending
}

func connectClient(g *Gateway) *Client {
	c := newClient(nil, rate.Inf, 1)
	g.connect(c)
	drain(c)

	return c
}

// drain empties a client's outbound queue without blocking.
func drain(c *Client) []any {
	var msgs []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func eventType(msg any) string {
	return reflect.ValueOf(msg).FieldByName("Type").String()
}

func eventTypes(msgs []any) []string {
	types := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		types = append(types, eventType(msg))
	}

	return types
}

func do(g *Gateway, c *Client, typ, name, code string) {
	g.handle(action{client: c, msg: ClientMessage{Type: typ, PlayerName: name, RoomCode: code}})
}

// startedRoom connects a host and guest and starts a game in room ROOM.
func startedRoom(t *testing.T, g *Gateway) (host, guest *Client, room *Room) {
	t.Helper()

	host = connectClient(g)
	guest = connectClient(g)

	do(g, host, actionCreateRoom, "Ada", "")
	do(g, guest, actionJoinRoom, "Bo", "ROOM")
	do(g, host, actionStartGame, "", "ROOM")

	room, ok := g.registry.GetRoom("ROOM")
	require.True(t, ok)
	require.Equal(t, StatusPlaying, room.State.Status)

	drain(host)
	drain(guest)

	return host, guest, room
}

func lastError(t *testing.T, msgs []any) string {
	t.Helper()

	require.NotEmpty(t, msgs)
	msg, ok := msgs[len(msgs)-1].(ErrorMessage)
	require.True(t, ok, "want error, got %T", msgs[len(msgs)-1])

	return msg.Message
}

func TestGateway_Connect(t *testing.T) {
	g, _ := newTestGateway()
	c := newClient(nil, rate.Inf, 1)

	g.connect(c)

	msgs := drain(c)
	assert.Equal(t, []string{eventSession, eventRoomsList}, eventTypes(msgs))
	assert.Equal(t, c.id, msgs[0].(SessionMessage).PlayerID)
	assert.Empty(t, msgs[1].(RoomsListMessage).Rooms)
}

func TestGateway_CreateJoinStartAudience(t *testing.T) {
	g, _ := newTestGateway("ROOM")
	host, guest, lobby := connectClient(g), connectClient(g), connectClient(g)

	do(g, host, actionCreateRoom, "  Ada  ", "")

	msgs := drain(host)
	require.Equal(t, []string{eventRoomCreated, eventRoomsList}, eventTypes(msgs))
	created := msgs[0].(RoomCreatedMessage)
	assert.Equal(t, "ROOM", created.RoomCode)
	assert.Equal(t, "Ada", created.Player.Name)
	assert.True(t, created.Player.IsHost)
	assert.Equal(t, []string{eventRoomsList}, eventTypes(drain(lobby)))
	drain(guest)

	do(g, guest, actionJoinRoom, "Bo", "room")

	msgs = drain(guest)
	require.Equal(t, []string{eventRoomJoined, eventRoomsList}, eventTypes(msgs))
	assert.Len(t, msgs[0].(RoomMessage).Room.Players, 2)

	msgs = drain(host)
	require.Equal(t, []string{eventPlayerJoined, eventRoomsList}, eventTypes(msgs))
	assert.Equal(t, guest.id, msgs[0].(PlayerJoinedMessage).Player.ID)

	msgs = drain(lobby)
	require.Equal(t, []string{eventRoomsList}, eventTypes(msgs))
	assert.Equal(t, []RoomSummary{{Code: "ROOM", HostName: "Ada", PlayerCount: 2, Status: StatusWaiting}}, msgs[0].(RoomsListMessage).Rooms)

	do(g, host, actionStartGame, "", "ROOM")

	for _, c := range []*Client{host, guest} {
		msgs := drain(c)
		require.Equal(t, []string{eventGameStarted, eventRoomsList}, eventTypes(msgs))

		view := msgs[0].(RoomMessage).Room
		assert.Equal(t, StatusPlaying, view.State.Status)
		assert.Equal(t, 1, view.State.Level)
		for _, p := range view.Players {
			assert.Len(t, p.Cards, 1)
		}
		assert.Empty(t, msgs[1].(RoomsListMessage).Rooms)
	}
	assert.Equal(t, []string{eventRoomsList}, eventTypes(drain(lobby)))
}

func TestGateway_StartRejections(t *testing.T) {
	g, _ := newTestGateway("ROOM")
	host, guest := connectClient(g), connectClient(g)

	do(g, host, actionCreateRoom, "Ada", "")
	drain(host)
	drain(guest)

	do(g, host, actionStartGame, "", "ROOM")
	assert.Equal(t, "Need at least 2 players to start", lastError(t, drain(host)))
	assert.Empty(t, drain(guest))

	do(g, guest, actionJoinRoom, "Bo", "ROOM")
	drain(host)
	drain(guest)

	do(g, guest, actionStartGame, "", "ROOM")
	assert.Equal(t, "Only the host can do that", lastError(t, drain(guest)))
	assert.Empty(t, drain(host))

	room, _ := g.registry.GetRoom("ROOM")
	assert.Equal(t, StatusWaiting, room.State.Status)
}

func TestGateway_LifeLostThenReset(t *testing.T) {
	g, pending := newTestGateway("ROOM")
	host, guest, room := startedRoom(t, g)

	room.Participants[0].Hand = []int{50}
	room.Participants[1].Hand = []int{10}

	do(g, host, actionPlayCard, "", "ROOM")

	for _, c := range []*Client{host, guest} {
		msgs := drain(c)
		require.Equal(t, []string{eventCardPlayed, eventLifeLost}, eventTypes(msgs))

		played := msgs[0].(CardPlayedMessage)
		assert.Equal(t, host.id, played.PlayerID)
		assert.Equal(t, 50, played.Card)

		lost := msgs[1].(LifeLostMessage)
		assert.Equal(t, []int{10}, lost.LostCards)
		assert.True(t, lost.Room.State.Locked)
		assert.Equal(t, 1, lost.Room.Players[0].Fails)
	}

	do(g, guest, actionPlayCard, "", "ROOM")
	assert.Equal(t, "Cannot play card", lastError(t, drain(guest)))

	require.Len(t, *pending, 1)
	assert.Equal(t, transitionReset, (*pending)[0].kind)

	g.applyTransition((*pending)[0])

	for _, c := range []*Client{host, guest} {
		msgs := drain(c)
		require.Equal(t, []string{eventGameStateSync}, eventTypes(msgs))

		view := msgs[0].(RoomMessage).Room
		assert.False(t, view.State.Locked)
		assert.Empty(t, view.State.PlayedCards)
		assert.Nil(t, view.State.CurrentCard)
		assert.Equal(t, 1, view.State.Level)
		for _, p := range view.Players {
			assert.Len(t, p.Cards, 1)
		}
	}
}

func TestGateway_LevelCompleteThenAdvance(t *testing.T) {
	g, pending := newTestGateway("ROOM")
	host, guest, room := startedRoom(t, g)

	room.Participants[0].Hand = []int{7}
	room.Participants[1].Hand = []int{12}

	do(g, host, actionPlayCard, "", "ROOM")
	assert.Equal(t, []string{eventCardPlayed}, eventTypes(drain(guest)))
	drain(host)
	assert.Empty(t, *pending)

	do(g, guest, actionPlayCard, "", "ROOM")

	msgs := drain(host)
	require.Equal(t, []string{eventCardPlayed, eventLevelComplete}, eventTypes(msgs))
	complete := msgs[1].(RoomMessage).Room
	assert.Equal(t, 1, complete.State.Level)
	assert.True(t, complete.State.Locked)
	drain(guest)

	require.Len(t, *pending, 1)
	assert.Equal(t, transitionAdvance, (*pending)[0].kind)

	g.applyTransition((*pending)[0])

	msgs = drain(guest)
	require.Equal(t, []string{eventGameStateSync}, eventTypes(msgs))
	view := msgs[0].(RoomMessage).Room
	assert.Equal(t, 2, view.State.Level)
	assert.False(t, view.State.Locked)
	for _, p := range view.Players {
		assert.Len(t, p.Cards, 2)
	}

	// Applying the same transition twice is a no-op.
	g.applyTransition((*pending)[0])
	assert.Empty(t, drain(guest))
	assert.Equal(t, 2, room.State.Level)
}

func TestGateway_StaleTransitionAfterForcedLoss(t *testing.T) {
	g, pending := newTestGateway("ROOM")
	host, guest, room := startedRoom(t, g)

	room.Participants[0].Hand = []int{50}
	room.Participants[1].Hand = []int{10}
	do(g, host, actionPlayCard, "", "ROOM")
	require.Len(t, *pending, 1)
	drain(host)

	do(g, guest, actionLeaveRoom, "", "ROOM")

	msgs := drain(host)
	require.Equal(t, []string{eventPlayerLeft, eventGameOver, eventGameStateSync, eventRoomsList}, eventTypes(msgs))
	assert.False(t, msgs[1].(GameOverMessage).Won)
	assert.Equal(t, StatusLost, room.State.Status)

	g.applyTransition((*pending)[0])

	assert.Empty(t, drain(host))
	assert.Equal(t, StatusLost, room.State.Status)
	assert.Equal(t, []int{50}, room.State.Played)
}

func TestGateway_StaleTransitionAfterCodeReuse(t *testing.T) {
	g, pending := newTestGateway("ROOM", "ROOM")
	host, guest, room := startedRoom(t, g)

	room.Participants[0].Hand = []int{50}
	room.Participants[1].Hand = []int{10}
	do(g, host, actionPlayCard, "", "ROOM")
	require.Len(t, *pending, 1)
	stale := (*pending)[0]

	do(g, guest, actionLeaveRoom, "", "")
	do(g, host, actionLeaveRoom, "", "")
	_, ok := g.registry.GetRoom("ROOM")
	require.False(t, ok)

	other := connectClient(g)
	do(g, other, actionCreateRoom, "Cy", "")
	reused, ok := g.registry.GetRoom("ROOM")
	require.True(t, ok)
	require.NotSame(t, room, reused)

	reused.State.Status = StatusPlaying
	reused.State.Locked = true
	reused.Epoch = stale.epoch
	drain(other)

	g.applyTransition(stale)

	assert.Empty(t, drain(other))
	assert.True(t, reused.State.Locked)
	assert.Equal(t, 1, reused.State.Level)
}

func TestGateway_GameWonAndRestart(t *testing.T) {
	g, pending := newTestGateway("ROOM")
	host, guest, room := startedRoom(t, g)

	do(g, host, actionRestartGame, "", "ROOM")
	assert.Equal(t, "The game is still in progress", lastError(t, drain(host)))

	room.State.Level = MaxLevel
	room.Participants[0].Hand = []int{5}
	room.Participants[1].Hand = []int{9}

	do(g, host, actionPlayCard, "", "ROOM")
	do(g, guest, actionPlayCard, "", "ROOM")

	msgs := drain(host)
	require.Equal(t, []string{eventCardPlayed, eventCardPlayed, eventGameOver}, eventTypes(msgs))
	assert.True(t, msgs[2].(GameOverMessage).Won)
	assert.Empty(t, *pending)
	drain(guest)

	do(g, guest, actionRestartGame, "", "ROOM")
	assert.Equal(t, "Only the host can do that", lastError(t, drain(guest)))

	do(g, host, actionRestartGame, "", "ROOM")

	msgs = drain(guest)
	require.Equal(t, []string{eventGameStateSync, eventRoomsList}, eventTypes(msgs))
	assert.Equal(t, StatusWaiting, msgs[0].(RoomMessage).Room.State.Status)
	assert.Len(t, msgs[1].(RoomsListMessage).Rooms, 1)

	do(g, host, actionStartGame, "", "ROOM")
	assert.Equal(t, StatusPlaying, room.State.Status)
}

func TestGateway_RequestSyncIsReadOnly(t *testing.T) {
	g, _ := newTestGateway("ROOM")
	host, guest, room := startedRoom(t, g)
	epoch := room.Epoch

	do(g, guest, actionRequestSync, "", "ROOM")
	do(g, guest, actionRequestSync, "", "room")

	msgs := drain(guest)
	require.Equal(t, []string{eventGameStateSync, eventGameStateSync}, eventTypes(msgs))
	first, second := msgs[0].(RoomMessage).Room, msgs[1].(RoomMessage).Room
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("sync snapshots differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(room.Snapshot(), first); diff != "" {
		t.Errorf("sync snapshot differs from room (-room +sync):\n%s", diff)
	}

	assert.Empty(t, drain(host))
	assert.Equal(t, epoch, room.Epoch)

	do(g, guest, actionRequestSync, "", "NONE")
	assert.Equal(t, "Room not found", lastError(t, drain(guest)))
}

func TestGateway_HostLeaveHandsOff(t *testing.T) {
	g, _ := newTestGateway("ROOM")
	host, b, c := connectClient(g), connectClient(g), connectClient(g)

	do(g, host, actionCreateRoom, "Ada", "")
	do(g, b, actionJoinRoom, "Bo", "ROOM")
	do(g, c, actionJoinRoom, "Cy", "ROOM")
	drain(host)
	drain(b)
	drain(c)

	do(g, host, actionLeaveRoom, "", "ROOM")

	msgs := drain(b)
	require.Equal(t, []string{eventPlayerLeft, eventHostChanged, eventGameStateSync, eventRoomsList}, eventTypes(msgs))
	assert.Equal(t, host.id, msgs[0].(PlayerLeftMessage).PlayerID)
	changed := msgs[1].(HostChangedMessage)
	assert.Equal(t, b.id, changed.NewHostID)
	assert.Equal(t, "Bo", changed.NewHostName)
	assert.Equal(t, b.id, msgs[2].(RoomMessage).Room.HostID)

	assert.Equal(t, []string{eventRoomsList}, eventTypes(drain(host)))
	assert.Empty(t, host.code)

	do(g, c, actionStartGame, "", "ROOM")
	assert.Equal(t, "Only the host can do that", lastError(t, drain(c)))
}

func TestGateway_DisconnectDeletesEmptyRoom(t *testing.T) {
	g, _ := newTestGateway("ROOM")
	host, lobby := connectClient(g), connectClient(g)

	do(g, host, actionCreateRoom, "Ada", "")
	drain(host)
	drain(lobby)

	g.disconnect(host)

	_, ok := g.registry.GetRoom("ROOM")
	assert.False(t, ok)
	assert.NotContains(t, g.clients, host)
	assert.NotContains(t, g.groups, "ROOM")
	assert.True(t, host.closed)
	_, open := <-host.send
	assert.False(t, open)

	msgs := drain(lobby)
	require.Equal(t, []string{eventRoomsList}, eventTypes(msgs))
	assert.Empty(t, msgs[0].(RoomsListMessage).Rooms)
}

func TestGateway_MoveBetweenRooms(t *testing.T) {
	g, _ := newTestGateway("AAAA", "BBBB")
	first, second, mover := connectClient(g), connectClient(g), connectClient(g)

	do(g, first, actionCreateRoom, "Ada", "")
	do(g, second, actionCreateRoom, "Bo", "")
	do(g, mover, actionJoinRoom, "Cy", "AAAA")
	drain(first)
	drain(second)
	drain(mover)

	do(g, mover, actionJoinRoom, "Cy", "AAAA")
	assert.Equal(t, "You are already in this room", lastError(t, drain(mover)))

	do(g, mover, actionJoinRoom, "Cy", "BBBB")

	assert.Contains(t, eventTypes(drain(first)), eventPlayerLeft)
	assert.Equal(t, []string{eventRoomsList, eventRoomJoined, eventRoomsList}, eventTypes(drain(mover)))

	room, ok := g.registry.GetRoomByParticipant(mover.id)
	require.True(t, ok)
	assert.Equal(t, "BBBB", room.Code)
	assert.Equal(t, "BBBB", mover.code)

	old, _ := g.registry.GetRoom("AAAA")
	assert.Len(t, old.Participants, 1)
}

func TestGateway_ActionErrors(t *testing.T) {
	g, _ := newTestGateway("ROOM")
	c := connectClient(g)

	cases := []struct {
		name string
		act  action
		want string
	}{
		{"unknown action", action{msg: ClientMessage{Type: "shuffle-deck"}}, "Unknown action"},
		{"rate limited", action{msg: ClientMessage{Type: actionGetRooms}, err: ErrRateLimited}, "Slow down"},
		{"blank name", action{msg: ClientMessage{Type: actionCreateRoom, PlayerName: "   "}}, "Please enter a name between 1 and 20 characters"},
		{"long name", action{msg: ClientMessage{Type: actionCreateRoom, PlayerName: strings.Repeat("ä", maxNameLength+1)}}, "Please enter a name between 1 and 20 characters"},
		{"missing room", action{msg: ClientMessage{Type: actionJoinRoom, PlayerName: "Ada", RoomCode: "NONE"}}, "Room not found"},
		{"play outside room", action{msg: ClientMessage{Type: actionPlayCard, RoomCode: "NONE"}}, "Cannot play card"},
		{"leave outside room", action{msg: ClientMessage{Type: actionLeaveRoom}}, "You are not in a room"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.act.client = c
			g.handle(tc.act)

			msgs := drain(c)
			require.Len(t, msgs, 1)
			assert.Equal(t, tc.want, lastError(t, msgs))
		})
	}

	assert.Zero(t, g.registry.Len())
}

func TestGateway_SlowClientIsDropped(t *testing.T) {
	g, _ := newTestGateway("ROOM")
	host, guest := connectClient(g), connectClient(g)

	do(g, host, actionCreateRoom, "Ada", "")
	do(g, guest, actionJoinRoom, "Bo", "ROOM")
	drain(host)
	drain(guest)

	for range sendBuffer {
		do(g, guest, actionGetRooms, "", "")
	}
	assert.False(t, guest.closed)

	do(g, guest, actionGetRooms, "", "")

	assert.True(t, guest.closed)
	assert.NotContains(t, g.clients, guest)
	assert.NotContains(t, g.groups["ROOM"], guest)

	room, _ := g.registry.GetRoom("ROOM")
	assert.Len(t, room.Participants, 2)

	g.disconnect(guest)

	assert.Len(t, room.Participants, 1)
	assert.Contains(t, eventTypes(drain(host)), eventPlayerLeft)
}

func TestGateway_SweepNotifiesMembers(t *testing.T) {
	g, _ := newTestGateway("ROOM")
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start
	g.registry.now = func() time.Time { return now }

	host := connectClient(g)
	do(g, host, actionCreateRoom, "Ada", "")
	drain(host)

	g.sweep()
	assert.Empty(t, drain(host))

	now = start.Add(time.Hour)
	g.sweep()

	msgs := drain(host)
	require.Equal(t, []string{eventError, eventRoomsList}, eventTypes(msgs))
	assert.Equal(t, "Room expired", msgs[0].(ErrorMessage).Message)
	assert.Empty(t, host.code)
	assert.Zero(t, g.registry.Len())
	assert.NotContains(t, g.groups, "ROOM")

	_, ok := g.registry.GetRoomByParticipant(host.id)
	assert.False(t, ok)
}

func next(t *testing.T, c *Client) any {
	t.Helper()

	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestGateway_Run(t *testing.T) {
	g := newGateway(testConfig())
	g.registry.newCode = fixedCodes("ROOM")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go g.run(ctx)

	c := newClient(nil, rate.Inf, 1)
	require.True(t, g.attach(c))

	assert.Equal(t, eventSession, eventType(next(t, c)))
	assert.Equal(t, eventRoomsList, eventType(next(t, c)))

	g.submit(action{client: c, msg: ClientMessage{Type: actionCreateRoom, PlayerName: "Ada"}})
	assert.Equal(t, eventRoomCreated, eventType(next(t, c)))
	assert.Equal(t, eventRoomsList, eventType(next(t, c)))

	stats, err := g.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 1, stats.Clients)
	assert.Len(t, stats.Rooms, 1)

	cancel()

	select {
	case <-g.done:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not stop")
	}

	for range c.send {
	}

	_, err = g.Stats(context.Background())
	assert.ErrorIs(t, err, ErrGatewayClosed)
	assert.False(t, g.attach(newClient(nil, rate.Inf, 1)))
}
