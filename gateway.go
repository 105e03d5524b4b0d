/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxNameLength = 20

type action struct {
	client *Client
	msg    ClientMessage
	err    error // set when the read pump rejected the message itself
}

type transitionKind int

const (
	transitionReset transitionKind = iota
	transitionAdvance
)

func (k transitionKind) String() string {
	if k == transitionAdvance {
		return "advance"
	}
	return "reset"
}

// transition is a delayed level change. It only applies if the registry
// still holds the same room at the same epoch when it fires.
type transition struct {
	room  *Room
	code  string
	epoch uint64
	kind  transitionKind
}

// Stats is a point-in-time view of the gateway for the HTTP handlers.
type Stats struct {
	Rooms   []RoomSummary
	Live    int
	Clients int
}

// Gateway serializes every connection's actions onto one goroutine, which
// is the only code that touches the Registry and Engine.
type Gateway struct {
	registry      *Registry
	engine        *Engine
	delay         time.Duration
	sweepInterval time.Duration

	clients map[*Client]bool
	groups  map[string]map[*Client]bool

	connects    chan *Client
	disconnects chan *Client
	actions     chan action
	transitions chan transition
	queries     chan chan Stats
	done        chan struct{}

	after func(time.Duration, transition)
	log   zerolog.Logger
}

func newGateway(cfg *Config) *Gateway {
	g := &Gateway{
		registry:      NewRegistry(cfg.roomExpiry),
		engine:        newEngine(),
		delay:         cfg.transitionDelay,
		sweepInterval: cfg.sweepInterval,
		clients:       make(map[*Client]bool),
		groups:        make(map[string]map[*Client]bool),
		connects:      make(chan *Client),
		disconnects:   make(chan *Client),
		actions:       make(chan action, 64),
		transitions:   make(chan transition, 16),
		queries:       make(chan chan Stats),
		done:          make(chan struct{}),
		log:           log.With().Str("component", "gateway").Logger(),
	}

	g.after = func(d time.Duration, t transition) {
		time.AfterFunc(d, func() {
			select {
			case g.transitions <- t:
			case <-g.done:
			}
		})
	}

	return g
}

func (g *Gateway) run(ctx context.Context) {
	defer close(g.done)

	ticker := time.NewTicker(g.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.shutdown()
			return
		case c := <-g.connects:
			g.connect(c)
		case c := <-g.disconnects:
			g.disconnect(c)
		case a := <-g.actions:
			g.handle(a)
		case t := <-g.transitions:
			g.applyTransition(t)
		case reply := <-g.queries:
			reply <- g.stats()
		case <-ticker.C:
			g.sweep()
		}
	}
}

// attach hands a new connection to the loop. It reports false once the
// gateway has stopped.
func (g *Gateway) attach(c *Client) bool {
	select {
	case g.connects <- c:
		return true
	case <-g.done:
		return false
	}
}

func (g *Gateway) unregister(c *Client) {
	select {
	case g.disconnects <- c:
	case <-g.done:
	}
}

func (g *Gateway) submit(a action) {
	select {
	case g.actions <- a:
	case <-g.done:
	}
}

func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)

	select {
	case g.queries <- reply:
	case <-g.done:
		return Stats{}, ErrGatewayClosed
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (g *Gateway) stats() Stats {
	return Stats{
		Rooms:   g.registry.ListPublicRooms(),
		Live:    g.registry.Len(),
		Clients: len(g.clients),
	}
}

func (g *Gateway) connect(c *Client) {
	g.clients[c] = true

	g.deliver(c, SessionMessage{Type: eventSession, PlayerID: c.id})
	g.deliver(c, RoomsListMessage{Type: eventRoomsList, Rooms: g.registry.ListPublicRooms()})

	g.log.Debug().Str("player", string(c.id)).Msg("GAMES: Player connected")
}

// disconnect runs the same departure path as an explicit leave.
func (g *Gateway) disconnect(c *Client) {
	delete(g.clients, c)

	if room, ok := g.registry.GetRoomByParticipant(c.id); ok {
		if err := g.leave(c, room.Code); err != nil {
			g.log.Warn().Err(err).Str("room", room.Code).Msg("GAMES: Departure on disconnect failed")
		}
	}

	g.unbind(c)
	g.close(c)

	g.log.Debug().Str("player", string(c.id)).Msg("GAMES: Player disconnected")
}

func (g *Gateway) shutdown() {
	for c := range g.clients {
		g.close(c)
		delete(g.clients, c)
	}
	clear(g.groups)
}

func (g *Gateway) handle(a action) {
	c := a.client
	if c.closed {
		return
	}

	err := a.err
	if err == nil {
		switch a.msg.Type {
		case actionCreateRoom:
			err = g.createRoom(c, a.msg)
		case actionJoinRoom:
			err = g.joinRoom(c, a.msg)
		case actionStartGame:
			err = g.startGame(c, a.msg)
		case actionPlayCard:
			err = g.playCard(c, a.msg)
		case actionLeaveRoom:
			err = g.leaveRoom(c, a.msg)
		case actionRequestSync:
			err = g.requestSync(c, a.msg)
		case actionGetRooms:
			g.deliver(c, RoomsListMessage{Type: eventRoomsList, Rooms: g.registry.ListPublicRooms()})
		case actionRestartGame:
			err = g.restartGame(c, a.msg)
		default:
			err = ErrUnknownAction
		}
	}

	if err != nil {
		g.log.Debug().Err(err).Str("player", string(c.id)).Str("action", a.msg.Type).Msg("GAMES: Action rejected")
		g.deliver(c, ErrorMessage{Type: eventError, Message: errorMessage(err)})
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return "", ErrInvalidName
	}

	return name, nil
}

func (g *Gateway) createRoom(c *Client, msg ClientMessage) error {
	name, err := cleanName(msg.PlayerName)
	if err != nil {
		return err
	}

	if err := g.leaveCurrent(c); err != nil {
		return err
	}

	room, err := g.registry.CreateRoom(c.id, name)
	if err != nil {
		return err
	}

	g.bind(c, room.Code)

	host, _ := room.participant(c.id)
	g.deliver(c, RoomCreatedMessage{Type: eventRoomCreated, RoomCode: room.Code, Player: host.View()})

	g.log.Info().Str("room", room.Code).Str("player", name).Msg("GAMES: Room created")

	g.broadcastRooms()

	return nil
}

func (g *Gateway) joinRoom(c *Client, msg ClientMessage) error {
	name, err := cleanName(msg.PlayerName)
	if err != nil {
		return err
	}

	code := NormalizeCode(msg.RoomCode)

	if current, ok := g.registry.GetRoomByParticipant(c.id); ok && current.Code == code {
		return ErrAlreadyInRoom
	}

	if _, err := g.registry.CheckJoin(code); err != nil {
		return err
	}

	if err := g.leaveCurrent(c); err != nil {
		return err
	}

	room, err := g.registry.JoinRoom(code, c.id, name)
	if err != nil {
		return err
	}

	g.bind(c, room.Code)

	player, _ := room.participant(c.id)
	g.deliver(c, RoomMessage{Type: eventRoomJoined, Room: room.Snapshot()})
	g.broadcastRoom(room.Code, PlayerJoinedMessage{Type: eventPlayerJoined, Player: player.View()}, c)

	g.log.Info().Str("room", room.Code).Str("player", name).Msg("GAMES: Player joined")

	g.broadcastRooms()

	return nil
}

func (g *Gateway) startGame(c *Client, msg ClientMessage) error {
	room, ok := g.registry.GetRoom(msg.RoomCode)
	if !ok {
		return ErrRoomNotFound
	}

	if room.HostID != c.id {
		return ErrNotHost
	}

	if err := g.engine.StartGame(room); err != nil {
		return err
	}

	g.broadcastRoom(room.Code, RoomMessage{Type: eventGameStarted, Room: room.Snapshot()}, nil)

	g.log.Info().Str("room", room.Code).Int("players", len(room.Participants)).Msg("GAMES: Game started")

	g.broadcastRooms()

	return nil
}

func (g *Gateway) playCard(c *Client, msg ClientMessage) error {
	room, ok := g.registry.GetRoom(msg.RoomCode)
	if !ok {
		return ErrInvalidPlay
	}

	play, err := g.engine.PlayCard(room, c.id)
	if err != nil {
		return err
	}

	g.broadcastRoom(room.Code, CardPlayedMessage{
		Type:     eventCardPlayed,
		PlayerID: c.id,
		Card:     play.Card,
		Room:     room.Snapshot(),
	}, nil)

	g.dispatch(room, play.Outcome)

	return nil
}

// dispatch announces an outcome to the room and schedules any delayed
// follow-up.
func (g *Gateway) dispatch(room *Room, outcome Outcome) {
	switch o := outcome.(type) {
	case Continued:
	case LifeLost:
		g.broadcastRoom(room.Code, LifeLostMessage{Type: eventLifeLost, Room: room.Snapshot(), LostCards: o.LostCards}, nil)
		g.schedule(room, transitionReset)
		g.log.Info().Str("room", room.Code).Ints("lost", o.LostCards).Msg("GAMES: Life lost")
	case LevelComplete:
		g.broadcastRoom(room.Code, RoomMessage{Type: eventLevelComplete, Room: room.Snapshot()}, nil)
		g.schedule(room, transitionAdvance)
		g.log.Info().Str("room", room.Code).Int("level", room.State.Level).Msg("GAMES: Level complete")
	case GameWon:
		g.broadcastRoom(room.Code, GameOverMessage{Type: eventGameOver, Room: room.Snapshot(), Won: true}, nil)
		g.log.Info().Str("room", room.Code).Msg("GAMES: Game won")
	case GameLost:
		g.broadcastRoom(room.Code, GameOverMessage{Type: eventGameOver, Room: room.Snapshot(), Won: false}, nil)
		g.log.Info().Str("room", room.Code).Msg("GAMES: Game lost")
	default:
		panic(fmt.Sprintf("unhandled outcome %T", o))
	}
}

func (g *Gateway) schedule(room *Room, kind transitionKind) {
	g.after(g.delay, transition{room: room, code: room.Code, epoch: room.Epoch, kind: kind})
}

func (g *Gateway) applyTransition(t transition) {
	room, ok := g.registry.GetRoom(t.code)
	if !ok || room != t.room || room.Epoch != t.epoch || !room.State.Locked {
		g.log.Debug().Str("room", t.code).Stringer("kind", t.kind).Msg("GAMES: Dropped stale transition")
		return
	}

	switch t.kind {
	case transitionReset:
		g.engine.ResetLevel(room)
	case transitionAdvance:
		g.engine.AdvanceLevel(room)
	}

	g.broadcastRoom(room.Code, RoomMessage{Type: eventGameStateSync, Room: room.Snapshot()}, nil)
}

func (g *Gateway) leaveRoom(c *Client, msg ClientMessage) error {
	room, ok := g.registry.GetRoomByParticipant(c.id)
	if !ok {
		return ErrNotInAnyRoom
	}

	if msg.RoomCode != "" && NormalizeCode(msg.RoomCode) != room.Code {
		return ErrNotInAnyRoom
	}

	return g.leave(c, room.Code)
}

func (g *Gateway) leaveCurrent(c *Client) error {
	room, ok := g.registry.GetRoomByParticipant(c.id)
	if !ok {
		return nil
	}

	return g.leave(c, room.Code)
}

func (g *Gateway) leave(c *Client, code string) error {
	res, err := g.registry.LeaveRoom(code, c.id)
	if err != nil {
		return err
	}

	g.unbind(c)

	if !res.Deleted {
		room := res.Room

		g.broadcastRoom(room.Code, PlayerLeftMessage{Type: eventPlayerLeft, PlayerID: c.id}, nil)

		if res.NewHost != nil {
			g.broadcastRoom(room.Code, HostChangedMessage{
				Type:        eventHostChanged,
				NewHostID:   res.NewHost.ID,
				NewHostName: res.NewHost.Name,
			}, nil)
		}

		if res.Lost {
			g.dispatch(room, GameLost{})
		} else {
			g.dispatch(room, g.engine.Settle(room))
		}

		g.broadcastRoom(room.Code, RoomMessage{Type: eventGameStateSync, Room: room.Snapshot()}, nil)
	}

	g.log.Info().Str("room", code).Bool("deleted", res.Deleted).Msg("GAMES: Player left")

	g.broadcastRooms()

	return nil
}

func (g *Gateway) requestSync(c *Client, msg ClientMessage) error {
	room, ok := g.registry.GetRoom(msg.RoomCode)
	if !ok {
		return ErrRoomNotFound
	}

	g.deliver(c, RoomMessage{Type: eventGameStateSync, Room: room.Snapshot()})

	return nil
}

func (g *Gateway) restartGame(c *Client, msg ClientMessage) error {
	room, ok := g.registry.GetRoom(msg.RoomCode)
	if !ok {
		return ErrRoomNotFound
	}

	if room.HostID != c.id {
		return ErrNotHost
	}

	if room.State.Status != StatusWon && room.State.Status != StatusLost {
		return ErrGameNotOver
	}

	g.engine.RestartGame(room)

	g.broadcastRoom(room.Code, RoomMessage{Type: eventGameStateSync, Room: room.Snapshot()}, nil)

	g.log.Info().Str("room", room.Code).Msg("GAMES: Game restarted")

	g.broadcastRooms()

	return nil
}

func (g *Gateway) sweep() {
	expired := g.registry.Sweep()
	if len(expired) == 0 {
		return
	}

	for _, room := range expired {
		for c := range g.groups[room.Code] {
			c.code = ""
			g.deliver(c, ErrorMessage{Type: eventError, Message: errorMessage(ErrRoomExpired)})
		}
		delete(g.groups, room.Code)
	}

	g.log.Info().Int("rooms", len(expired)).Msg("GAMES: Expired rooms removed")

	g.broadcastRooms()
}

func (g *Gateway) bind(c *Client, code string) {
	group, ok := g.groups[code]
	if !ok {
		group = make(map[*Client]bool)
		g.groups[code] = group
	}
	group[c] = true
	c.code = code
}

func (g *Gateway) unbind(c *Client) {
	if c.code == "" {
		return
	}

	if group, ok := g.groups[c.code]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(g.groups, c.code)
		}
	}
	c.code = ""
}

func (g *Gateway) close(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// deliver never blocks the loop. A client that cannot keep up is cut off;
// its read pump then reports the disconnect.
func (g *Gateway) deliver(c *Client, msg any) {
	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		g.log.Warn().Str("player", string(c.id)).Msg("GAMES: Dropping slow client")
		delete(g.clients, c)
		g.unbind(c)
		g.close(c)
	}
}

func (g *Gateway) broadcastRoom(code string, msg any, except *Client) {
	for c := range g.groups[code] {
		if c != except {
			g.deliver(c, msg)
		}
	}
}

func (g *Gateway) broadcastAll(msg any) {
	for c := range g.clients {
		g.deliver(c, msg)
	}
}

func (g *Gateway) broadcastRooms() {
	g.broadcastAll(RoomsListMessage{Type: eventRoomsList, Rooms: g.registry.ListPublicRooms()})
}
