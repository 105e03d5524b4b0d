/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// Inbound action types.
const (
	actionCreateRoom  = "create-room"
	actionJoinRoom    = "join-room"
	actionStartGame   = "start-game"
	actionPlayCard    = "play-card"
	actionLeaveRoom   = "leave-room"
	actionRequestSync = "request-sync"
	actionGetRooms    = "get-rooms"
	actionRestartGame = "restart-game"
)

// Outbound event types.
const (
	eventSession       = "session"
	eventRoomCreated   = "room-created"
	eventRoomJoined    = "room-joined"
	eventPlayerJoined  = "player-joined"
	eventPlayerLeft    = "player-left"
	eventHostChanged   = "host-changed"
	eventRoomsList     = "rooms-list"
	eventGameStarted   = "game-started"
	eventCardPlayed    = "card-played"
	eventLifeLost      = "life-lost"
	eventLevelComplete = "level-complete"
	eventGameOver      = "game-over"
	eventGameStateSync = "game-state-sync"
	eventError         = "error"
)

// ClientMessage is every action a client can send.
type ClientMessage struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName,omitempty"` // create-room, join-room
	RoomCode   string `json:"roomCode,omitempty"`
}

// SessionMessage tells a fresh connection which identity it plays as.
type SessionMessage struct {
	Type     string        `json:"type"`
	PlayerID ParticipantID `json:"playerId"`
}

type RoomCreatedMessage struct {
	Type     string     `json:"type"`
	RoomCode string     `json:"roomCode"`
	Player   PlayerView `json:"player"`
}

type PlayerJoinedMessage struct {
	Type   string     `json:"type"`
	Player PlayerView `json:"player"`
}

type PlayerLeftMessage struct {
	Type     string        `json:"type"`
	PlayerID ParticipantID `json:"playerId"`
}

type HostChangedMessage struct {
	Type        string        `json:"type"`
	NewHostID   ParticipantID `json:"newHostId"`
	NewHostName string        `json:"newHostName"`
}

type RoomsListMessage struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

// RoomMessage carries a full snapshot: room-joined, game-started,
// level-complete and game-state-sync.
type RoomMessage struct {
	Type string   `json:"type"`
	Room RoomView `json:"room"`
}

type CardPlayedMessage struct {
	Type     string        `json:"type"`
	PlayerID ParticipantID `json:"playerId"`
	Card     int           `json:"card"`
	Room     RoomView      `json:"room"`
}

type LifeLostMessage struct {
	Type      string   `json:"type"`
	Room      RoomView `json:"room"`
	LostCards []int    `json:"lostCards"`
}

type GameOverMessage struct {
	Type string   `json:"type"`
	Room RoomView `json:"room"`
	Won  bool     `json:"won"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
