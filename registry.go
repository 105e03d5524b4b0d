/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Registry owns every live room and the participant to room index.
// It is not safe for concurrent use; the Gateway loop is its only caller.
type Registry struct {
	rooms         map[string]*Room
	byParticipant map[ParticipantID]string
	expiry        time.Duration

	now     func() time.Time
	newCode func() (string, error)
}

type LeaveResult struct {
	Room    *Room // nil when the room was deleted
	Deleted bool
	NewHost *Participant
	Lost    bool // the departure ended a game in progress
}

func NewRegistry(expiry time.Duration) *Registry {
	return &Registry{
		rooms:         make(map[string]*Room),
		byParticipant: make(map[ParticipantID]string),
		expiry:        expiry,
		now:           time.Now,
		newCode:       randomRoomCode,
	}
}

// randomRoomCode draws from an alphabet without look-alike characters.
// The alphabet length divides 256, so the modulo is unbiased.
func randomRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, roomCodeLength)
	for i := range out {
		out[i] = roomCodeChars[int(buf[i])%len(roomCodeChars)]
	}

	return string(out), nil
}

func (reg *Registry) uniqueCode() (string, error) {
	for {
		code, err := reg.newCode()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}

		if _, exists := reg.rooms[code]; !exists {
			return code, nil
		}
	}
}

func (reg *Registry) CreateRoom(id ParticipantID, name string) (*Room, error) {
	if _, ok := reg.byParticipant[id]; ok {
		return nil, ErrAlreadyInRoom
	}

	code, err := reg.uniqueCode()
	if err != nil {
		return nil, err
	}

	room := newRoom(code, &Participant{ID: id, Name: name}, reg.now())

	reg.rooms[code] = room
	reg.byParticipant[id] = code

	return room, nil
}

// CheckJoin reports whether a new participant could join code right now.
func (reg *Registry) CheckJoin(code string) (*Room, error) {
	room, ok := reg.rooms[NormalizeCode(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}

	switch {
	case room.State.Status != StatusWaiting:
		return nil, ErrGameAlreadyStarted
	case len(room.Participants) >= MaxParticipants:
		return nil, ErrRoomFull
	}

	return room, nil
}

func (reg *Registry) JoinRoom(code string, id ParticipantID, name string) (*Room, error) {
	room, err := reg.CheckJoin(code)
	if err != nil {
		return nil, err
	}

	if _, ok := reg.byParticipant[id]; ok {
		return nil, ErrAlreadyInRoom
	}

	room.Participants = append(room.Participants, &Participant{ID: id, Name: name})
	reg.byParticipant[id] = room.Code

	return room, nil
}

func (reg *Registry) LeaveRoom(code string, id ParticipantID) (LeaveResult, error) {
	room, ok := reg.rooms[NormalizeCode(code)]
	if !ok {
		return LeaveResult{}, ErrRoomNotFound
	}

	_, idx := room.participant(id)
	if idx < 0 {
		return LeaveResult{}, ErrNotInAnyRoom
	}

	delete(reg.byParticipant, id)
	room.Participants = slices.Delete(room.Participants, idx, idx+1)

	if len(room.Participants) == 0 {
		delete(reg.rooms, room.Code)

		return LeaveResult{Deleted: true}, nil
	}

	res := LeaveResult{Room: room}

	if room.HostID == id {
		next := room.Participants[0]
		next.IsHost = true
		room.HostID = next.ID
		res.NewHost = next
	}

	if room.State.Status == StatusPlaying && len(room.Participants) < MinParticipants {
		room.State.Status = StatusLost
		room.State.Locked = false
		room.Epoch++
		res.Lost = true
	}

	return res, nil
}

func (reg *Registry) GetRoom(code string) (*Room, bool) {
	room, ok := reg.rooms[NormalizeCode(code)]

	return room, ok
}

func (reg *Registry) GetRoomByParticipant(id ParticipantID) (*Room, bool) {
	code, ok := reg.byParticipant[id]
	if !ok {
		return nil, false
	}

	room, ok := reg.rooms[code]

	return room, ok
}

// ListPublicRooms returns the waiting rooms ordered by code.
func (reg *Registry) ListPublicRooms() []RoomSummary {
	rooms := make([]RoomSummary, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		if room.State.Status == StatusWaiting {
			rooms = append(rooms, room.Summary())
		}
	}

	slices.SortFunc(rooms, func(a, b RoomSummary) int {
		return strings.Compare(a.Code, b.Code)
	})

	return rooms
}

// Sweep deletes rooms older than the expiry window and returns them.
func (reg *Registry) Sweep() []*Room {
	now := reg.now()

	var expired []*Room

	for code, room := range reg.rooms {
		if now.Sub(room.CreatedAt) < reg.expiry {
			continue
		}

		for _, p := range room.Participants {
			delete(reg.byParticipant, p.ID)
		}
		delete(reg.rooms, code)

		expired = append(expired, room)
	}

	return expired
}

func (reg *Registry) Len() int {
	return len(reg.rooms)
}
