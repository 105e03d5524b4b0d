/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinParticipants = 2
	MaxParticipants = 4
	MaxLevel        = 12
	CardMin         = 1
	CardMax         = 100
	roomCodeLength  = 4
	roomCodeChars   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusWon     Status = "won"
	StatusLost    Status = "lost"
)

// ParticipantID identifies a person independently of the connection
// carrying their messages.
type ParticipantID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

type Participant struct {
	ID     ParticipantID
	Name   string
	Hand   []int // ascending
	IsHost bool
	Fails  int
}

type GameState struct {
	Status      Status
	Level       int
	Played      []int
	CurrentCard int // 0 while the pile is empty
	Locked      bool
}

type Room struct {
	Code         string
	Participants []*Participant
	State        GameState
	HostID       ParticipantID
	CreatedAt    time.Time

	// Epoch changes whenever a deal, restart or forced loss makes a
	// previously scheduled transition obsolete.
	Epoch uint64
}

func newRoom(code string, host *Participant, now time.Time) *Room {
	host.IsHost = true

	return &Room{
		Code:         code,
		Participants: []*Participant{host},
		State:        GameState{Status: StatusWaiting, Level: 1},
		HostID:       host.ID,
		CreatedAt:    now,
	}
}

func (r *Room) participant(id ParticipantID) (*Participant, int) {
	for i, p := range r.Participants {
		if p.ID == id {
			return p, i
		}
	}

	return nil, -1
}

func (r *Room) host() *Participant {
	p, _ := r.participant(r.HostID)

	return p
}

func (r *Room) remainingCards() int {
	total := 0
	for _, p := range r.Participants {
		total += len(p.Hand)
	}

	return total
}

func (r *Room) clearPile() {
	r.State.Played = nil
	r.State.CurrentCard = 0
}

// RoomSummary is the public lobby listing of a waiting room.
type RoomSummary struct {
	Code        string `json:"code"`
	HostName    string `json:"hostName"`
	PlayerCount int    `json:"playerCount"`
	Status      Status `json:"status"`
}

func (r *Room) Summary() RoomSummary {
	hostName := "Unknown"
	if h := r.host(); h != nil {
		hostName = h.Name
	}

	return RoomSummary{
		Code:        r.Code,
		HostName:    hostName,
		PlayerCount: len(r.Participants),
		Status:      r.State.Status,
	}
}

type PlayerView struct {
	ID     ParticipantID `json:"id"`
	Name   string        `json:"name"`
	Cards  []int         `json:"cards"`
	IsHost bool          `json:"isHost"`
	Fails  int           `json:"fails"`
}

type StateView struct {
	Status      Status `json:"status"`
	Level       int    `json:"level"`
	PlayedCards []int  `json:"playedCards"`
	CurrentCard *int   `json:"currentCard"`
	Locked      bool   `json:"locked"`
}

// RoomView is a detached copy of a room, safe to hand to writer goroutines.
type RoomView struct {
	Code    string        `json:"code"`
	Players []PlayerView  `json:"players"`
	State   StateView     `json:"state"`
	HostID  ParticipantID `json:"hostId"`
}

func (p *Participant) View() PlayerView {
	cards := slices.Clone(p.Hand)
	if cards == nil {
		cards = []int{}
	}

	return PlayerView{
		ID:     p.ID,
		Name:   p.Name,
		Cards:  cards,
		IsHost: p.IsHost,
		Fails:  p.Fails,
	}
}

func (r *Room) Snapshot() RoomView {
	players := make([]PlayerView, 0, len(r.Participants))
	for _, p := range r.Participants {
		players = append(players, p.View())
	}

	played := slices.Clone(r.State.Played)
	if played == nil {
		played = []int{}
	}

	var current *int
	if r.State.CurrentCard != 0 {
		c := r.State.CurrentCard
		current = &c
	}

	return RoomView{
		Code:    r.Code,
		Players: players,
		State: StateView{
			Status:      r.State.Status,
			Level:       r.State.Level,
			PlayedCards: played,
			CurrentCard: current,
			Locked:      r.State.Locked,
		},
		HostID: r.HostID,
	}
}

// NormalizeCode makes typed room codes case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
