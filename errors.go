/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrRoomFull           = errors.New("room is full")
	ErrNotHost            = errors.New("caller is not the host")
	ErrNotEnoughPlayers   = errors.New("not enough players")
	ErrGameNotOver        = errors.New("game is not over")
	ErrInvalidName        = errors.New("invalid player name")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnknownAction      = errors.New("unknown action")
	ErrRoomExpired        = errors.New("room expired")
	ErrGatewayClosed      = errors.New("gateway closed")

	ErrInvalidPlay = errors.New("invalid play")
	ErrNotPlaying  = fmt.Errorf("%w: game is not in progress", ErrInvalidPlay)
	ErrLevelLocked = fmt.Errorf("%w: level transition pending", ErrInvalidPlay)
	ErrNotInRoom   = fmt.Errorf("%w: participant not in room", ErrInvalidPlay)
	ErrNoCardsHeld = fmt.Errorf("%w: no cards held", ErrInvalidPlay)

	ErrActionRejected = errors.New("action rejected")
	ErrNotInAnyRoom   = fmt.Errorf("%w: participant is not in a room", ErrActionRejected)
	ErrAlreadyInRoom  = fmt.Errorf("%w: participant is already in a room", ErrActionRejected)
)

// errorMessage converts an error into the text shown to the player.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, ErrGameAlreadyStarted):
		return "Game already started"
	case errors.Is(err, ErrRoomFull):
		return "Room is full"
	case errors.Is(err, ErrNotHost):
		return "Only the host can do that"
	case errors.Is(err, ErrNotEnoughPlayers):
		return "Need at least 2 players to start"
	case errors.Is(err, ErrGameNotOver):
		return "The game is still in progress"
	case errors.Is(err, ErrInvalidName):
		return "Please enter a name between 1 and 20 characters"
	case errors.Is(err, ErrRateLimited):
		return "Slow down"
	case errors.Is(err, ErrUnknownAction):
		return "Unknown action"
	case errors.Is(err, ErrRoomExpired):
		return "Room expired"
	case errors.Is(err, ErrInvalidPlay):
		return "Cannot play card"
	case errors.Is(err, ErrNotInAnyRoom):
		return "You are not in a room"
	case errors.Is(err, ErrAlreadyInRoom):
		return "You are already in this room"
	case errors.Is(err, ErrActionRejected):
		return "Action rejected"
	default:
		return "Something went wrong"
	}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><p>%s</p></body></html>", body))

	return htmlBody.String()
}
