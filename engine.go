/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"math/rand/v2"
	"slices"
)

// Outcome is the consequence of a play. Exactly one variant applies.
type Outcome interface{ isOutcome() }

// Continued means the pile grew and nothing else happened.
type Continued struct{}

// LifeLost means cards were skipped; the level is replayed after a pause.
type LifeLost struct {
	LostCards []int
}

// LevelComplete means every hand is empty; the next level is dealt after a pause.
type LevelComplete struct{}

type GameWon struct{}

type GameLost struct{}

func (Continued) isOutcome()     {}
func (LifeLost) isOutcome()      {}
func (LevelComplete) isOutcome() {}
func (GameWon) isOutcome()       {}
func (GameLost) isOutcome()      {}

type Play struct {
	Card    int
	Outcome Outcome
}

// Engine applies the game rules to rooms handed to it by the caller.
type Engine struct {
	rng *rand.Rand
}

func NewEngine(src rand.Source) *Engine {
	return &Engine{rng: rand.New(src)}
}

func newEngine() *Engine {
	return NewEngine(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func (e *Engine) StartGame(room *Room) error {
	if len(room.Participants) < MinParticipants {
		return ErrNotEnoughPlayers
	}
	if room.State.Status != StatusWaiting {
		return ErrGameAlreadyStarted
	}

	room.State = GameState{Status: StatusPlaying, Level: 1}
	for _, p := range room.Participants {
		p.Fails = 0
	}

	e.DealCards(room)
	room.Epoch++

	return nil
}

// DealCards gives every participant room.State.Level cards. The values are
// drawn without replacement, shuffled, and handed out round-robin in
// join order.
func (e *Engine) DealCards(room *Room) {
	n := len(room.Participants)
	if n == 0 {
		return
	}

	total := n * room.State.Level

	cards := e.rng.Perm(CardMax - CardMin + 1)[:total]
	for i := range cards {
		cards[i] += CardMin
	}

	slices.Sort(cards)
	e.rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})

	for i, p := range room.Participants {
		hand := make([]int, 0, room.State.Level)
		for j := i; j < total; j += n {
			hand = append(hand, cards[j])
		}
		slices.Sort(hand)

		p.Hand = hand
	}
}

func (e *Engine) PlayCard(room *Room, id ParticipantID) (Play, error) {
	switch {
	case room.State.Status != StatusPlaying:
		return Play{}, ErrNotPlaying
	case room.State.Locked:
		return Play{}, ErrLevelLocked
	}

	actor, _ := room.participant(id)
	if actor == nil {
		return Play{}, ErrNotInRoom
	}
	if len(actor.Hand) == 0 {
		return Play{}, ErrNoCardsHeld
	}

	card := actor.Hand[0]
	actor.Hand = actor.Hand[1:]

	room.State.Played = append(room.State.Played, card)
	room.State.CurrentCard = card

	var lost []int
	for _, p := range room.Participants {
		if p == actor {
			continue
		}
		for len(p.Hand) > 0 && p.Hand[0] < card {
			lost = append(lost, p.Hand[0])
			p.Hand = p.Hand[1:]
		}
	}

	if len(lost) > 0 {
		actor.Fails++
		room.State.Locked = true
		room.Epoch++

		return Play{Card: card, Outcome: LifeLost{LostCards: lost}}, nil
	}

	return Play{Card: card, Outcome: e.Settle(room)}, nil
}

// Settle checks whether the level has been cleared. A cleared final level
// wins the game; any other cleared level locks the room until AdvanceLevel.
func (e *Engine) Settle(room *Room) Outcome {
	if room.State.Status != StatusPlaying || room.State.Locked || room.remainingCards() > 0 {
		return Continued{}
	}

	if room.State.Level >= MaxLevel {
		room.State.Status = StatusWon
		room.Epoch++

		return GameWon{}
	}

	room.State.Locked = true
	room.Epoch++

	return LevelComplete{}
}

// ResetLevel replays the current level with a fresh deal.
func (e *Engine) ResetLevel(room *Room) {
	if room.State.Status != StatusPlaying {
		return
	}

	room.clearPile()
	e.DealCards(room)
	room.State.Locked = false
	room.Epoch++
}

func (e *Engine) AdvanceLevel(room *Room) {
	if room.State.Status != StatusPlaying {
		return
	}

	if room.State.Level < MaxLevel {
		room.State.Level++
	}
	room.clearPile()
	e.DealCards(room)
	room.State.Locked = false
	room.Epoch++
}

func (e *Engine) RestartGame(room *Room) {
	room.State = GameState{Status: StatusWaiting, Level: 1}
	for _, p := range room.Participants {
		p.Hand = nil
		p.Fails = 0
	}
	room.Epoch++
}
