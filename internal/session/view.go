package session

import (
	"fmt"
	"strings"
)

// GameView is the only representation of a session that ever leaves the
// process. Every participant id is replaced by that participant's seat;
// opponents' hands are omitted entirely.
type GameView struct {
	ID                     string             `json:"id"`
	State                  State              `json:"state"`
	Players                map[int]PlayerView `json:"players"`
	CardsInPlay            map[int]Card       `json:"cardsInPlay"`
	AddSubDice             int                `json:"addSubDice"`
	CurrentInitiativeValue int                `json:"currentInitiativeValue"`
	InitiativeMap          map[int]int        `json:"initiativeMap"`
	LastAction             ActionView         `json:"lastAction"`
	CurrentPlayerSeat      *int               `json:"currentPlayerSeat"`
}

// PlayerView hides everything about a participant except what every
// client may see. DeckSize stands in for the hand itself.
type PlayerView struct {
	Seat         int    `json:"seat"`
	Name         string `json:"name"`
	IsReady      bool   `json:"isReady"`
	DeckSize     int    `json:"deckSize"`
	SacredStones int    `json:"sacredStones"`
	Initiative   int    `json:"initiative"`
}

// ActionView is the last action with seats in place of ids. A nil seat
// means "no participant" (a skip, or nothing resolved yet); seat 0 is
// never used as a marker.
type ActionView struct {
	DealingSeat   *int `json:"dealingSeat"`
	ReceivingSeat *int `json:"receivingSeat"`
	DamageDealt   int  `json:"damageDealt"`
}

// Snapshot projects the session into its client-safe view. Must be
// called while holding the session's lock.
func (s *Session) Snapshot() GameView {
	view := GameView{
		ID:                     s.ID,
		State:                  s.State,
		Players:                make(map[int]PlayerView, len(s.players)),
		CardsInPlay:            make(map[int]Card, len(s.inPlay)),
		AddSubDice:             s.addSubDice,
		CurrentInitiativeValue: s.currentInitiative,
		InitiativeMap:          make(map[int]int, len(s.initiative)),
	}

	for _, p := range s.players {
		seat := s.SeatFor(p.ID)
		view.Players[seat] = newPlayerView(p, seat)
	}
	for id, c := range s.inPlay {
		view.CardsInPlay[s.SeatFor(id)] = *c
	}
	for value, id := range s.initiative {
		view.InitiativeMap[value] = s.SeatFor(id)
	}

	view.LastAction = ActionView{
		DealingSeat:   s.seatRef(s.lastAction.DealerID),
		ReceivingSeat: s.seatRef(s.lastAction.ReceiverID),
		DamageDealt:   s.lastAction.Damage,
	}
	if s.currentInitiative != noInitiative {
		if id, ok := s.initiative[s.currentInitiative]; ok {
			view.CurrentPlayerSeat = s.seatRef(id)
		}
	}
	return view
}

func newPlayerView(p *Player, seat int) PlayerView {
	name := p.Name
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("Player %d", seat)
	}
	return PlayerView{
		Seat:         seat,
		Name:         name,
		IsReady:      p.Ready,
		DeckSize:     len(p.Hand),
		SacredStones: p.SacredStones,
		Initiative:   p.Initiative,
	}
}

func (s *Session) seatRef(playerID string) *int {
	if playerID == "" {
		return nil
	}
	seat := s.SeatFor(playerID)
	if seat == 0 {
		return nil
	}
	return &seat
}
