package session

import (
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
)

var ErrWrongState = errors.New("invalid state")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrWrongTurn = errors.New("not this player's turn")
var ErrCardNotInHand = errors.New("card not in hand")
var ErrNoCardInPlay = errors.New("no card in play")
var ErrPlayersNotReady = errors.New("players not ready")

// State is the lifecycle state of a session. The wire strings are part
// of the client contract.
type State string

const (
	StateWaitingForPlayers State = "WAITING_FOR_PLAYERS"
	StateDrawingCards      State = "DRAWING_CARDS"
	StateCountDown         State = "COUNT_DOWN"
	StateClashRollInit     State = "CLASH_ROLL_INIT"
	StateClashPlayerTurn   State = "CLASH_PLAYER_TURN"
	StateClashProcessing   State = "CLASH_PROCESSING_DECISION"
	StateClashConcluded    State = "CLASH_CONCLUDED"
	StateFinished          State = "FINISHED"
)

const (
	// noInitiative marks "no initiative value being resolved".
	noInitiative = -1
	// initDie is the initiative roll range; higher acts first.
	initDie = 12
	// defaultAddSubDice sizes the style-matchup damage modifier.
	defaultAddSubDice = 6
	// maxRollRetries bounds the retry-until-unique initiative roll
	// before falling back to the lowest free value.
	maxRollRetries = 64
)

// SkipDamage is recorded as the damage of a skipped clash action.
const SkipDamage = -1

// Action is the last resolved combat action. ReceiverID is empty for a
// skip, and Damage is SkipDamage.
type Action struct {
	DealerID   string
	ReceiverID string
	Damage     int
}

// Session is the authoritative state of one game. It is not safe for
// concurrent use; the registry serializes all access through a
// per-session lock.
type Session struct {
	ID       string
	Passcode string
	State    State

	rng        *rand.Rand
	players    map[string]*Player
	joinOrder  []string
	inPlay     map[string]*Card
	addSubDice int

	currentInitiative int
	initiative        map[int]string // initiative value -> player id
	lastAction        Action
}

// New creates an open lobby. An empty passcode means public
// matchmaking.
func New(passcode string) *Session {
	return NewWithRand(passcode, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand pins the session's dice to a caller-supplied source.
func NewWithRand(passcode string, rng *rand.Rand) *Session {
	return &Session{
		ID:                uuid.NewString(),
		Passcode:          passcode,
		State:             StateWaitingForPlayers,
		rng:               rng,
		players:           make(map[string]*Player),
		inPlay:            make(map[string]*Card),
		addSubDice:        defaultAddSubDice,
		currentInitiative: noInitiative,
		initiative:        make(map[int]string),
		lastAction:        Action{Damage: 0},
	}
}

// SetAddSubDice configures the matchup die size.
func (s *Session) SetAddSubDice(size int) { s.addSubDice = size }

// AddPlayer deals a 9-card hand and seats the participant. Joining the
// same session twice is a no-op, keeping the participant map free of
// duplicates.
func (s *Session) AddPlayer(id, name string) error {
	if s.State != StateWaitingForPlayers {
		return ErrWrongState
	}
	if _, ok := s.players[id]; ok {
		return nil
	}
	s.players[id] = newPlayer(s.rng, id, name)
	s.joinOrder = append(s.joinOrder, id)
	return nil
}

// SeatFor returns the participant's seat, a dense 1..N assignment by
// join order, or 0 for an unknown participant.
func (s *Session) SeatFor(playerID string) int {
	for i, id := range s.joinOrder {
		if id == playerID {
			return i + 1
		}
	}
	return 0
}

// PlayerAtSeat is the reverse of SeatFor.
func (s *Session) PlayerAtSeat(seat int) (string, bool) {
	if seat < 1 || seat > len(s.joinOrder) {
		return "", false
	}
	return s.joinOrder[seat-1], true
}

func (s *Session) Player(id string) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// Players returns participants in join order.
func (s *Session) Players() []*Player {
	out := make([]*Player, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		out = append(out, s.players[id])
	}
	return out
}

func (s *Session) CardInPlay(playerID string) (*Card, bool) {
	c, ok := s.inPlay[playerID]
	return c, ok
}

// LastAction returns the last resolved combat action.
func (s *Session) LastAction() Action { return s.lastAction }

// CurrentInitiativeValue returns the value being resolved, or -1.
func (s *Session) CurrentInitiativeValue() int { return s.currentInitiative }

// SetReady marks a participant ready. Only meaningful while the lobby
// is open.
func (s *Session) SetReady(playerID string) error {
	if s.State != StateWaitingForPlayers {
		return ErrWrongState
	}
	p, ok := s.players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	p.Ready = true
	return nil
}

// AllReady reports whether every participant has readied up.
func (s *Session) AllReady() bool {
	for _, p := range s.players {
		if !p.Ready {
			return false
		}
	}
	return len(s.players) > 0
}

// Start moves the lobby into card drawing. Requires every participant
// ready; duplicate or premature requests are rejected unchanged.
func (s *Session) Start() error {
	if s.State != StateWaitingForPlayers {
		return ErrWrongState
	}
	if !s.AllReady() {
		return ErrPlayersNotReady
	}
	s.State = StateDrawingCards
	return nil
}

// PlayCard moves a card from the participant's hand into play. Once
// every participant has a card in play the session advances to the
// pre-clash countdown.
func (s *Session) PlayCard(playerID, cardID string) error {
	if s.State != StateDrawingCards {
		return ErrWrongState
	}
	p, ok := s.players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if _, ok := s.inPlay[playerID]; ok {
		return ErrWrongTurn
	}
	c, ok := p.takeFromHand(cardID)
	if !ok {
		return ErrCardNotInHand
	}
	s.inPlay[playerID] = c
	if len(s.inPlay) == len(s.players) {
		s.State = StateCountDown
	}
	return nil
}

// RemoveCardInPlay returns the participant's played card to their hand.
func (s *Session) RemoveCardInPlay(playerID string) error {
	p, ok := s.players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	c, ok := s.inPlay[playerID]
	if !ok {
		return ErrNoCardInPlay
	}
	delete(s.inPlay, playerID)
	p.returnToHand(c)
	return nil
}

// StartClash begins a clash round: initiative is cleared and every
// participant must roll again. Valid from the countdown or after a
// concluded clash.
func (s *Session) StartClash() error {
	if s.State != StateCountDown && s.State != StateClashConcluded {
		return ErrWrongState
	}
	s.State = StateClashRollInit
	s.currentInitiative = noInitiative
	s.initiative = make(map[int]string)
	s.ResetTotems()
	return nil
}

// RollInitiative rolls a d12 for the participant, plus the played
// card's level for Tricksters. Ties are disallowed: colliding rolls are
// retried, and after maxRollRetries the lowest free value is taken so
// the roll always terminates. Once everyone holds a unique value the
// session advances to the first turn.
func (s *Session) RollInitiative(playerID string) (int, error) {
	if s.State != StateClashRollInit {
		return 0, ErrWrongState
	}
	p, ok := s.players[playerID]
	if !ok {
		return 0, ErrUnknownPlayer
	}
	bonus := 0
	if c := s.inPlay[playerID]; c != nil && c.Style == StyleTrickster {
		bonus = c.Level
	}

	roll := 0
	for i := 0; i < maxRollRetries; i++ {
		r := s.rng.Intn(initDie) + 1 + bonus
		if s.registerInitiative(r, playerID) {
			roll = r
			break
		}
	}
	if roll == 0 {
		for v := 1; ; v++ {
			if s.registerInitiative(v, playerID) {
				roll = v
				break
			}
		}
	}
	p.Initiative = roll

	if len(s.initiative) == len(s.players) {
		s.State = StateClashPlayerTurn
		s.NextInitiativeValue()
	}
	return roll, nil
}

// registerInitiative claims a value for the participant, first dropping
// any value they held before. A value held by anyone (including the
// caller) is a collision.
func (s *Session) registerInitiative(value int, playerID string) bool {
	if _, taken := s.initiative[value]; taken {
		return false
	}
	for v, id := range s.initiative {
		if id == playerID {
			delete(s.initiative, v)
		}
	}
	s.initiative[value] = playerID
	return true
}

// NextInitiativeValue advances the clash turn order: a strict
// descending round-robin over the registered values, wrapping from the
// lowest back to the highest. The first call after a reset selects the
// highest value. Returns -1 when nothing is registered.
func (s *Session) NextInitiativeValue() int {
	if len(s.initiative) == 0 {
		return noInitiative
	}
	vals := make([]int, 0, len(s.initiative))
	for v := range s.initiative {
		vals = append(vals, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(vals)))

	prev := s.currentInitiative
	next := 0 // wrap to the highest when prev is the lowest or gone
	if prev != noInitiative {
		for i, v := range vals {
			if v == prev && i+1 < len(vals) {
				next = i + 1
				break
			}
		}
	}
	s.currentInitiative = vals[next]
	return s.currentInitiative
}

// ResolveClashAction resolves the acting participant's turn: an attack
// against the target, or a skip when targetID is empty. The session
// then waits for the client-side effect to be acknowledged.
func (s *Session) ResolveClashAction(dealerID, targetID string) (int, error) {
	if s.State != StateClashPlayerTurn {
		return 0, ErrWrongState
	}
	if _, ok := s.players[dealerID]; !ok {
		return 0, ErrUnknownPlayer
	}
	if s.initiative[s.currentInitiative] != dealerID {
		return 0, ErrWrongTurn
	}

	if targetID == "" {
		s.lastAction = Action{DealerID: dealerID, Damage: SkipDamage}
		s.State = StateClashProcessing
		return SkipDamage, nil
	}

	dealer, ok := s.inPlay[dealerID]
	if !ok {
		return 0, ErrNoCardInPlay
	}
	receiver, ok := s.inPlay[targetID]
	if !ok {
		return 0, ErrNoCardInPlay
	}
	dmg := s.dealDamage(dealer, receiver)
	s.lastAction = Action{DealerID: dealerID, ReceiverID: targetID, Damage: dmg}
	s.State = StateClashProcessing
	return dmg, nil
}

// ClashProcessed acknowledges the client-side effect and hands the turn
// to the next initiative value.
func (s *Session) ClashProcessed() error {
	if s.State != StateClashProcessing {
		return ErrWrongState
	}
	s.NextInitiativeValue()
	s.State = StateClashPlayerTurn
	return nil
}

// dealDamage applies the damage formula: d8 base, +level for Attackers,
// plus or minus a matchup die for style advantage or disadvantage,
// clamped at zero.
func (s *Session) dealDamage(dealer, receiver *Card) int {
	adv, dis := matchup(dealer.Style, receiver.Style)
	dmg := s.rng.Intn(8) + 1
	if dealer.Style == StyleAttacker {
		dmg += dealer.Level
	}
	if adv {
		dmg += s.rng.Intn(s.addSubDice) + 1
	}
	if dis {
		dmg -= s.rng.Intn(s.addSubDice) + 1
	}
	if dmg < 0 {
		dmg = 0
	}
	receiver.TakeDamage(dmg)
	return dmg
}

// matchup resolves the style cycle for the dealing card.
func matchup(dealing, receiving Style) (advantage, disadvantage bool) {
	switch dealing {
	case StyleAttacker:
		return receiving == StyleTrickster, receiving == StyleDefender
	case StyleDefender:
		return receiving == StyleAttacker, receiving == StyleTrickster
	case StyleTrickster:
		return receiving == StyleDefender, receiving == StyleAttacker
	}
	return false, false
}

// GiveTotem hands the totem to the participant's played card and heals
// it by a d12.
func (s *Session) GiveTotem(playerID string) error {
	c, ok := s.inPlay[playerID]
	if !ok {
		return ErrNoCardInPlay
	}
	c.GiveTotem()
	c.Heal(s.rng.Intn(12) + 1)
	return nil
}

// ResetTotems removes the totem from every card in play.
func (s *Session) ResetTotems() {
	for _, c := range s.inPlay {
		if c.HasTotem {
			c.TakeTotem()
		}
	}
}

// PickUpKnockout awards a sacred stone for collecting a knockout and
// returns the participant's card to their hand.
func (s *Session) PickUpKnockout(playerID string) error {
	p, ok := s.players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	p.SacredStones++
	if c, ok := s.inPlay[playerID]; ok {
		delete(s.inPlay, playerID)
		p.returnToHand(c)
	}
	return nil
}

// ForfeitClash withdraws the participant from the running clash. When
// at most one initiative entry remains the clash concludes; otherwise,
// if the forfeiter held the current turn, it passes on so the round
// keeps moving.
func (s *Session) ForfeitClash(playerID string) error {
	if !s.inClash() {
		return ErrWrongState
	}
	p, ok := s.players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	heldTurn := false
	for v, id := range s.initiative {
		if id == playerID {
			if v == s.currentInitiative {
				heldTurn = true
			}
			delete(s.initiative, v)
		}
	}
	if c, ok := s.inPlay[playerID]; ok {
		delete(s.inPlay, playerID)
		p.returnToHand(c)
	}
	if len(s.initiative) <= 1 {
		s.State = StateClashConcluded
	} else if heldTurn && s.State == StateClashPlayerTurn {
		s.NextInitiativeValue()
	}
	return nil
}

// WonClash awards a sacred stone to the clash winner and concludes the
// round.
func (s *Session) WonClash(playerID string) error {
	if !s.inClash() {
		return ErrWrongState
	}
	p, ok := s.players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	p.SacredStones++
	s.State = StateClashConcluded
	return nil
}

func (s *Session) inClash() bool {
	switch s.State {
	case StateClashRollInit, StateClashPlayerTurn, StateClashProcessing:
		return true
	}
	return false
}
