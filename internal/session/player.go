package session

import "math/rand"

// HandSize is the number of cards dealt to every participant at join.
const HandSize = 9

// Player is the session-scoped state of one participant. Identity and
// the persisted display name come from the player directory; everything
// else here is transient and dies with the session.
type Player struct {
	ID           string
	Name         string
	Ready        bool
	Hand         []*Card
	SacredStones int
	Initiative   int
}

func newPlayer(rng *rand.Rand, id, name string) *Player {
	p := &Player{
		ID:   id,
		Name: name,
		Hand: make([]*Card, 0, HandSize),
		// Placeholder initiative so pre-clash views show a die value;
		// the first clash roll overwrites it.
		Initiative: rng.Intn(initDie) + 1,
	}
	for i := 0; i < HandSize; i++ {
		style := styles[rng.Intn(len(styles))]
		level := rng.Intn(3) + 1
		p.Hand = append(p.Hand, NewCard(rng, style, level))
	}
	return p
}

// takeFromHand removes and returns the card with the given id.
func (p *Player) takeFromHand(cardID string) (*Card, bool) {
	for i, c := range p.Hand {
		if c.ID == cardID {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return c, true
		}
	}
	return nil, false
}

func (p *Player) returnToHand(c *Card) {
	p.Hand = append(p.Hand, c)
}
