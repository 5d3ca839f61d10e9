package session

import (
	"math/rand"

	"github.com/google/uuid"
)

// Style is a card's combat style. The matchup cycle is
// Attacker > Trickster > Defender > Attacker.
type Style string

const (
	StyleAttacker  Style = "ATTACKER"
	StyleDefender  Style = "DEFENDER"
	StyleTrickster Style = "TRICKSTER"
)

var styles = []Style{StyleAttacker, StyleDefender, StyleTrickster}

// Card is one combat unit. Cards are created once when a hand is dealt
// and live for the whole match; the only mutations are damage, healing,
// totem possession and taunter charges.
type Card struct {
	ID             string `json:"id"`
	Style          Style  `json:"style"`
	Level          int    `json:"level"`
	MaxHP          int    `json:"maxHp"`
	CurHP          int    `json:"curHp"`
	HasTotem       bool   `json:"hasTotem"`
	TaunterCharges int    `json:"taunterCharges"`
}

// NewCard rolls hit points for a fresh card. Levels run 1-3.
func NewCard(rng *rand.Rand, style Style, level int) *Card {
	c := &Card{
		ID:    uuid.NewString(),
		Style: style,
		Level: level,
	}
	c.MaxHP = rollHitDice(rng, style, level)
	c.CurHP = c.MaxHP
	return c
}

// One d12 + 1 + level per level; Defenders roll a bonus (d4+1) per level.
func rollHitDice(rng *rand.Rand, style Style, level int) int {
	hp := 0
	for i := 0; i < level; i++ {
		hp += rng.Intn(12) + 1 + level
	}
	if style == StyleDefender {
		hp += (rng.Intn(4) + 1) * level
	}
	return hp
}

// TakeDamage lowers current HP. HP may go negative; knockout handling
// belongs to the caller.
func (c *Card) TakeDamage(dmg int) { c.CurHP -= dmg }

func (c *Card) Heal(hp int) { c.CurHP += hp }

func (c *Card) GiveTotem() { c.HasTotem = true }
func (c *Card) TakeTotem() { c.HasTotem = false }

// GenerateTaunterCharges converts a d12 roll into charges.
func (c *Card) GenerateTaunterCharges(roll int) {
	switch {
	case roll <= 4:
		c.TaunterCharges = 1
	case roll <= 8:
		c.TaunterCharges = 2
	default:
		c.TaunterCharges = 3
	}
}

// SpendTaunterCharge consumes one charge and reports whether one was
// available.
func (c *Card) SpendTaunterCharge() bool {
	if c.TaunterCharges < 1 {
		return false
	}
	c.TaunterCharges--
	return true
}
