package registry

import "github.com/inoka/clash-server/internal/session"

// Every player-facing operation is one mutation body run under the
// target session's lock. Guard rejections come back as the session
// package's sentinel errors with no state change and no dirty mark.

// SetReady marks the participant ready in their current lobby.
func (r *Registry) SetReady(playerID string) error {
	return r.mutateFor(playerID, func(s *session.Session) error {
		return s.SetReady(playerID)
	})
}

// StartGame begins the match once every participant is ready.
func (r *Registry) StartGame(sessionID string) error {
	return r.Mutate(sessionID, func(s *session.Session) error {
		return s.Start()
	})
}

// AllReady reports whether every participant in the session is ready.
func (r *Registry) AllReady(sessionID string) (bool, error) {
	e := r.entry(sessionID)
	if e == nil {
		return false, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.AllReady(), nil
}

// PlayCard puts one of the participant's hand cards into play.
func (r *Registry) PlayCard(playerID, cardID string) error {
	return r.mutateFor(playerID, func(s *session.Session) error {
		return s.PlayCard(playerID, cardID)
	})
}

// RemoveCardInPlay takes the participant's played card back into hand.
func (r *Registry) RemoveCardInPlay(playerID string) error {
	return r.mutateFor(playerID, func(s *session.Session) error {
		return s.RemoveCardInPlay(playerID)
	})
}

// StartClash moves the session into initiative rolling.
func (r *Registry) StartClash(sessionID string) error {
	return r.Mutate(sessionID, func(s *session.Session) error {
		return s.StartClash()
	})
}

// RollInitiative rolls clash initiative for the participant and returns
// the registered value.
func (r *Registry) RollInitiative(playerID string) (int, error) {
	var roll int
	err := r.mutateFor(playerID, func(s *session.Session) error {
		var err error
		roll, err = s.RollInitiative(playerID)
		return err
	})
	return roll, err
}

// SkipTarget as the target seat means the acting participant skips
// their turn.
const SkipTarget = 0

// ResolveClashAction resolves the participant's clash turn against the
// target seat, or skips for SkipTarget. Returns the damage dealt, or
// session.SkipDamage for a skip.
func (r *Registry) ResolveClashAction(playerID string, targetSeat int) (int, error) {
	var dmg int
	err := r.mutateFor(playerID, func(s *session.Session) error {
		targetID := ""
		if targetSeat != SkipTarget {
			id, ok := s.PlayerAtSeat(targetSeat)
			if !ok {
				return session.ErrUnknownPlayer
			}
			targetID = id
		}
		var err error
		dmg, err = s.ResolveClashAction(playerID, targetID)
		return err
	})
	return dmg, err
}

// ClashProcessed acknowledges the resolved action and advances the
// turn.
func (r *Registry) ClashProcessed(sessionID string) error {
	return r.Mutate(sessionID, func(s *session.Session) error {
		return s.ClashProcessed()
	})
}

// PickUpKnockout credits the participant with a knockout pickup.
func (r *Registry) PickUpKnockout(playerID string) error {
	return r.mutateFor(playerID, func(s *session.Session) error {
		return s.PickUpKnockout(playerID)
	})
}

// ForfeitClash withdraws the participant from the running clash.
func (r *Registry) ForfeitClash(playerID string) error {
	return r.mutateFor(playerID, func(s *session.Session) error {
		return s.ForfeitClash(playerID)
	})
}

// WonClash records the participant as the clash winner.
func (r *Registry) WonClash(playerID string) error {
	return r.mutateFor(playerID, func(s *session.Session) error {
		return s.WonClash(playerID)
	})
}

// GiveTotem hands the totem to the participant's played card.
func (r *Registry) GiveTotem(playerID string) error {
	return r.mutateFor(playerID, func(s *session.Session) error {
		return s.GiveTotem(playerID)
	})
}

// Seat returns the participant's seat in their current session.
func (r *Registry) Seat(playerID string) (int, error) {
	sessionID, err := r.SessionFor(playerID)
	if err != nil {
		return 0, err
	}
	e := r.entry(sessionID)
	if e == nil {
		return 0, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.SeatFor(playerID), nil
}

func (r *Registry) mutateFor(playerID string, fn func(*session.Session) error) error {
	sessionID, err := r.SessionFor(playerID)
	if err != nil {
		return err
	}
	return r.Mutate(sessionID, fn)
}
