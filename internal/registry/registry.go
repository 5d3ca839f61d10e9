// Package registry is the single authority through which all session
// state changes flow. Matchmaking admission is one serialization
// domain; every session carries its own lock, so unrelated sessions
// never contend.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inoka/clash-server/internal/session"
)

var ErrSessionNotFound = errors.New("session not found")
var ErrPlayerNotInSession = errors.New("player not in a session")

// Directory resolves participant identity. The registry needs nothing
// beyond a display name and assumes nothing about persistence.
type Directory interface {
	Resolve(ctx context.Context, playerID string) (name string, err error)
	Assign(ctx context.Context, playerID, sessionID string) error
}

// Notifier receives dirty marks after successful mutations. Marking
// must be non-blocking and idempotent.
type Notifier interface {
	MarkDirty(sessionID string)
}

type entry struct {
	mu      sync.Mutex
	s       *session.Session
	touched time.Time
}

type Registry struct {
	log    *zap.SugaredLogger
	dir    Directory
	notify Notifier

	// admission serializes the scan-then-join/create matchmaking
	// decision so one passcode never spawns two lobbies.
	admission sync.Mutex

	mu       sync.RWMutex
	sessions map[string]*entry
	byPlayer map[string]string // player id -> session id
}

func New(dir Directory, notify Notifier, log *zap.SugaredLogger) *Registry {
	return &Registry{
		log:      log,
		dir:      dir,
		notify:   notify,
		sessions: make(map[string]*entry),
		byPlayer: make(map[string]string),
	}
}

// CreateOrJoin places the participant into a lobby: any open public
// lobby for an empty passcode, the matching open lobby for a passcode,
// or a freshly created one. The whole decision-and-mutate sequence is
// atomic with respect to other CreateOrJoin calls.
func (r *Registry) CreateOrJoin(ctx context.Context, passcode, playerID string) (string, error) {
	name, err := r.dir.Resolve(ctx, playerID)
	if err != nil {
		return "", err
	}

	r.admission.Lock()
	defer r.admission.Unlock()

	if id, ok := r.joinExisting(passcode, playerID, name); ok {
		return id, r.finishJoin(ctx, playerID, id)
	}

	s := session.New(passcode)
	if err := s.AddPlayer(playerID, name); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.sessions[s.ID] = &entry{s: s, touched: time.Now()}
	r.mu.Unlock()
	r.log.Infow("session created", "session", s.ID, "public", passcode == "")
	return s.ID, r.finishJoin(ctx, playerID, s.ID)
}

// joinExisting scans for an eligible open lobby and, under that
// session's lock, adds the participant. Only sessions still waiting for
// players are eligible.
func (r *Registry) joinExisting(passcode, playerID, name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, e := range r.sessions {
		e.mu.Lock()
		eligible := e.s.State == session.StateWaitingForPlayers && e.s.Passcode == passcode
		if eligible {
			if err := e.s.AddPlayer(playerID, name); err == nil {
				e.touched = time.Now()
				e.mu.Unlock()
				return id, true
			}
		}
		e.mu.Unlock()
	}
	return "", false
}

func (r *Registry) finishJoin(ctx context.Context, playerID, sessionID string) error {
	r.mu.Lock()
	r.byPlayer[playerID] = sessionID
	r.mu.Unlock()
	if err := r.dir.Assign(ctx, playerID, sessionID); err != nil {
		// The join already happened; directory bookkeeping failing is
		// not a reason to tear the session down.
		r.log.Warnw("assign player to session", "player", playerID, "err", err)
	}
	r.notify.MarkDirty(sessionID)
	r.log.Infow("player joined", "player", playerID, "session", sessionID)
	return nil
}

// Mutate runs fn under the session's exclusive lock. A nil error marks
// the session dirty; a guard rejection leaves no trace.
func (r *Registry) Mutate(sessionID string, fn func(*session.Session) error) error {
	e := r.entry(sessionID)
	if e == nil {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	err := fn(e.s)
	if err == nil {
		e.touched = time.Now()
	}
	e.mu.Unlock()
	if err == nil {
		r.notify.MarkDirty(sessionID)
	}
	return err
}

func (r *Registry) entry(sessionID string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// SessionFor returns the id of the session the participant is in.
func (r *Registry) SessionFor(playerID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPlayer[playerID]
	if !ok {
		return "", ErrPlayerNotInSession
	}
	return id, nil
}

// Snapshot returns the client-safe projection of a session.
func (r *Registry) Snapshot(sessionID string) (session.GameView, error) {
	e := r.entry(sessionID)
	if e == nil {
		return session.GameView{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Snapshot(), nil
}

// Hands returns a copy of every participant's hand, keyed by player id.
// Hands are confidential: this feeds the private per-participant deck
// channel only.
func (r *Registry) Hands(sessionID string) (map[string][]session.Card, error) {
	e := r.entry(sessionID)
	if e == nil {
		return nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]session.Card, len(e.s.Players()))
	for _, p := range e.s.Players() {
		hand := make([]session.Card, 0, len(p.Hand))
		for _, c := range p.Hand {
			hand = append(hand, *c)
		}
		out[p.ID] = hand
	}
	return out, nil
}

// Hand returns a copy of one participant's hand.
func (r *Registry) Hand(playerID string) ([]session.Card, error) {
	sessionID, err := r.SessionFor(playerID)
	if err != nil {
		return nil, err
	}
	hands, err := r.Hands(sessionID)
	if err != nil {
		return nil, err
	}
	return hands[playerID], nil
}

// Reap drops sessions that have not been mutated within maxIdle. The
// exact policy is an operational concern, not part of the game
// contract.
func (r *Registry) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.admission.Lock()
	defer r.admission.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	for id, e := range r.sessions {
		e.mu.Lock()
		idle := e.touched.Before(cutoff)
		var players []string
		if idle {
			for _, p := range e.s.Players() {
				players = append(players, p.ID)
			}
		}
		e.mu.Unlock()
		if !idle {
			continue
		}
		delete(r.sessions, id)
		for _, pid := range players {
			if r.byPlayer[pid] == id {
				delete(r.byPlayer, pid)
			}
		}
		reaped++
		r.log.Infow("session reaped", "session", id)
	}
	return reaped
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
