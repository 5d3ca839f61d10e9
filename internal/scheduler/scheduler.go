// Package scheduler decouples "a mutation happened" from "clients were
// notified": bursts of dirty marks collapse into one broadcast per
// session per flush interval, last write wins.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inoka/clash-server/internal/registry"
	"github.com/inoka/clash-server/internal/session"
)

// DefaultInterval matches the 500ms cadence clients animate against.
const DefaultInterval = 500 * time.Millisecond

// Broadcaster delivers a payload to everyone subscribed to a topic.
// Fire-and-forget; no delivery confirmation is expected.
type Broadcaster interface {
	Publish(topic string, payload []byte)
}

// Source is the read side of the registry: fresh snapshots taken under
// the session's lock.
type Source interface {
	Snapshot(sessionID string) (session.GameView, error)
	Hands(sessionID string) (map[string][]session.Card, error)
}

type Scheduler struct {
	log      *zap.SugaredLogger
	out      Broadcaster
	interval time.Duration

	mu    sync.Mutex
	dirty map[string]struct{}
}

func New(out Broadcaster, interval time.Duration, log *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		log:      log,
		out:      out,
		interval: interval,
		dirty:    make(map[string]struct{}),
	}
}

// MarkDirty flags a session for the next flush. Non-blocking and
// idempotent, so mutating callers never wait on broadcasting.
func (sc *Scheduler) MarkDirty(sessionID string) {
	sc.mu.Lock()
	sc.dirty[sessionID] = struct{}{}
	sc.mu.Unlock()
}

// Run drives the flush cycle until the context is cancelled.
func (sc *Scheduler) Run(ctx context.Context, src Source) error {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sc.flush(src)
		}
	}
}

// flush broadcasts one snapshot per dirty session. The dirty set is
// swapped out first: a mutation landing mid-flush re-marks the session
// and is picked up next interval.
func (sc *Scheduler) flush(src Source) {
	sc.mu.Lock()
	pending := sc.dirty
	sc.dirty = make(map[string]struct{})
	sc.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	sc.log.Debugw("broadcasting pending updates", "sessions", len(pending))

	for id := range pending {
		view, err := src.Snapshot(id)
		if errors.Is(err, registry.ErrSessionNotFound) {
			continue // reaped between mark and flush
		}
		if err != nil {
			sc.log.Warnw("snapshot session", "session", id, "err", err)
			continue
		}
		payload, err := json.Marshal(view)
		if err != nil {
			sc.log.Errorw("marshal view", "session", id, "err", err)
			continue
		}
		sc.out.Publish(GameTopic(id), payload)

		hands, err := src.Hands(id)
		if err != nil {
			continue
		}
		for playerID, hand := range hands {
			deck, err := json.Marshal(hand)
			if err != nil {
				continue
			}
			sc.out.Publish(DeckTopic(playerID), deck)
		}
	}
}

// GameTopic is the per-session broadcast topic.
func GameTopic(sessionID string) string { return "game/" + sessionID }

// DeckTopic is the private per-participant hand feed.
func DeckTopic(playerID string) string { return "player/" + playerID + "/deck" }
