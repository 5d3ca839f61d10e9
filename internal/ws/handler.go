package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/inoka/clash-server/internal/auth"
	"github.com/inoka/clash-server/internal/registry"
	"github.com/inoka/clash-server/internal/scheduler"
	"github.com/inoka/clash-server/internal/session"
)

// ClientMessage is one inbound player action.
type ClientMessage struct {
	Type       string `json:"type"`
	CardID     string `json:"cardId,omitempty"`
	TargetSeat int    `json:"targetSeat,omitempty"`
	Skip       bool   `json:"skip,omitempty"`
}

// ServerMessage wraps an outbound payload so clients can demux the
// shared-session feed from their private deck feed.
type ServerMessage struct {
	Type  string          `json:"type"` // "GameView" | "Deck" | "Error"
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Handler upgrades a connection for a participant already in a session:
// it subscribes them to the session topic and their private deck topic,
// and feeds inbound actions into the registry.
func Handler(h *Hub, reg *registry.Registry, issuer *auth.Issuer, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		playerID, err := issuer.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		sessionID, err := reg.SessionFor(playerID)
		if err != nil {
			http.Error(w, "not in a session", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		gameSub := h.Subscribe(scheduler.GameTopic(sessionID))
		deckSub := h.Subscribe(scheduler.DeckTopic(playerID))
		defer h.Unsubscribe(gameSub)
		defer h.Unsubscribe(deckSub)
		log.Infow("subscribed", "player", playerID, "session", sessionID)

		// Single writer goroutine; forwarders funnel both topics into it
		// and the channel closes once both subscriptions are gone.
		out := make(chan ServerMessage, 16)
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		var forwarders sync.WaitGroup
		forwarders.Add(2)
		go forward(&forwarders, out, gameSub, "GameView")
		go forward(&forwarders, out, deckSub, "Deck")
		go func() {
			forwarders.Wait()
			close(out)
		}()
		go func() {
			for msg := range out {
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop. The deadline reaps dead connections that never
		// spoke up again; live clients ping well inside it.
		for {
			readCtx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
			_, data, err := conn.Read(readCtx)
			cancel()
			if err != nil {
				// Clean close/going-away is normal; anything else just
				// ends the connection too.
				return
			}

			var cm ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}
			if err := dispatch(reg, sessionID, playerID, cm); err != nil {
				writeError(r.Context(), conn, errorText(err))
			}
		}
	}
}

func forward(wg *sync.WaitGroup, out chan<- ServerMessage, sub *Subscription, typ string) {
	defer wg.Done()
	for payload := range sub.C {
		out <- ServerMessage{Type: typ, Data: payload}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, text string) {
	payload, _ := json.Marshal(ServerMessage{Type: "Error", Error: text})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

func dispatch(reg *registry.Registry, sessionID, playerID string, cm ClientMessage) error {
	switch cm.Type {
	case "playerReady":
		return reg.SetReady(playerID)
	case "playCard":
		return reg.PlayCard(playerID, cm.CardID)
	case "clashStart", "clashNew":
		return reg.StartClash(sessionID)
	case "clashProcessed":
		return reg.ClashProcessed(sessionID)
	case "rollInitiative":
		_, err := reg.RollInitiative(playerID)
		return err
	case "clashAction":
		target := cm.TargetSeat
		if cm.Skip {
			target = registry.SkipTarget
		}
		_, err := reg.ResolveClashAction(playerID, target)
		return err
	case "giveTotem":
		return reg.GiveTotem(playerID)
	case "gotKnockout":
		return reg.PickUpKnockout(playerID)
	case "clashForfeit":
		return reg.ForfeitClash(playerID)
	case "wonClash":
		return reg.WonClash(playerID)
	default:
		return errors.New("unknown type")
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, session.ErrWrongState),
		errors.Is(err, session.ErrWrongTurn),
		errors.Is(err, session.ErrPlayersNotReady):
		return "rejected"
	case errors.Is(err, registry.ErrSessionNotFound),
		errors.Is(err, registry.ErrPlayerNotInSession),
		errors.Is(err, session.ErrUnknownPlayer),
		errors.Is(err, session.ErrCardNotInHand),
		errors.Is(err, session.ErrNoCardInPlay):
		return "not found"
	default:
		return "internal error"
	}
}
