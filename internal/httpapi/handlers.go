package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/inoka/clash-server/internal/auth"
	"github.com/inoka/clash-server/internal/directory"
	"github.com/inoka/clash-server/internal/registry"
	"github.com/inoka/clash-server/internal/session"
)

type API struct {
	log    *zap.SugaredLogger
	reg    *registry.Registry
	dir    *directory.Store
	issuer *auth.Issuer
}

func NewAPI(reg *registry.Registry, dir *directory.Store, issuer *auth.Issuer, log *zap.SugaredLogger) *API {
	return &API{log: log, reg: reg, dir: dir, issuer: issuer}
}

type playerResponse struct {
	Player directory.Player `json:"player"`
	Token  string           `json:"token"`
}

// AddPlayer registers a new player and issues them a token.
func (a *API) AddPlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	p, err := a.dir.Create(r.Context(), req.Name)
	if err != nil {
		a.fail(w, err)
		return
	}
	token, err := a.issuer.Issue(p.ID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, playerResponse{Player: p, Token: token})
}

// RefreshToken re-issues a token for an existing player.
func (a *API) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"playerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		http.Error(w, "missing playerId", http.StatusBadRequest)
		return
	}
	p, err := a.dir.Find(r.Context(), req.PlayerID)
	if err != nil {
		a.fail(w, err)
		return
	}
	token, err := a.issuer.Issue(p.ID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playerResponse{Player: p, Token: token})
}

func (a *API) FindPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := a.dir.Find(r.Context(), playerFrom(r.Context()))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}
	if err := a.dir.Rename(r.Context(), playerFrom(r.Context()), name); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) RemovePlayer(w http.ResponseWriter, r *http.Request) {
	if err := a.dir.Remove(r.Context(), playerFrom(r.Context())); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PlayerHand returns the caller's own hand. Hands are never part of the
// shared session view.
func (a *API) PlayerHand(w http.ResponseWriter, r *http.Request) {
	hand, err := a.reg.Hand(playerFrom(r.Context()))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hand)
}

func (a *API) PlayerSeat(w http.ResponseWriter, r *http.Request) {
	seat, err := a.reg.Seat(playerFrom(r.Context()))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seat)
}

// CreateGame joins an open lobby or creates one, optionally keyed by
// passcode, and returns the session id.
func (a *API) CreateGame(w http.ResponseWriter, r *http.Request) {
	passcode := r.URL.Query().Get("passcode")
	id, err := a.reg.CreateOrJoin(r.Context(), passcode, playerFrom(r.Context()))
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, id)
}

// FindGame returns the projection of the caller's current session.
func (a *API) FindGame(w http.ResponseWriter, r *http.Request) {
	sessionID, err := a.reg.SessionFor(playerFrom(r.Context()))
	if err != nil {
		a.fail(w, err)
		return
	}
	view, err := a.reg.Snapshot(sessionID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GamePlayers lists the seat-indexed participant views.
func (a *API) GamePlayers(w http.ResponseWriter, r *http.Request) {
	sessionID, err := a.reg.SessionFor(playerFrom(r.Context()))
	if err != nil {
		a.fail(w, err)
		return
	}
	view, err := a.reg.Snapshot(sessionID)
	if err != nil {
		a.fail(w, err)
		return
	}
	players := make([]session.PlayerView, 0, len(view.Players))
	for seat := 1; seat <= len(view.Players); seat++ {
		players = append(players, view.Players[seat])
	}
	writeJSON(w, http.StatusOK, players)
}

func (a *API) SetReady(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.SetReady(playerFrom(r.Context())); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) AllReady(w http.ResponseWriter, r *http.Request) {
	ready, err := a.reg.AllReady(r.URL.Query().Get("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ready)
}

// StartGame begins the match. A duplicate or premature request gets a
// conflict, not a crash.
func (a *API) StartGame(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.StartGame(bodyText(r)); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) StartClash(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.StartClash(bodyText(r)); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) ClashProcessed(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.ClashProcessed(bodyText(r)); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) RollInitiative(w http.ResponseWriter, r *http.Request) {
	roll, err := a.reg.RollInitiative(playerFrom(r.Context()))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roll)
}

func (a *API) PlayCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardID string `json:"cardId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CardID == "" {
		http.Error(w, "missing cardId", http.StatusBadRequest)
		return
	}
	if err := a.reg.PlayCard(playerFrom(r.Context()), req.CardID); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ClashAction resolves the caller's turn and returns the damage dealt,
// or -1 for a skip.
func (a *API) ClashAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetSeat int  `json:"targetSeat"`
		Skip       bool `json:"skip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	target := req.TargetSeat
	if req.Skip {
		target = registry.SkipTarget
	}
	dmg, err := a.reg.ResolveClashAction(playerFrom(r.Context()), target)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dmg)
}

func (a *API) RemoveCardInPlay(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.RemoveCardInPlay(playerFrom(r.Context())); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) GotKnockout(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.PickUpKnockout(playerFrom(r.Context())); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) WonClash(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.WonClash(playerFrom(r.Context())); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) GiveTotem(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.GiveTotem(playerFrom(r.Context())); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) ForfeitClash(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.ForfeitClash(playerFrom(r.Context())); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// fail maps the engine's error taxonomy onto status codes: unknown ids
// are 404, guard rejections 403, anything else 500.
func (a *API) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrSessionNotFound),
		errors.Is(err, registry.ErrPlayerNotInSession),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, session.ErrUnknownPlayer),
		errors.Is(err, session.ErrCardNotInHand),
		errors.Is(err, session.ErrNoCardInPlay):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrWrongState),
		errors.Is(err, session.ErrWrongTurn),
		errors.Is(err, session.ErrPlayersNotReady):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		a.log.Errorw("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// bodyText reads a text/plain body, typically a session id.
func bodyText(r *http.Request) string {
	data, err := io.ReadAll(io.LimitReader(r.Body, 256))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
