package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inoka/clash-server/internal/auth"
)

// SetupRoutes wires the player/game surface. Everything under /inoka
// except registration requires a bearer token.
func SetupRoutes(a *API, issuer *auth.Issuer, wsHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", wsHandler)

	r.Route("/inoka", func(r chi.Router) {
		r.Post("/player/add", a.AddPlayer)
		r.Post("/player/refresh-token", a.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(Authenticator(issuer))

			r.Get("/player/find", a.FindPlayer)
			r.Put("/player/update", a.UpdatePlayer)
			r.Delete("/player/remove", a.RemovePlayer)
			r.Get("/player/card/all", a.PlayerHand)
			r.Get("/player/seat", a.PlayerSeat)
			r.Put("/player/ready", a.SetReady)
			r.Get("/player/rollinit", a.RollInitiative)
			r.Put("/player/playcard", a.PlayCard)
			r.Delete("/player/cardInPlay", a.RemoveCardInPlay)
			r.Put("/player/gotKnockout", a.GotKnockout)
			r.Put("/player/giveTotem", a.GiveTotem)
			r.Put("/player/wonClash", a.WonClash)
			r.Put("/player/clashForfeit", a.ForfeitClash)

			r.Post("/game/create", a.CreateGame)
			r.Get("/game/find", a.FindGame)
			r.Get("/game/players", a.GamePlayers)
			r.Get("/game/ready", a.AllReady)
			r.Put("/game/start", a.StartGame)
			r.Put("/game/clash/start", a.StartClash)
			r.Put("/game/clash/processed", a.ClashProcessed)
			r.Put("/game/clash/action", a.ClashAction)
		})
	})

	return r
}
