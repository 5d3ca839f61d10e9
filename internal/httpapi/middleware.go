package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/inoka/clash-server/internal/auth"
)

type ctxKey int

const playerKey ctxKey = iota

// Authenticator verifies the bearer token and stashes the player id in
// the request context. Tokens arrive in the Authorization header or,
// for clients that cannot set headers, a token query parameter.
func Authenticator(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
			playerID, err := issuer.Verify(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerKey, playerID)))
		})
	}
}

func playerFrom(ctx context.Context) string {
	id, _ := ctx.Value(playerKey).(string)
	return id
}
