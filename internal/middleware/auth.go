package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/scenyx-inbox/internal/api/respond"
)

type ctxKey int

const userIDKey ctxKey = iota

// TokenVerifier turns a bearer token into a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Auth requires a valid token, taken from the Authorization header or, for
// websocket upgrades, the token query parameter.
func Auth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				respond.Error(w, http.StatusUnauthorized, respond.CodeAuth, "missing token")
				return
			}
			userID, err := v.Verify(token)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Rejected token")
				respond.Error(w, http.StatusUnauthorized, respond.CodeAuth, "invalid token")
				return
			}
			ctx := WithUserID(r.Context(), userID)
			l := zerolog.Ctx(ctx).With().Str("user_id", userID).Logger()
			next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user of the request.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
