package mw

import (
	"context"
	"net/http"
	"strings"

	"itflow/internal/model"
	"itflow/internal/token"
)

type contextKey string

const actorCtxKey contextKey = "actor"

// AccessParser validates bearer tokens.
type AccessParser interface {
	ParseAccess(raw string) (*token.Claims, error)
}

func AuthMiddleware(tokens AccessParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided")
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeDetail(w, http.StatusUnauthorized, "invalid token format")
				return
			}

			claims, err := tokens.ParseAccess(parts[1])
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := WithActor(r.Context(), claims.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey, a)
}

func ActorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorCtxKey).(model.Actor)
	return a, ok
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"detail":"` + detail + `"}`))
}
