package mw

import (
	"net/http"

	"itflow/internal/model"
)

// RequireRole lets the request through only for the listed roles.
// AuthMiddleware must run first.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided")
				return
			}
			if !allowed[actor.Role] {
				writeDetail(w, http.StatusForbidden, "you do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
