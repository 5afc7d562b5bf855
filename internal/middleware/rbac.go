package middleware

import (
	"net/http"

	"github.com/cadencrm/cadence/internal/domain/principal"
)

// RequireRole returns middleware that restricts access to principals with
// one of the given roles. It is a coarse route guard; tenant isolation
// decisions happen in the service layer.
func RequireRole(roles ...principal.Role) func(http.Handler) http.Handler {
	allowed := make(map[principal.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			if !allowed[p.Role] {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
