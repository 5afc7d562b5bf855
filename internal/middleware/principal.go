package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cadencrm/cadence/internal/domain/audit"
	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/port/database"
)

type principalCtxKey struct{}

// headerPrincipalID is set by the upstream session gateway after credential
// verification. This service never sees credentials; it only loads the
// already-authenticated principal's profile.
const headerPrincipalID = "X-Principal-ID"

// publicPaths are exempt from principal loading.
var publicPaths = map[string]bool{
	"/health": true,
}

// IsolationValidator vets a loaded principal's stored state before it is
// trusted for the rest of the request.
type IsolationValidator interface {
	ValidateTenantIsolation(ctx context.Context, p *principal.Principal) bool
}

// Principal returns middleware that loads the authenticated principal named
// by the session gateway header and stores it in the request context.
// Requests without the header, or naming an unknown or deactivated principal,
// are rejected. A principal whose stored record fails the isolation check,
// such as a master account bound to a tenant, is rejected outright; no
// request may proceed on a corrupted identity. Authorization proper happens
// later in the decision engine.
func Principal(store database.Store, validator IsolationValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			id := r.Header.Get(headerPrincipalID)
			if id == "" {
				http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
				return
			}

			p, err := store.GetPrincipal(r.Context(), id)
			if err != nil {
				http.Error(w, `{"error":"unknown principal"}`, http.StatusUnauthorized)
				return
			}
			if !p.Active {
				http.Error(w, `{"error":"account is deactivated"}`, http.StatusForbidden)
				return
			}
			if validator != nil && !validator.ValidateTenantIsolation(r.Context(), p) {
				http.Error(w, `{"error":"access denied"}`, http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), principalCtxKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the authenticated principal from the request
// context, or nil when none was loaded.
func PrincipalFromContext(ctx context.Context) *principal.Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*principal.Principal)
	return p
}

// AuditContext is middleware that captures the request annotations (client
// IP, user agent, URL) every audit event records.
func AuditContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestContext(r.Context(), audit.RequestContext{
			IP:    clientIP(r),
			Agent: r.UserAgent(),
			URL:   r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the X-Forwarded-For chain head set by the edge proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		head, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(head)
	}
	return r.RemoteAddr
}
