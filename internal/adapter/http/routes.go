package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/cadencrm/cadence/internal/adapter/ws"
	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. The caller
// is expected to have installed the Principal middleware already; the
// platform group narrows further to master principals.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Platform surface: tenant administration, master only.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(principal.RoleMaster))

			r.Get("/tenants", h.ListTenants)
			r.Post("/tenants", h.CreateTenant)
			r.Put("/tenants/{id}", h.UpdateTenant)
			r.Delete("/tenants/{id}", h.DeleteTenant)
			r.Post("/tenants/{id}/suspend", h.SuspendTenant)
			r.Post("/tenants/{id}/activate", h.ActivateTenant)
			r.Post("/tenants/{id}/recount", h.RecomputeUserCount)
		})

		// Tenant metadata read: members and master.
		r.Get("/tenants/{id}", h.GetTenant)

		// Principal accounts inside a tenant.
		r.Route("/tenants/{id}/principals", func(r chi.Router) {
			r.Use(middleware.RequireRole(principal.RoleAdmin))
			r.Get("/", h.ListPrincipals)
			r.Post("/", h.CreatePrincipal)
		})
		r.Get("/principals/{id}", h.GetPrincipal)
		r.With(middleware.RequireRole(principal.RoleAdmin)).
			Put("/principals/{id}", h.UpdatePrincipal)
		r.With(middleware.RequireRole(principal.RoleAdmin)).
			Post("/principals/{id}/deactivate", h.DeactivatePrincipal)

		// Audit trail: self-service for everyone, full breadth for master
		// enforced in the service.
		r.Get("/audit/events", h.QueryAudit)
		r.Get("/audit/stats", h.AuditStats)

		// Live event tail for admin and master operators.
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}
	})
}
