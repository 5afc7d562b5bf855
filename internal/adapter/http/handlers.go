package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cadencrm/cadence/internal/domain/audit"
	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/domain/tenant"
	"github.com/cadencrm/cadence/internal/middleware"
	"github.com/cadencrm/cadence/internal/service"
)

// Handlers bundles the services the HTTP surface exposes.
type Handlers struct {
	tenants    *service.TenantService
	principals *service.PrincipalService
	auditor    *service.AuditService
}

// NewHandlers creates the handler set.
func NewHandlers(tenants *service.TenantService, principals *service.PrincipalService, auditor *service.AuditService) *Handlers {
	return &Handlers{tenants: tenants, principals: principals, auditor: auditor}
}

// --- Tenants (platform surface) ---

func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	tenants, err := h.tenants.List(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err, "tenants not found")
		return
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	t, err := h.tenants.Get(r.Context(), caller, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.CreateRequest](w, r)
	if !ok {
		return
	}
	caller := middleware.PrincipalFromContext(r.Context())
	t, err := h.tenants.Create(r.Context(), caller, &req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.UpdateRequest](w, r)
	if !ok {
		return
	}
	caller := middleware.PrincipalFromContext(r.Context())
	t, err := h.tenants.Update(r.Context(), caller, urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	if err := h.tenants.Delete(r.Context(), caller, urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type suspendRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handlers) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[suspendRequest](w, r)
	if !ok {
		return
	}
	caller := middleware.PrincipalFromContext(r.Context())
	t, err := h.tenants.Suspend(r.Context(), caller, urlParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) ActivateTenant(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	t, err := h.tenants.Activate(r.Context(), caller, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) RecomputeUserCount(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	n, err := h.tenants.RecomputeUserCount(r.Context(), caller, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"current_users": n})
}

// --- Principals (tenant surface) ---

func (h *Handlers) ListPrincipals(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	principals, err := h.principals.List(r.Context(), caller, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	if principals == nil {
		principals = []principal.Principal{}
	}
	writeJSON(w, http.StatusOK, principals)
}

func (h *Handlers) CreatePrincipal(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[principal.CreateRequest](w, r)
	if !ok {
		return
	}
	req.TenantID = urlParam(r, "id")
	caller := middleware.PrincipalFromContext(r.Context())
	p, err := h.principals.Create(r.Context(), caller, &req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) GetPrincipal(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	p, err := h.principals.Get(r.Context(), caller, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "principal not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) UpdatePrincipal(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[principal.UpdateRequest](w, r)
	if !ok {
		return
	}
	caller := middleware.PrincipalFromContext(r.Context())
	p, err := h.principals.Update(r.Context(), caller, urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "principal not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeactivatePrincipal(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	p, err := h.principals.Deactivate(r.Context(), caller, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "principal not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Audit trail ---

func (h *Handlers) QueryAudit(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	filter, ok := auditFilterFromQuery(w, r)
	if !ok {
		return
	}

	events, err := h.auditor.Query(r.Context(), caller, filter)
	if err != nil {
		writeDomainError(w, err, "audit events not found")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) AuditStats(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())

	now := time.Now().UTC()
	from, ok := parseTimeParam(w, r, "from", now.AddDate(0, 0, -30))
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, r, "to", now)
	if !ok {
		return
	}

	stats, err := h.auditor.Stats(r.Context(), caller, from, to)
	if err != nil {
		writeDomainError(w, err, "audit events not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// auditFilterFromQuery builds an audit filter from query parameters.
func auditFilterFromQuery(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	q := r.URL.Query()
	filter := audit.Filter{
		PrincipalID:  q.Get("principal_id"),
		ResourceType: q.Get("resource_type"),
	}
	for _, k := range q["kind"] {
		filter.Kinds = append(filter.Kinds, audit.Kind(k))
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return filter, false
		}
		filter.Limit = n
	}
	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return filter, false
		}
		filter.From = &ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return filter, false
		}
		filter.To = &ts
	}
	return filter, true
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string, fallback time.Time) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, true
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" timestamp")
		return time.Time{}, false
	}
	return ts, true
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
