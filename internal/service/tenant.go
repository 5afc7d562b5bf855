package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cadencrm/cadence/internal/adapter/otel"
	"github.com/cadencrm/cadence/internal/adapter/ws"
	"github.com/cadencrm/cadence/internal/domain"
	"github.com/cadencrm/cadence/internal/domain/audit"
	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/domain/tenant"
	"github.com/cadencrm/cadence/internal/port/cache"
	"github.com/cadencrm/cadence/internal/port/database"
	"github.com/cadencrm/cadence/internal/port/messagequeue"
)

// tenantCacheTTL bounds staleness of cached tenant rows between lifecycle
// writes on other instances.
const tenantCacheTTL = 30 * time.Second

// TenantService orchestrates tenant lifecycle. Every operation passes
// through the decision engine before touching storage, and every state
// change lands in the audit trail whether it succeeded or not.
type TenantService struct {
	store      database.Store
	authz      *AuthzService
	auditor    *AuditService
	cache      cache.Cache
	queue      messagequeue.Queue
	hub        *ws.Hub
	quotas     tenant.Quotas
	bcryptCost int
	log        *slog.Logger
}

// NewTenantService creates a new TenantService. cache, queue and hub may be
// nil.
func NewTenantService(store database.Store, authz *AuthzService, auditor *AuditService, quotas tenant.Quotas, bcryptCost int, log *slog.Logger) *TenantService {
	return &TenantService{
		store:      store,
		authz:      authz,
		auditor:    auditor,
		quotas:     quotas,
		bcryptCost: bcryptCost,
		log:        log,
	}
}

// SetCache enables caching of tenant rows.
func (s *TenantService) SetCache(c cache.Cache) { s.cache = c }

// SetQueue enables tenant lifecycle notifications over NATS.
func (s *TenantService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetHub enables tenant status broadcasts to connected operators.
func (s *TenantService) SetHub(h *ws.Hub) { s.hub = h }

// List returns all tenants. Platform operation.
func (s *TenantService) List(ctx context.Context, caller *principal.Principal) ([]tenant.Tenant, error) {
	if !s.authz.EnforceIsolation(ctx, caller, OpListTenants, "") {
		return nil, domain.ErrAccessDenied
	}
	return s.store.ListTenants(ctx)
}

// Get returns one tenant. Masters see any tenant's management record; admin
// and user principals only their own tenant.
func (s *TenantService) Get(ctx context.Context, caller *principal.Principal, id string) (*tenant.Tenant, error) {
	if caller != nil && caller.Role == principal.RoleMaster {
		if !s.authz.EnforceIsolation(ctx, caller, OpListTenants, "") {
			return nil, domain.ErrAccessDenied
		}
	} else if !s.authz.CanAccessTenant(ctx, caller, id) {
		return nil, domain.ErrAccessDenied
	}
	return s.getCached(ctx, id)
}

// getCached reads the tenant through the cache when one is configured.
func (s *TenantService) getCached(ctx context.Context, id string) (*tenant.Tenant, error) {
	key := "tenant:" + id
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var t tenant.Tenant
			if err := json.Unmarshal(data, &t); err == nil {
				return &t, nil
			}
		}
	}

	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if data, err := json.Marshal(t); err == nil {
			_ = s.cache.Set(ctx, key, data, tenantCacheTTL)
		}
	}
	return t, nil
}

func (s *TenantService) invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "tenant:"+id)
	}
}

// Create provisions a tenant and its bound admin principal atomically. The
// tenant starts on trial with the plan's user quota and the admin as its
// single user.
func (s *TenantService) Create(ctx context.Context, caller *principal.Principal, req *tenant.CreateRequest) (*tenant.Tenant, error) {
	if !s.authz.EnforceIsolation(ctx, caller, OpCreateTenant, "") {
		return nil, domain.ErrAccessDenied
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	ctx, span := otel.StartTenantSpan(ctx, "create", "")
	defer span.End()

	hash, err := bcrypt.GenerateFromPassword([]byte(req.AdminPassword), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	t := &tenant.Tenant{
		Name:         req.Name,
		Domain:       req.Domain,
		Status:       tenant.StatusTrial,
		Plan:         req.Plan,
		MaxUsers:     s.quotas.MaxUsers(req.Plan),
		CurrentUsers: 1,
	}
	admin := &principal.Principal{
		Email:  req.AdminEmail,
		Name:   req.AdminName,
		Role:   principal.RoleAdmin,
		Active: true,
	}

	if err := s.store.CreateTenantWithAdmin(ctx, t, admin, string(hash)); err != nil {
		s.lifecycleEvent(ctx, caller, audit.KindCreate, "", map[string]string{
			"name": req.Name, "outcome": "failed",
		})
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	s.lifecycleEvent(ctx, caller, audit.KindCreate, t.ID, nil)
	s.notify(ctx, messagequeue.SubjectTenantCreated, t, "", caller)
	s.log.Info("tenant created", "tenant_id", t.ID, "name", t.Name, "plan", t.Plan)
	return t, nil
}

// Update applies partial updates. A plan change re-derives the user quota.
func (s *TenantService) Update(ctx context.Context, caller *principal.Principal, id string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	if !s.authz.EnforceIsolation(ctx, caller, OpUpdateTenant, "") {
		return nil, domain.ErrAccessDenied
	}

	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	old := *t

	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Domain != "" {
		t.Domain = req.Domain
	}
	if req.Plan != "" {
		if !tenant.ValidPlans[req.Plan] {
			return nil, fmt.Errorf("invalid plan %q", req.Plan)
		}
		t.Plan = req.Plan
		t.MaxUsers = s.quotas.MaxUsers(req.Plan)
	}
	if req.Settings != nil {
		t.Settings = req.Settings
	}

	if err := s.store.UpdateTenant(ctx, t); err != nil {
		s.lifecycleEvent(ctx, caller, audit.KindUpdate, id, map[string]string{"outcome": "failed"})
		return nil, fmt.Errorf("update tenant: %w", err)
	}

	s.invalidate(ctx, id)
	s.recordChange(ctx, caller, audit.KindUpdate, &old, t)
	s.notify(ctx, messagequeue.SubjectTenantUpdated, t, "", caller)
	return t, nil
}

// Delete removes the tenant; bound principals cascade with it.
func (s *TenantService) Delete(ctx context.Context, caller *principal.Principal, id string) error {
	if !s.authz.EnforceIsolation(ctx, caller, OpDeleteTenant, "") {
		return domain.ErrAccessDenied
	}

	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteTenant(ctx, id); err != nil {
		s.lifecycleEvent(ctx, caller, audit.KindDelete, id, map[string]string{"outcome": "failed"})
		return fmt.Errorf("delete tenant: %w", err)
	}

	s.invalidate(ctx, id)
	s.recordChange(ctx, caller, audit.KindDelete, t, nil)
	s.notify(ctx, messagequeue.SubjectTenantDeleted, t, "", caller)
	s.log.Info("tenant deleted", "tenant_id", id, "name", t.Name)
	return nil
}

// Suspend locks the tenant out. Logged distinctly from generic updates so
// lockouts can be audited on their own.
func (s *TenantService) Suspend(ctx context.Context, caller *principal.Principal, id, reason string) (*tenant.Tenant, error) {
	return s.transition(ctx, caller, id, tenant.StatusSuspended, audit.KindSuspend, messagequeue.SubjectTenantSuspended, reason)
}

// Activate moves a trial or suspended tenant to active.
func (s *TenantService) Activate(ctx context.Context, caller *principal.Principal, id string) (*tenant.Tenant, error) {
	return s.transition(ctx, caller, id, tenant.StatusActive, audit.KindActivate, messagequeue.SubjectTenantActivated, "")
}

func (s *TenantService) transition(ctx context.Context, caller *principal.Principal, id string, to tenant.Status, kind audit.Kind, subject, reason string) (*tenant.Tenant, error) {
	if !s.authz.EnforceIsolation(ctx, caller, OpUpdateTenant, "") {
		return nil, domain.ErrAccessDenied
	}

	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tenant.CanTransition(t.Status, to) {
		return nil, fmt.Errorf("tenant %s: %s -> %s: %w", id, t.Status, to, domain.ErrInvalidTransition)
	}
	old := *t

	if err := s.store.SetTenantStatus(ctx, id, to); err != nil {
		s.lifecycleEvent(ctx, caller, kind, id, map[string]string{"outcome": "failed"})
		return nil, fmt.Errorf("set tenant status: %w", err)
	}
	t.Status = to

	s.invalidate(ctx, id)
	details := map[string]string{"from": string(old.Status), "to": string(to)}
	if reason != "" {
		details["reason"] = reason
	}
	s.lifecycleEvent(ctx, caller, kind, id, details)
	s.notify(ctx, subject, t, reason, caller)

	if s.hub != nil {
		s.hub.BroadcastEventToTenant(ctx, t.ID, ws.EventTenantStatus, ws.TenantStatusEvent{
			TenantID: t.ID, Name: t.Name, Status: string(t.Status),
		})
	}
	s.log.Info("tenant status changed", "tenant_id", id, "from", old.Status, "to", to, "reason", reason)
	return t, nil
}

// RecomputeUserCount recounts active principals and repairs the stored
// counter. Idempotent; safe to run redundantly.
func (s *TenantService) RecomputeUserCount(ctx context.Context, caller *principal.Principal, id string) (int, error) {
	if !s.authz.EnforceIsolation(ctx, caller, OpUpdateTenant, "") {
		return 0, domain.ErrAccessDenied
	}

	n, err := s.store.CountActivePrincipals(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("recompute user count: %w", err)
	}
	if err := s.store.SetUserCount(ctx, id, n); err != nil {
		return 0, fmt.Errorf("recompute user count: %w", err)
	}
	s.invalidate(ctx, id)
	return n, nil
}

// lifecycleEvent records a tenant state change in the audit trail.
func (s *TenantService) lifecycleEvent(ctx context.Context, caller *principal.Principal, kind audit.Kind, tenantID string, details map[string]string) {
	ev := &audit.Event{
		Kind:         kind,
		ResourceType: "tenant",
		ResourceID:   tenantID,
	}
	if caller != nil {
		ev.PrincipalID = caller.ID
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			ev.NewData = data
		}
	}
	s.auditor.Record(ctx, ev)
}

// recordChange records a state change with before/after snapshots.
func (s *TenantService) recordChange(ctx context.Context, caller *principal.Principal, kind audit.Kind, before, after *tenant.Tenant) {
	ev := &audit.Event{
		Kind:         kind,
		ResourceType: "tenant",
	}
	if caller != nil {
		ev.PrincipalID = caller.ID
	}
	if before != nil {
		ev.ResourceID = before.ID
		if data, err := json.Marshal(before); err == nil {
			ev.OldData = data
		}
	}
	if after != nil {
		ev.ResourceID = after.ID
		if data, err := json.Marshal(after); err == nil {
			ev.NewData = data
		}
	}
	s.auditor.Record(ctx, ev)
}

// notify publishes a tenant lifecycle message. Best-effort; a queue outage
// never fails the operation.
func (s *TenantService) notify(ctx context.Context, subject string, t *tenant.Tenant, reason string, caller *principal.Principal) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.TenantLifecyclePayload{
		TenantID: t.ID,
		Name:     t.Name,
		Status:   string(t.Status),
		Plan:     string(t.Plan),
		Reason:   reason,
	}
	if caller != nil {
		payload.ActorID = caller.ID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		s.log.Warn("tenant notify failed", "subject", subject, "tenant_id", t.ID, "error", err)
	}
}
