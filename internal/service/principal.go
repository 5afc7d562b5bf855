package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/cadencrm/cadence/internal/domain"
	"github.com/cadencrm/cadence/internal/domain/audit"
	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/port/database"
)

// PrincipalService manages operator accounts inside a tenant. Creation and
// deactivation keep the tenant's user counter in step via atomic storage
// updates; the counter is best-effort and RecomputeUserCount repairs drift.
type PrincipalService struct {
	store      database.Store
	authz      *AuthzService
	auditor    *AuditService
	bcryptCost int
	log        *slog.Logger
}

// NewPrincipalService creates a new PrincipalService.
func NewPrincipalService(store database.Store, authz *AuthzService, auditor *AuditService, bcryptCost int, log *slog.Logger) *PrincipalService {
	return &PrincipalService{
		store:      store,
		authz:      authz,
		auditor:    auditor,
		bcryptCost: bcryptCost,
		log:        log,
	}
}

// List returns the principals bound to one tenant. An empty tenant id is not
// a wildcard here; cross-tenant listing is an operator CLI concern.
func (s *PrincipalService) List(ctx context.Context, caller *principal.Principal, tenantID string) ([]principal.Principal, error) {
	if tenantID == "" {
		_ = s.authz.CanAccessTenant(ctx, caller, tenantID)
		return nil, domain.ErrAccessDenied
	}
	if !s.authz.EnforceIsolation(ctx, caller, OpManageUsers, tenantID) {
		return nil, domain.ErrAccessDenied
	}
	return s.store.ListPrincipals(ctx, tenantID)
}

// Get returns one principal. Callers may always read their own record;
// anything else goes through the tenant access check.
func (s *PrincipalService) Get(ctx context.Context, caller *principal.Principal, id string) (*principal.Principal, error) {
	if caller != nil && caller.ID == id {
		return s.store.GetPrincipal(ctx, id)
	}

	p, err := s.store.GetPrincipal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanAccessTenant(ctx, caller, p.TenantID) {
		return nil, domain.ErrAccessDenied
	}
	return p, nil
}

// Create provisions a new account inside a tenant. The plan quota is guarded
// before the insert; exceeding it is a recoverable caller error, not a
// security event, so it is not audited as a denial.
func (s *PrincipalService) Create(ctx context.Context, caller *principal.Principal, req *principal.CreateRequest) (*principal.Principal, error) {
	if !s.authz.EnforceIsolation(ctx, caller, OpManageUsers, req.TenantID) {
		return nil, domain.ErrAccessDenied
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if req.Role == principal.RoleMaster {
		return nil, fmt.Errorf("validate: master accounts are provisioned out of band")
	}

	t, err := s.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if t.CurrentUsers >= t.MaxUsers {
		return nil, fmt.Errorf("tenant %s at %d/%d users: %w",
			t.ID, t.CurrentUsers, t.MaxUsers, domain.ErrQuotaExceeded)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p := &principal.Principal{
		Email:    req.Email,
		Name:     req.Name,
		Role:     req.Role,
		TenantID: req.TenantID,
		Active:   true,
	}
	if err := s.store.CreatePrincipal(ctx, p, string(hash)); err != nil {
		return nil, fmt.Errorf("create principal: %w", err)
	}

	if err := s.store.AdjustUserCount(ctx, req.TenantID, 1); err != nil {
		s.log.Error("user count increment failed", "tenant_id", req.TenantID, "error", err)
	}

	s.accountEvent(ctx, caller, audit.KindCreate, p)
	s.log.Info("principal created", "principal_id", p.ID, "tenant_id", p.TenantID, "role", p.Role)
	return p, nil
}

// Update applies name, role or active changes. Deactivation releases the
// account's quota slot; reactivation claims one back.
func (s *PrincipalService) Update(ctx context.Context, caller *principal.Principal, id string, req principal.UpdateRequest) (*principal.Principal, error) {
	p, err := s.store.GetPrincipal(ctx, id)
	if err != nil {
		return nil, err
	}
	// The master account, and any record without a tenant binding, is managed
	// out of band. Run the access check anyway so the attempt is audited.
	if p.Role == principal.RoleMaster || p.TenantID == "" {
		_ = s.authz.CanAccessTenant(ctx, caller, p.TenantID)
		return nil, domain.ErrAccessDenied
	}
	if !s.authz.EnforceIsolation(ctx, caller, OpManageUsers, p.TenantID) {
		return nil, domain.ErrAccessDenied
	}

	wasActive := p.Active
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Role != "" {
		if req.Role == principal.RoleMaster {
			return nil, fmt.Errorf("validate: cannot promote to master")
		}
		if !principal.ValidRoles[req.Role] {
			return nil, fmt.Errorf("validate: invalid role %q", req.Role)
		}
		p.Role = req.Role
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	if err := s.store.UpdatePrincipal(ctx, p); err != nil {
		return nil, fmt.Errorf("update principal: %w", err)
	}

	if wasActive != p.Active && p.TenantID != "" {
		delta := -1
		if p.Active {
			delta = 1
		}
		if err := s.store.AdjustUserCount(ctx, p.TenantID, delta); err != nil {
			s.log.Error("user count adjust failed", "tenant_id", p.TenantID, "delta", delta, "error", err)
		}
	}

	s.accountEvent(ctx, caller, audit.KindUpdate, p)
	return p, nil
}

// Deactivate disables the account and releases its quota slot. Principals
// are never hard-deleted; the audit trail keeps referencing them by id.
func (s *PrincipalService) Deactivate(ctx context.Context, caller *principal.Principal, id string) (*principal.Principal, error) {
	inactive := false
	return s.Update(ctx, caller, id, principal.UpdateRequest{Active: &inactive})
}

func (s *PrincipalService) accountEvent(ctx context.Context, caller *principal.Principal, kind audit.Kind, p *principal.Principal) {
	ev := &audit.Event{
		Kind:         kind,
		ResourceType: "principal",
		ResourceID:   p.ID,
	}
	if caller != nil {
		ev.PrincipalID = caller.ID
	}
	if data, err := json.Marshal(p); err == nil {
		ev.NewData = data
	}
	s.auditor.Record(ctx, ev)
}
