// Package service implements business logic on top of ports.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cadencrm/cadence/internal/adapter/otel"
	"github.com/cadencrm/cadence/internal/domain/audit"
	"github.com/cadencrm/cadence/internal/domain/principal"
)

// Operation names an action a principal can attempt. Platform operations are
// the only ones a master principal may perform; everything else is
// tenant-scoped.
type Operation string

const (
	// Platform operations (master allow-list).
	OpListTenants          Operation = "list_tenants"
	OpCreateTenant         Operation = "create_tenant"
	OpUpdateTenant         Operation = "update_tenant"
	OpDeleteTenant         Operation = "delete_tenant"
	OpManageGlobalSettings Operation = "manage_global_settings"

	// Tenant-scoped operations.
	OpManageUsers    Operation = "manage_users"
	OpViewAuditTrail Operation = "view_audit_trail"
	OpManageRecords  Operation = "manage_records"
	OpViewReports    Operation = "view_reports"
)

// masterOperations is the closed set of operations a master principal may
// perform. Anything outside this set is denied regardless of target.
var masterOperations = map[Operation]bool{
	OpListTenants:          true,
	OpCreateTenant:         true,
	OpUpdateTenant:         true,
	OpDeleteTenant:         true,
	OpManageGlobalSettings: true,
}

// Recorder accepts audit events for denied and violating decisions. It never
// returns an error; recording failures must not change the decision outcome.
type Recorder interface {
	Record(ctx context.Context, ev *audit.Event)
}

// AuthzService is the stateless tenant isolation decision engine. Every deny
// is a boolean outcome plus exactly one audit event, never a Go error.
type AuthzService struct {
	recorder Recorder
	metrics  *otel.Metrics
}

// NewAuthzService creates a new AuthzService. metrics may be nil.
func NewAuthzService(recorder Recorder, metrics *otel.Metrics) *AuthzService {
	return &AuthzService{recorder: recorder, metrics: metrics}
}

// CanAccessTenant reports whether p may touch data belonging to
// targetTenantID. Master principals are structurally barred from tenant
// business data, whatever their intent.
func (s *AuthzService) CanAccessTenant(ctx context.Context, p *principal.Principal, targetTenantID string) bool {
	if p == nil {
		s.deny(ctx, nil, audit.KindUnauthorizedOperation, "tenant", targetTenantID, nil)
		return false
	}

	switch p.Role {
	case principal.RoleMaster:
		s.deny(ctx, p, audit.KindMasterTenantAccessAttempt, "tenant", targetTenantID, map[string]string{
			"attempted_tenant": targetTenantID,
		})
		return false
	case principal.RoleAdmin, principal.RoleUser:
		if p.TenantID == targetTenantID && targetTenantID != "" {
			s.permit()
			return true
		}
		s.deny(ctx, p, audit.KindCrossTenantAccessAttempt, "tenant", targetTenantID, map[string]string{
			"user_tenant":      p.TenantID,
			"attempted_tenant": targetTenantID,
		})
		return false
	default:
		s.deny(ctx, p, audit.KindAccessDenied, "tenant", targetTenantID, map[string]string{
			"role": string(p.Role),
		})
		return false
	}
}

// EnforceIsolation reports whether p may perform op, optionally against
// targetTenantID. An empty target means the operation is not aimed at a
// specific tenant's data.
func (s *AuthzService) EnforceIsolation(ctx context.Context, p *principal.Principal, op Operation, targetTenantID string) bool {
	if p == nil {
		s.deny(ctx, nil, audit.KindUnauthorizedOperation, "operation", string(op), nil)
		return false
	}

	ctx, span := otel.StartDecisionSpan(ctx, p.ID, string(op), targetTenantID)
	defer span.End()

	switch p.Role {
	case principal.RoleMaster:
		if !masterOperations[op] {
			s.deny(ctx, p, audit.KindMasterForbiddenOperation, "operation", string(op), map[string]string{
				"operation": string(op),
			})
			return false
		}
		s.permit()
		return true
	case principal.RoleAdmin, principal.RoleUser:
		if p.TenantID == "" {
			s.deny(ctx, p, audit.KindUserNoTenantOperation, "operation", string(op), map[string]string{
				"operation": string(op),
			})
			return false
		}
		if targetTenantID != "" && targetTenantID != p.TenantID {
			s.deny(ctx, p, audit.KindCrossTenantOperation, "operation", string(op), map[string]string{
				"operation":        string(op),
				"user_tenant":      p.TenantID,
				"attempted_tenant": targetTenantID,
			})
			return false
		}
		s.permit()
		return true
	default:
		s.deny(ctx, p, audit.KindAccessDenied, "operation", string(op), map[string]string{
			"role": string(p.Role),
		})
		return false
	}
}

// ValidateTenantIsolation checks that p's own stored state respects the
// role/tenant invariants. A master bound to a tenant is a security event; an
// admin or user without a tenant is tolerated as a provisioning grace state
// and only warned about.
func (s *AuthzService) ValidateTenantIsolation(ctx context.Context, p *principal.Principal) bool {
	if p == nil {
		return false
	}

	if p.Role == principal.RoleMaster && !p.IsMasterValid() {
		if s.metrics != nil {
			s.metrics.ViolationsDetected.Add(ctx, 1)
		}
		s.record(ctx, p, audit.KindMasterIsolationViolation, "principal", p.ID, map[string]string{
			"tenant_id": p.TenantID,
		})
		return false
	}

	if _, grace := p.IsolationConsistent(); grace {
		slog.Warn("principal has no tenant binding", "principal_id", p.ID, "role", p.Role)
	}
	return true
}

func (s *AuthzService) permit() {
	if s.metrics != nil {
		s.metrics.DecisionsPermitted.Add(context.Background(), 1)
	}
}

func (s *AuthzService) deny(ctx context.Context, p *principal.Principal, kind audit.Kind, resourceType, resourceID string, details map[string]string) {
	if s.metrics != nil {
		s.metrics.DecisionsDenied.Add(ctx, 1)
	}
	s.record(ctx, p, kind, resourceType, resourceID, details)
}

func (s *AuthzService) record(ctx context.Context, p *principal.Principal, kind audit.Kind, resourceType, resourceID string, details map[string]string) {
	ev := &audit.Event{
		Kind:         kind,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Context:      audit.RequestContextFrom(ctx),
	}
	if p != nil {
		ev.PrincipalID = p.ID
	}
	if details != nil {
		data, err := json.Marshal(details)
		if err == nil {
			ev.NewData = data
		}
	}
	s.recorder.Record(ctx, ev)
}
