package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadencrm/cadence/internal/domain"
	"github.com/cadencrm/cadence/internal/domain/audit"
	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/domain/tenant"
	"github.com/cadencrm/cadence/internal/port/auditstore"
	"github.com/cadencrm/cadence/internal/port/database"
)

// errBoom is the storage failure injected through the mock error hooks.
var errBoom = errors.New("storage failure")

// Ensure the mocks implement their ports at compile time.
var (
	_ database.Store   = (*mockStore)(nil)
	_ auditstore.Store = (*mockAuditStore)(nil)
)

// mockStore is a minimal in-memory implementation of database.Store.
type mockStore struct {
	tenants    []tenant.Tenant
	principals []principal.Principal
	nextID     int

	// Error hooks. Set these to inject failures.
	getTenantErr    error
	updateTenantErr error
	createWithErr   error
	deleteTenantErr error
	setStatusErr    error
	adjustCountErr  error
	setCountErr     error
	countErr        error
	createPrincErr  error
	updatePrincErr  error
}

func (m *mockStore) genID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	return m.tenants, nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	if m.getTenantErr != nil {
		return nil, m.getTenantErr
	}
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	if m.updateTenantErr != nil {
		return m.updateTenantErr
	}
	for i := range m.tenants {
		if m.tenants[i].ID == t.ID {
			m.tenants[i] = *t
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CreateTenantWithAdmin(_ context.Context, t *tenant.Tenant, admin *principal.Principal, _ string) error {
	if m.createWithErr != nil {
		return m.createWithErr
	}
	t.ID = m.genID("tenant")
	t.CreatedAt = time.Now()
	admin.ID = m.genID("principal")
	admin.TenantID = t.ID
	t.AdminPrincipalID = admin.ID
	m.tenants = append(m.tenants, *t)
	m.principals = append(m.principals, *admin)
	return nil
}

func (m *mockStore) DeleteTenant(_ context.Context, id string) error {
	if m.deleteTenantErr != nil {
		return m.deleteTenantErr
	}
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			m.tenants = append(m.tenants[:i], m.tenants[i+1:]...)
			kept := m.principals[:0]
			for _, p := range m.principals {
				if p.TenantID != id {
					kept = append(kept, p)
				}
			}
			m.principals = kept
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) SetTenantStatus(_ context.Context, id string, status tenant.Status) error {
	if m.setStatusErr != nil {
		return m.setStatusErr
	}
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			m.tenants[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) AdjustUserCount(_ context.Context, tenantID string, delta int) error {
	if m.adjustCountErr != nil {
		return m.adjustCountErr
	}
	for i := range m.tenants {
		if m.tenants[i].ID == tenantID {
			m.tenants[i].CurrentUsers += delta
			if m.tenants[i].CurrentUsers < 0 {
				m.tenants[i].CurrentUsers = 0
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) SetUserCount(_ context.Context, tenantID string, count int) error {
	if m.setCountErr != nil {
		return m.setCountErr
	}
	for i := range m.tenants {
		if m.tenants[i].ID == tenantID {
			m.tenants[i].CurrentUsers = count
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CountActivePrincipals(_ context.Context, tenantID string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, p := range m.principals {
		if p.TenantID == tenantID && p.Active {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) ListPrincipals(_ context.Context, tenantID string) ([]principal.Principal, error) {
	if tenantID == "" {
		return m.principals, nil
	}
	var out []principal.Principal
	for _, p := range m.principals {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) GetPrincipal(_ context.Context, id string) (*principal.Principal, error) {
	for i := range m.principals {
		if m.principals[i].ID == id {
			p := m.principals[i]
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetPrincipalByEmail(_ context.Context, email string) (*principal.Principal, error) {
	for i := range m.principals {
		if m.principals[i].Email == email {
			p := m.principals[i]
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreatePrincipal(_ context.Context, p *principal.Principal, _ string) error {
	if m.createPrincErr != nil {
		return m.createPrincErr
	}
	p.ID = m.genID("principal")
	p.CreatedAt = time.Now()
	m.principals = append(m.principals, *p)
	return nil
}

func (m *mockStore) UpdatePrincipal(_ context.Context, p *principal.Principal) error {
	if m.updatePrincErr != nil {
		return m.updatePrincErr
	}
	for i := range m.principals {
		if m.principals[i].ID == p.ID {
			m.principals[i] = *p
			return nil
		}
	}
	return domain.ErrNotFound
}

// mockAuditStore collects appended events in memory.
type mockAuditStore struct {
	events []audit.Event

	appendErr error
	queryErr  error
	pruneErr  error
	pruned    int64
}

func (m *mockAuditStore) Append(_ context.Context, ev *audit.Event) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	ev.ID = fmt.Sprintf("ev-%d", len(m.events)+1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockAuditStore) Query(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []audit.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if filter.PrincipalID != "" && ev.PrincipalID != filter.PrincipalID {
			continue
		}
		if filter.ResourceType != "" && ev.ResourceType != filter.ResourceType {
			continue
		}
		if len(filter.Kinds) > 0 {
			match := false
			for _, k := range filter.Kinds {
				if ev.Kind == k {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if filter.From != nil && ev.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && ev.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockAuditStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	if m.pruneErr != nil {
		return 0, m.pruneErr
	}
	kept := m.events[:0]
	var n int64
	for _, ev := range m.events {
		if ev.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	m.pruned = n
	return n, nil
}

// kinds extracts the event kinds in append order, for assertions.
func (m *mockAuditStore) kinds() []audit.Kind {
	out := make([]audit.Kind, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Kind
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestAudit builds an AuditService over a fresh mock store with a
// discarded logger.
func newTestAudit() (*AuditService, *mockAuditStore) {
	store := &mockAuditStore{}
	return NewAuditService(store, discardLogger()), store
}
