package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	cadhttp "github.com/cadencrm/cadence/internal/adapter/http"
	"github.com/cadencrm/cadence/internal/domain"
	"github.com/cadencrm/cadence/internal/domain/audit"
	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/domain/tenant"
	"github.com/cadencrm/cadence/internal/middleware"
	"github.com/cadencrm/cadence/internal/service"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// mockStore implements database.Store in memory for handler tests.
type mockStore struct {
	tenants    []tenant.Tenant
	principals []principal.Principal
	nextID     int
}

func (m *mockStore) genID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	return m.tenants, nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	for i := range m.tenants {
		if m.tenants[i].ID == t.ID {
			m.tenants[i] = *t
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CreateTenantWithAdmin(_ context.Context, t *tenant.Tenant, admin *principal.Principal, _ string) error {
	t.ID = m.genID("tenant")
	admin.ID = m.genID("principal")
	admin.TenantID = t.ID
	t.AdminPrincipalID = admin.ID
	m.tenants = append(m.tenants, *t)
	m.principals = append(m.principals, *admin)
	return nil
}

func (m *mockStore) DeleteTenant(_ context.Context, id string) error {
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			m.tenants = append(m.tenants[:i], m.tenants[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) SetTenantStatus(_ context.Context, id string, status tenant.Status) error {
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			m.tenants[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) AdjustUserCount(_ context.Context, tenantID string, delta int) error {
	for i := range m.tenants {
		if m.tenants[i].ID == tenantID {
			m.tenants[i].CurrentUsers += delta
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) SetUserCount(_ context.Context, tenantID string, count int) error {
	for i := range m.tenants {
		if m.tenants[i].ID == tenantID {
			m.tenants[i].CurrentUsers = count
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CountActivePrincipals(_ context.Context, tenantID string) (int, error) {
	n := 0
	for _, p := range m.principals {
		if p.TenantID == tenantID && p.Active {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) ListPrincipals(_ context.Context, tenantID string) ([]principal.Principal, error) {
	var out []principal.Principal
	for _, p := range m.principals {
		if tenantID == "" || p.TenantID == tenantID {
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
	p.ID = m.genID("principal")
	m.principals = append(m.principals, *p)
	return nil
}

func (m *mockStore) UpdatePrincipal(_ context.Context, p *principal.Principal) error {
	for i := range m.principals {
		if m.principals[i].ID == p.ID {
			m.principals[i] = *p
			return nil
		}
	}
	return domain.ErrNotFound
}

// mockAuditStore collects audit events in memory.
type mockAuditStore struct {
	events []audit.Event
}

func (m *mockAuditStore) Append(_ context.Context, ev *audit.Event) error {
	ev.ID = fmt.Sprintf("ev-%d", len(m.events)+1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockAuditStore) Query(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	var out []audit.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if filter.PrincipalID != "" && ev.PrincipalID != filter.PrincipalID {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *mockAuditStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// testEnv is one wired stack: store, services, router.
type testEnv struct {
	store      *mockStore
	auditStore *mockAuditStore
	router     chi.Router
}

func newTestEnv() *testEnv {
	store := &mockStore{}
	auditStore := &mockAuditStore{}

	auditor := service.NewAuditService(auditStore, discardLogger())
	authz := service.NewAuthzService(auditor, nil)
	tenants := service.NewTenantService(store, authz, auditor, tenant.DefaultQuotas(), 4, discardLogger())
	principals := service.NewPrincipalService(store, authz, auditor, 4, discardLogger())

	h := cadhttp.NewHandlers(tenants, principals, auditor)

	r := chi.NewRouter()
	r.Use(middleware.AuditContext)
	r.Use(middleware.Principal(store, authz))
	cadhttp.MountRoutes(r, h, nil)

	return &testEnv{store: store, auditStore: auditStore, router: r}
}

// seed puts a master, one tenant with its admin, and one user in the store.
func (e *testEnv) seed() {
	e.store.principals = append(e.store.principals,
		principal.Principal{ID: "p-master", Email: "root@cadence.test", Role: principal.RoleMaster, Active: true},
		principal.Principal{ID: "p-admin", Email: "admin@acme.test", Role: principal.RoleAdmin, TenantID: "t1", Active: true},
		principal.Principal{ID: "p-user", Email: "user@acme.test", Role: principal.RoleUser, TenantID: "t1", Active: true},
	)
	e.store.tenants = append(e.store.tenants, tenant.Tenant{
		ID: "t1", Name: "Acme", Status: tenant.StatusActive, Plan: tenant.PlanBasic,
		MaxUsers: 5, CurrentUsers: 2, AdminPrincipalID: "p-admin",
	})
}

// do performs a request as the given principal id.
func (e *testEnv) do(t *testing.T, method, path, principalID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if principalID != "" {
		req.Header.Set("X-Principal-ID", principalID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthOpenWithoutPrincipal(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMissingPrincipalRejected(t *testing.T) {
	env := newTestEnv()
	env.seed()

	rec := env.do(t, http.MethodGet, "/api/v1/tenants", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateTenantAsMaster(t *testing.T) {
	env := newTestEnv()
	env.seed()

	rec := env.do(t, http.MethodPost, "/api/v1/tenants", "p-master", tenant.CreateRequest{
		Name:          "Globex",
		Plan:          tenant.PlanProfessional,
		AdminEmail:    "admin@globex.test",
		AdminName:     "Globex Admin",
		AdminPassword: "long-enough",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", rec.Code, rec.Body.String())
	}

	var got tenant.Tenant
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != tenant.StatusTrial || got.MaxUsers != 25 || got.CurrentUsers != 1 {
		t.Errorf("tenant = %+v, want trial/25/1", got)
	}
}

func TestPlatformRoutesForbiddenForAdmin(t *testing.T) {
	env := newTestEnv()
	env.seed()

	rec := env.do(t, http.MethodGet, "/api/v1/tenants", "p-admin", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGetTenantScoping(t *testing.T) {
	env := newTestEnv()
	env.seed()

	// Member reads own tenant.
	if rec := env.do(t, http.MethodGet, "/api/v1/tenants/t1", "p-user", nil); rec.Code != http.StatusOK {
		t.Errorf("member status = %d, want 200", rec.Code)
	}

	// Master reads the management record through the platform allow-list.
	if rec := env.do(t, http.MethodGet, "/api/v1/tenants/t1", "p-master", nil); rec.Code != http.StatusOK {
		t.Errorf("master status = %d, want 200", rec.Code)
	}
}

func TestCrossTenantPrincipalCreationDenied(t *testing.T) {
	env := newTestEnv()
	env.seed()
	env.store.tenants = append(env.store.tenants, tenant.Tenant{
		ID: "t2", Name: "Globex", Status: tenant.StatusActive, Plan: tenant.PlanBasic,
		MaxUsers: 5, CurrentUsers: 1,
	})

	rec := env.do(t, http.MethodPost, "/api/v1/tenants/t2/principals", "p-admin", principal.CreateRequest{
		Email: "x@globex.test", Name: "X", Role: principal.RoleUser, Password: "long-enough",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body: %s)", rec.Code, rec.Body.String())
	}

	// The denial left an audit event behind.
	found := false
	for _, ev := range env.auditStore.events {
		if ev.Kind == audit.KindCrossTenantOperation {
			found = true
		}
	}
	if !found {
		t.Error("expected a cross-tenant operation audit event")
	}
}

func TestQuotaExceededMapsTo422(t *testing.T) {
	env := newTestEnv()
	env.seed()
	env.store.tenants[0].CurrentUsers = 5 // at the basic plan cap

	rec := env.do(t, http.MethodPost, "/api/v1/tenants/t1/principals", "p-admin", principal.CreateRequest{
		Email: "x@acme.test", Name: "X", Role: principal.RoleUser, Password: "long-enough",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSuspendInvalidTransitionMapsTo409(t *testing.T) {
	env := newTestEnv()
	env.seed()
	env.store.tenants[0].Status = tenant.StatusTrial

	rec := env.do(t, http.MethodPost, "/api/v1/tenants/t1/suspend", "p-master", map[string]string{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestAuditQuerySelfScoped(t *testing.T) {
	env := newTestEnv()
	env.seed()
	env.auditStore.events = []audit.Event{
		{ID: "1", Kind: audit.KindCreate, PrincipalID: "p-user", ResourceType: "tenant", CreatedAt: time.Now()},
		{ID: "2", Kind: audit.KindCreate, PrincipalID: "p-admin", ResourceType: "tenant", CreatedAt: time.Now()},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/audit/events?principal_id=p-admin", "p-user", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var events []audit.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].PrincipalID != "p-user" {
		t.Errorf("events = %+v, want only the caller's own", events)
	}
}

func TestDeactivatedPrincipalRejected(t *testing.T) {
	env := newTestEnv()
	env.seed()
	env.store.principals[2].Active = false // p-user

	rec := env.do(t, http.MethodGet, "/api/v1/tenants/t1", "p-user", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestTenantBoundMasterRejected(t *testing.T) {
	env := newTestEnv()
	env.seed()
	env.store.principals[0].TenantID = "t1" // p-master, corrupted binding

	rec := env.do(t, http.MethodGet, "/api/v1/tenants", "p-master", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body: %s)", rec.Code, rec.Body.String())
	}

	var kinds []audit.Kind
	for _, ev := range env.auditStore.events {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 1 || kinds[0] != audit.KindMasterIsolationViolation {
		t.Errorf("audit kinds = %v, want one MASTER_ISOLATION_VIOLATION", kinds)
	}
}
