package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cadencrm/cadence/internal/domain/principal"
)

func requestAs(p *principal.Principal) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants", http.NoBody)
	if p != nil {
		req = req.WithContext(context.WithValue(req.Context(), principalCtxKey{}, p))
	}
	return req
}

func TestRequireRoleAllowed(t *testing.T) {
	called := false
	handler := RequireRole(principal.RoleMaster)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(&principal.Principal{ID: "m", Role: principal.RoleMaster, Active: true}))

	if !called || rec.Code != http.StatusOK {
		t.Errorf("called = %t, status = %d; want handler to run", called, rec.Code)
	}
}

func TestRequireRoleForbidden(t *testing.T) {
	handler := RequireRole(principal.RoleMaster)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run for the wrong role")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(&principal.Principal{ID: "a", Role: principal.RoleAdmin, TenantID: "t1", Active: true}))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRequireRoleMultiple(t *testing.T) {
	handler := RequireRole(principal.RoleAdmin, principal.RoleMaster)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(&principal.Principal{ID: "a", Role: principal.RoleAdmin, TenantID: "t1", Active: true}))
	if rec.Code != http.StatusOK {
		t.Errorf("admin status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(&principal.Principal{ID: "u", Role: principal.RoleUser, TenantID: "t1", Active: true}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("user status = %d, want 403", rec.Code)
	}
}

func TestRequireRoleNoPrincipal(t *testing.T) {
	handler := RequireRole(principal.RoleMaster)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run without a principal")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
