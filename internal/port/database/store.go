// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/domain/tenant"
)

// Store is the port interface for tenant and principal persistence.
type Store interface {
	// Tenants
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	UpdateTenant(ctx context.Context, t *tenant.Tenant) error

	// CreateTenantWithAdmin provisions the tenant row and its bound admin
	// principal in a single transaction. If the admin cannot be created the
	// tenant row is rolled back; no orphan tenants without an admin.
	CreateTenantWithAdmin(ctx context.Context, t *tenant.Tenant, admin *principal.Principal, passwordHash string) error

	// DeleteTenant removes the tenant and cascades to all bound principals.
	DeleteTenant(ctx context.Context, id string) error

	// SetTenantStatus applies a status transition and bumps updated_at.
	SetTenantStatus(ctx context.Context, id string, status tenant.Status) error

	// AdjustUserCount applies delta to current_users as an atomic counter
	// update on the row. It never goes below zero.
	AdjustUserCount(ctx context.Context, tenantID string, delta int) error

	// SetUserCount overwrites current_users. Used only by the recount repair.
	SetUserCount(ctx context.Context, tenantID string, count int) error

	// CountActivePrincipals returns the number of active principals bound to
	// the tenant.
	CountActivePrincipals(ctx context.Context, tenantID string) (int, error)

	// Principals
	ListPrincipals(ctx context.Context, tenantID string) ([]principal.Principal, error)
	GetPrincipal(ctx context.Context, id string) (*principal.Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*principal.Principal, error)
	CreatePrincipal(ctx context.Context, p *principal.Principal, passwordHash string) error
	UpdatePrincipal(ctx context.Context, p *principal.Principal) error
}
