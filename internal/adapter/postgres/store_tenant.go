package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/domain/tenant"
)

const tenantColumns = `id, name, COALESCE(domain, ''), status, plan, max_users, current_users,
	 COALESCE(admin_principal_id::text, ''), settings, created_at, updated_at`

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	var settingsJSON []byte
	err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.Status, &t.Plan, &t.MaxUsers,
		&t.CurrentUsers, &t.AdminPrincipalID, &settingsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if settingsJSON != nil {
		_ = json.Unmarshal(settingsJSON, &t.Settings)
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM tenants ORDER BY created_at ASC`, tenantColumns))
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM tenants WHERE id = $1`, tenantColumns), id)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return &t, nil
}

// CreateTenantWithAdmin inserts the tenant row and its bound admin principal
// in one transaction, then records the admin binding on the tenant. A failure
// at any step rolls the whole provisioning back.
func (s *Store) CreateTenantWithAdmin(ctx context.Context, t *tenant.Tenant, admin *principal.Principal, passwordHash string) error {
	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO tenants (name, domain, status, plan, max_users, current_users, settings)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		t.Name, nullIfEmpty(t.Domain), t.Status, t.Plan, t.MaxUsers, t.CurrentUsers, settingsJSON,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}

	admin.TenantID = t.ID
	err = tx.QueryRow(ctx,
		`INSERT INTO principals (email, name, password_hash, role, tenant_id, active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		admin.Email, admin.Name, passwordHash, admin.Role, admin.TenantID, admin.Active,
	).Scan(&admin.ID, &admin.CreatedAt, &admin.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tenant admin: %w", err)
	}

	t.AdminPrincipalID = admin.ID
	if _, err := tx.Exec(ctx,
		`UPDATE tenants SET admin_principal_id = $2 WHERE id = $1`, t.ID, admin.ID); err != nil {
		return fmt.Errorf("bind tenant admin: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tenant create: %w", err)
	}
	return nil
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET name = $2, domain = $3, plan = $4, max_users = $5, settings = $6, updated_at = now()
		 WHERE id = $1`,
		t.ID, t.Name, nullIfEmpty(t.Domain), t.Plan, t.MaxUsers, settingsJSON)
	return execExpectOne(tag, err, "update tenant %s", t.ID)
}

// DeleteTenant removes the tenant row; bound principals go with it via the
// foreign key cascade.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete tenant %s", id)
}

func (s *Store) SetTenantStatus(ctx context.Context, id string, status tenant.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return execExpectOne(tag, err, "set tenant %s status", id)
}

// AdjustUserCount applies delta as an atomic counter update on the row, so
// racing provisioning operations never lose updates. GREATEST keeps the
// counter from going negative on redundant decrements.
func (s *Store) AdjustUserCount(ctx context.Context, tenantID string, delta int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET current_users = GREATEST(current_users + $2, 0), updated_at = now()
		 WHERE id = $1`, tenantID, delta)
	return execExpectOne(tag, err, "adjust user count for tenant %s", tenantID)
}

func (s *Store) SetUserCount(ctx context.Context, tenantID string, count int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET current_users = $2, updated_at = now() WHERE id = $1`, tenantID, count)
	return execExpectOne(tag, err, "set user count for tenant %s", tenantID)
}

func (s *Store) CountActivePrincipals(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM principals WHERE tenant_id = $1 AND active`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count principals for tenant %s: %w", tenantID, err)
	}
	return n, nil
}
