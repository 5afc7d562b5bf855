package postgres

import (
	"context"
	"fmt"

	"github.com/cadencrm/cadence/internal/domain/principal"
)

const principalColumns = `id, email, name, role, COALESCE(tenant_id::text, ''), active, created_at, updated_at`

func scanPrincipal(row scannable) (principal.Principal, error) {
	var p principal.Principal
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Role, &p.TenantID, &p.Active,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListPrincipals(ctx context.Context, tenantID string) ([]principal.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE tenant_id = $1 ORDER BY created_at ASC`, principalColumns)
	args := []any{tenantID}
	if tenantID == "" {
		query = fmt.Sprintf(`SELECT %s FROM principals ORDER BY created_at ASC`, principalColumns)
		args = nil
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var principals []principal.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

func (s *Store) GetPrincipal(ctx context.Context, id string) (*principal.Principal, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM principals WHERE id = $1`, principalColumns), id)

	p, err := scanPrincipal(row)
	if err != nil {
		return nil, notFoundWrap(err, "get principal %s", id)
	}
	return &p, nil
}

func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (*principal.Principal, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM principals WHERE email = $1`, principalColumns), email)

	p, err := scanPrincipal(row)
	if err != nil {
		return nil, notFoundWrap(err, "get principal by email %s", email)
	}
	return &p, nil
}

func (s *Store) CreatePrincipal(ctx context.Context, p *principal.Principal, passwordHash string) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO principals (email, name, password_hash, role, tenant_id, active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		p.Email, p.Name, passwordHash, p.Role, nullIfEmpty(p.TenantID), p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create principal %s: %w", p.Email, err)
	}
	return nil
}

func (s *Store) UpdatePrincipal(ctx context.Context, p *principal.Principal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE principals SET name = $2, role = $3, active = $4, updated_at = now()
		 WHERE id = $1`,
		p.ID, p.Name, p.Role, p.Active)
	return execExpectOne(tag, err, "update principal %s", p.ID)
}
