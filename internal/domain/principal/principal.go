// Package principal defines the authenticated actor model for authorization.
package principal

import (
	"errors"
	"net/mail"
	"time"
)

// Role represents the privilege tier of a principal.
type Role string

const (
	// RoleUser operates within a single tenant.
	RoleUser Role = "user"
	// RoleAdmin manages a single tenant.
	RoleAdmin Role = "admin"
	// RoleMaster manages tenants globally but never their business data.
	RoleMaster Role = "master"
)

// ValidRoles is the set of all valid principal roles.
var ValidRoles = map[Role]bool{
	RoleUser:   true,
	RoleAdmin:  true,
	RoleMaster: true,
}

// Principal represents an authenticated actor with a role and an optional
// tenant binding. It is always passed explicitly into authorization checks,
// never read from ambient global state.
type Principal struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsMasterValid reports whether p is a well-formed master principal: role
// master and no tenant binding. A master that carries a tenant ID is evidence
// of tampering or a provisioning bug; callers must treat false as deny-and-log,
// never as "ignore the tenant ID".
func (p *Principal) IsMasterValid() bool {
	return p.Role == RoleMaster && p.TenantID == ""
}

// IsolationConsistent reports whether p's own record satisfies the role/tenant
// binding invariants. The second result is true when the record is consistent
// only under the provisioning grace period (admin/user with no tenant yet);
// such principals must never be trusted for cross-tenant decisions.
func (p *Principal) IsolationConsistent() (ok, grace bool) {
	switch p.Role {
	case RoleMaster:
		return p.TenantID == "", false
	case RoleAdmin, RoleUser:
		if p.TenantID == "" {
			return true, true
		}
		return true, false
	default:
		return false, false
	}
}

// CreateRequest is the input for provisioning a new principal.
type CreateRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	TenantID string `json:"tenant_id"`
	Password string `json:"password"`
}

// Validate checks that the CreateRequest has all required fields and that the
// role/tenant combination satisfies the isolation invariants up front.
func (r *CreateRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.New("invalid email format")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if !ValidRoles[r.Role] {
		return errors.New("invalid role: must be user, admin, or master")
	}
	if r.Role == RoleMaster && r.TenantID != "" {
		return errors.New("master principals must not be bound to a tenant")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// UpdateRequest is the input for mutating an existing principal. Role and
// tenant binding changes are privileged operations.
type UpdateRequest struct {
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role,omitempty"`
	Active *bool  `json:"active,omitempty"`
}
