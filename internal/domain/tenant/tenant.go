// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import (
	"errors"
	"fmt"
	"net/mail"
	"time"
)

// Status represents the lifecycle state of a tenant.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	// StatusInactive is terminal. It is defined in the data model but no
	// direct transition reaches it; only a future soft-delete path could.
	StatusInactive Status = "inactive"
)

// Plan represents the subscription plan of a tenant. The plan determines the
// user quota at creation and on plan change.
type Plan string

const (
	PlanBasic        Plan = "basic"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// ValidPlans is the set of all valid tenant plans.
var ValidPlans = map[Plan]bool{
	PlanBasic:        true,
	PlanProfessional: true,
	PlanEnterprise:   true,
}

// Quotas maps each plan to its maximum user count.
type Quotas struct {
	Basic        int `yaml:"basic" json:"basic"`
	Professional int `yaml:"professional" json:"professional"`
	Enterprise   int `yaml:"enterprise" json:"enterprise"`
}

// DefaultQuotas returns the built-in per-plan user quotas.
func DefaultQuotas() Quotas {
	return Quotas{Basic: 5, Professional: 25, Enterprise: 100}
}

// MaxUsers returns the user quota for the given plan.
func (q Quotas) MaxUsers(p Plan) int {
	switch p {
	case PlanProfessional:
		return q.Professional
	case PlanEnterprise:
		return q.Enterprise
	default:
		return q.Basic
	}
}

// Tenant represents an isolated customer organization; the unit of data
// partitioning.
type Tenant struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Domain           string            `json:"domain,omitempty"`
	Status           Status            `json:"status"`
	Plan             Plan              `json:"plan"`
	MaxUsers         int               `json:"max_users"`
	CurrentUsers     int               `json:"current_users"`
	AdminPrincipalID string            `json:"admin_principal_id,omitempty"`
	Settings         map[string]string `json:"settings,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// transitions is the closed set of permitted status changes. Suspension is
// reversible; inactive has no inbound edge.
var transitions = map[Status][]Status{
	StatusTrial:     {StatusActive},
	StatusActive:    {StatusSuspended},
	StatusSuspended: {StatusActive},
}

// CanTransition reports whether the status change from -> to is permitted.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CreateRequest holds the fields required to create a new tenant together
// with its initial admin principal. The two are provisioned atomically.
type CreateRequest struct {
	Name          string `json:"name"`
	Domain        string `json:"domain,omitempty"`
	Plan          Plan   `json:"plan"`
	AdminEmail    string `json:"admin_email"`
	AdminName     string `json:"admin_name"`
	AdminPassword string `json:"admin_password"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return errors.New("tenant name is required")
	}
	if !ValidPlans[r.Plan] {
		return fmt.Errorf("invalid plan %q: must be basic, professional, or enterprise", r.Plan)
	}
	if r.AdminEmail == "" {
		return errors.New("admin email is required")
	}
	if _, err := mail.ParseAddress(r.AdminEmail); err != nil {
		return errors.New("invalid admin email format")
	}
	if r.AdminPassword == "" {
		return errors.New("admin password is required")
	}
	if len(r.AdminPassword) < 8 {
		return errors.New("admin password must be at least 8 characters")
	}
	return nil
}

// UpdateRequest holds the fields that can be updated on a tenant. A plan
// change re-derives MaxUsers from the new plan.
type UpdateRequest struct {
	Name     string            `json:"name,omitempty"`
	Domain   string            `json:"domain,omitempty"`
	Plan     Plan              `json:"plan,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}
