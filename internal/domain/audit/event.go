// Package audit defines the immutable audit event model.
package audit

import (
	"encoding/json"
	"time"
)

// Kind identifies what an audit event records: either a denied or violating
// authorization decision, or a tenant lifecycle state change.
type Kind string

const (
	// Authorization denials. One event per denied check.
	KindMasterTenantAccessAttempt Kind = "MASTER_TENANT_ACCESS_ATTEMPT"
	KindCrossTenantAccessAttempt  Kind = "CROSS_TENANT_ACCESS_ATTEMPT"
	KindUnauthorizedOperation     Kind = "UNAUTHORIZED_OPERATION"
	KindMasterForbiddenOperation  Kind = "MASTER_FORBIDDEN_OPERATION"
	KindUserNoTenantOperation     Kind = "USER_NO_TENANT_OPERATION"
	KindCrossTenantOperation      Kind = "CROSS_TENANT_OPERATION"
	KindAccessDenied              Kind = "ACCESS_DENIED"

	// Isolation violations: a principal's own stored state contradicts the
	// role/tenant invariants. Higher severity than a plain denial.
	KindMasterIsolationViolation Kind = "MASTER_ISOLATION_VIOLATION"

	// Tenant lifecycle state changes.
	KindCreate   Kind = "create"
	KindUpdate   Kind = "update"
	KindDelete   Kind = "delete"
	KindSuspend  Kind = "suspend"
	KindActivate Kind = "activate"
)

// ViolationKinds marks the kinds that indicate the principal's own record is
// inconsistent, as opposed to a well-formed request that was out of scope.
var ViolationKinds = map[Kind]bool{
	KindMasterIsolationViolation: true,
}

// RequestContext carries the request annotations attached to every event.
type RequestContext struct {
	IP    string `json:"ip,omitempty"`
	Agent string `json:"agent,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Event represents a single immutable audit record. PrincipalID is a weak
// reference by id only; events survive principal deletion for forensic review.
type Event struct {
	ID           string          `json:"id"`
	PrincipalID  string          `json:"principal_id,omitempty"`
	Kind         Kind            `json:"kind"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	OldData      json.RawMessage `json:"old_data,omitempty"`
	NewData      json.RawMessage `json:"new_data,omitempty"`
	Context      RequestContext  `json:"context"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Filter controls which events Query returns. Zero-value fields are ignored.
type Filter struct {
	PrincipalID  string     `json:"principal_id,omitempty"`
	Kinds        []Kind     `json:"kinds,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	Limit        int        `json:"limit,omitempty"`
}

// Stats contains aggregate counts over a time range. Daily buckets are keyed
// by the event's UTC date in "2006-01-02" form.
type Stats struct {
	TotalCount     int            `json:"total_count"`
	ByKind         map[string]int `json:"by_kind"`
	ByResourceType map[string]int `json:"by_resource_type"`
	ByPrincipal    map[string]int `json:"by_principal"`
	DailyCounts    map[string]int `json:"daily_counts"`
}
