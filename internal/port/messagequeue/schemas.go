package messagequeue

import "encoding/json"

// AuditRecordedPayload is the schema for audit.recorded messages.
type AuditRecordedPayload struct {
	EventID      string          `json:"event_id"`
	PrincipalID  string          `json:"principal_id,omitempty"`
	Kind         string          `json:"kind"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Context      json.RawMessage `json:"context,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

// TenantLifecyclePayload is the schema for tenants.* messages.
type TenantLifecyclePayload struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Plan     string `json:"plan"`
	Reason   string `json:"reason,omitempty"`
	ActorID  string `json:"actor_id,omitempty"`
}
