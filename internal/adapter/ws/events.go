package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventAuditRecorded = "audit.recorded"
	EventTenantStatus  = "tenant.status"
)

// TenantStatusEvent is broadcast when a tenant changes lifecycle state.
type TenantStatusEvent struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

// BroadcastEvent marshals a typed event and broadcasts it to master
// connections.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// BroadcastEventToTenant marshals a typed event and delivers it to master
// connections plus admin connections bound to tenantID. Tenant lifecycle
// changes go through here so the affected tenant's admins see them too.
func (h *Hub) BroadcastEventToTenant(ctx context.Context, tenantID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToTenant(ctx, tenantID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
