// Package ws implements the WebSocket adapter streaming audit and tenant
// events to connected operator clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/middleware"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection together with the scope of the
// principal that opened it.
type conn struct {
	ws       *websocket.Conn
	cancel   context.CancelFunc
	role     principal.Role
	tenantID string
}

// Hub manages active WebSocket connections. Master connections receive every
// broadcast; admin connections only receive messages scoped to their tenant.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket connection. Plain users have
// no event stream to watch, so only admin and master principals may connect.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil || p.Role == principal.RoleUser {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, role: p.Role, tenantID: p.TenantID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "role", p.Role)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, _, err := ws.Read(ctx)
			if err != nil {
				return
			}
		}
	}()
}

// masterOnly matches connections opened by master principals.
func masterOnly(c *conn) bool {
	return c.role == principal.RoleMaster
}

// tenantScoped matches master connections plus connections bound to tenantID.
func tenantScoped(tenantID string) func(*conn) bool {
	return func(c *conn) bool {
		return c.role == principal.RoleMaster || c.tenantID == tenantID
	}
}

// Broadcast sends a message to all master connections.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.send(ctx, msg, masterOnly)
}

// BroadcastToTenant sends a message to master connections and to admin
// connections bound to the given tenant.
func (h *Hub) BroadcastToTenant(ctx context.Context, tenantID string, msg Message) {
	h.send(ctx, msg, tenantScoped(tenantID))
}

func (h *Hub) send(ctx context.Context, msg Message, match func(*conn) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if !match(c) {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
