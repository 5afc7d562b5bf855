package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadencrm/cadence/internal/adapter/otel"
	"github.com/cadencrm/cadence/internal/adapter/ws"
	"github.com/cadencrm/cadence/internal/domain/audit"
	"github.com/cadencrm/cadence/internal/domain/principal"
	"github.com/cadencrm/cadence/internal/port/auditstore"
	"github.com/cadencrm/cadence/internal/port/messagequeue"
)

// AuditService owns the append-only audit trail. Recording is decoupled from
// the operations being audited: a failed append falls back to the structured
// log and never surfaces to the caller.
type AuditService struct {
	store   auditstore.Store
	queue   messagequeue.Queue
	hub     *ws.Hub
	metrics *otel.Metrics
	log     *slog.Logger
}

// NewAuditService creates a new AuditService. queue, hub and metrics may be
// nil; the store and logger are required.
func NewAuditService(store auditstore.Store, log *slog.Logger) *AuditService {
	return &AuditService{store: store, log: log}
}

// SetQueue enables NATS fan-out of recorded events.
func (s *AuditService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetHub enables WebSocket fan-out of recorded events.
func (s *AuditService) SetHub(h *ws.Hub) { s.hub = h }

// SetMetrics enables audit metric instruments.
func (s *AuditService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// Record persists the event. It never fails the calling operation: a storage
// failure diverts the event to the log sink, and downstream fan-out is
// fire-and-forget.
func (s *AuditService) Record(ctx context.Context, ev *audit.Event) {
	if ev.Context == (audit.RequestContext{}) {
		ev.Context = audit.RequestContextFrom(ctx)
	}

	if err := s.store.Append(ctx, ev); err != nil {
		if s.metrics != nil {
			s.metrics.AuditFallbacks.Add(ctx, 1)
		}
		s.log.Error("audit append failed, falling back to log sink",
			"error", err,
			"kind", ev.Kind,
			"principal_id", ev.PrincipalID,
			"resource_type", ev.ResourceType,
			"resource_id", ev.ResourceID,
			"ip", ev.Context.IP,
			"url", ev.Context.URL)
		return
	}

	if s.metrics != nil {
		s.metrics.AuditRecorded.Add(ctx, 1)
	}
	s.fanOut(ctx, ev)
}

// fanOut pushes the persisted event to NATS and the WebSocket hub. Failures
// are logged and dropped; delivery is best-effort by design of the trail.
func (s *AuditService) fanOut(ctx context.Context, ev *audit.Event) {
	if s.queue != nil {
		rc, _ := json.Marshal(ev.Context)
		payload, err := json.Marshal(messagequeue.AuditRecordedPayload{
			EventID:      ev.ID,
			PrincipalID:  ev.PrincipalID,
			Kind:         string(ev.Kind),
			ResourceType: ev.ResourceType,
			ResourceID:   ev.ResourceID,
			Context:      rc,
			CreatedAt:    ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			if err := s.queue.Publish(ctx, messagequeue.SubjectAuditRecorded, payload); err != nil {
				s.log.Warn("audit fan-out publish failed", "error", err, "event_id", ev.ID)
			}
		}
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventAuditRecorded, ev)
	}
}

// Query returns audit events matching the filter, newest first. Callers
// below master rank only ever see their own events; the filter's principal
// field is overwritten, not validated.
func (s *AuditService) Query(ctx context.Context, caller *principal.Principal, filter audit.Filter) ([]audit.Event, error) {
	if caller == nil {
		return nil, errors.New("query audit: missing caller principal")
	}
	if caller.Role != principal.RoleMaster {
		filter.PrincipalID = caller.ID
	}

	start := time.Now()
	events, err := s.store.Query(ctx, filter)
	if s.metrics != nil {
		s.metrics.AuditQueryDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	return events, nil
}

// Stats aggregates events between from and to into totals, per-kind,
// per-resource-type, per-principal and daily buckets. Buckets use the
// event's UTC date so a day is counted once regardless of server zone.
func (s *AuditService) Stats(ctx context.Context, caller *principal.Principal, from, to time.Time) (*audit.Stats, error) {
	filter := audit.Filter{From: &from, To: &to}
	events, err := s.Query(ctx, caller, filter)
	if err != nil {
		return nil, err
	}

	stats := &audit.Stats{
		ByKind:         make(map[string]int),
		ByResourceType: make(map[string]int),
		ByPrincipal:    make(map[string]int),
		DailyCounts:    make(map[string]int),
	}
	for _, ev := range events {
		stats.TotalCount++
		stats.ByKind[string(ev.Kind)]++
		stats.ByResourceType[ev.ResourceType]++
		if ev.PrincipalID != "" {
			stats.ByPrincipal[ev.PrincipalID]++
		}
		stats.DailyCounts[ev.CreatedAt.UTC().Format("2006-01-02")]++
	}
	return stats, nil
}

// Prune deletes events older than the retention window and returns how many
// were removed.
func (s *AuditService) Prune(ctx context.Context, retentionDays int) (int64, error) {
	ctx, span := otel.StartAuditSpan(ctx, "prune")
	defer span.End()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	n, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit: %w", err)
	}
	if n > 0 {
		s.log.Info("audit events pruned", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// StartRetentionJob prunes on the given interval until ctx is cancelled.
func (s *AuditService) StartRetentionJob(ctx context.Context, interval time.Duration, retentionDays int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Prune(ctx, retentionDays); err != nil {
				s.log.Error("retention prune failed", "error", err)
			}
		}
	}
}
