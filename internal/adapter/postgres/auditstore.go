package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cadencrm/cadence/internal/domain/audit"
)

const eventColumns = `id, COALESCE(principal_id::text, ''), kind, resource_type,
	 COALESCE(resource_id, ''), old_data, new_data,
	 COALESCE(ip_address, ''), COALESCE(user_agent, ''), COALESCE(url, ''), created_at`

const eventInsertColumns = `principal_id, kind, resource_type, resource_id,
	 old_data, new_data, ip_address, user_agent, url`

func scanEvent(row scannable) (audit.Event, error) {
	var ev audit.Event
	err := row.Scan(&ev.ID, &ev.PrincipalID, &ev.Kind, &ev.ResourceType, &ev.ResourceID,
		&ev.OldData, &ev.NewData, &ev.Context.IP, &ev.Context.Agent, &ev.Context.URL,
		&ev.CreatedAt)
	return ev, err
}

// Append inserts one audit event. The weak principal reference is stored as
// text so events survive principal deletion.
func (s *Store) Append(ctx context.Context, ev *audit.Event) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO audit_events (`+eventInsertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		nullIfEmpty(ev.PrincipalID), ev.Kind, ev.ResourceType, nullIfEmpty(ev.ResourceID),
		ev.OldData, ev.NewData,
		nullIfEmpty(ev.Context.IP), nullIfEmpty(ev.Context.Agent), nullIfEmpty(ev.Context.URL),
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.PrincipalID != "" {
		conds = append(conds, "principal_id::text = "+arg(filter.PrincipalID))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		conds = append(conds, "kind = ANY("+arg(kinds)+")")
	}
	if filter.ResourceType != "" {
		conds = append(conds, "resource_type = "+arg(filter.ResourceType))
	}
	if filter.From != nil {
		conds = append(conds, "created_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "created_at <= "+arg(*filter.To))
	}

	query := fmt.Sprintf(`SELECT %s FROM audit_events`, eventColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune deletes all events recorded before cutoff and reports how many rows
// went. The range delete never touches rows still being appended.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return tag.RowsAffected(), nil
}
