package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/store"
)

type eventsRepo struct {
	q querier
}

func (r *eventsRepo) CreateEvent(ctx context.Context, ev domain.SecurityEvent) error {
	details := []byte("{}")
	if len(ev.Details) > 0 {
		var err error
		details, err = json.Marshal(ev.Details)
		if err != nil {
			return err
		}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO security_events (id, type, subject, severity, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Subject, string(ev.Severity),
		string(details), ev.CreatedAt,
	)
	return err
}

func (r *eventsRepo) ListEvents(ctx context.Context, f store.EventFilter) ([]domain.SecurityEvent, error) {
	var (
		conds []string
		args  []any
	)
	if f.Subject != "" {
		conds = append(conds, "subject = ?")
		args = append(args, f.Subject)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	query := `SELECT id, type, subject, severity, details, created_at FROM security_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var (
			ev         domain.SecurityEvent
			typ        string
			severity   string
			rawDetails string
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.Subject, &severity, &rawDetails, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Type = domain.EventType(typ)
		ev.Severity = domain.Severity(severity)
		if rawDetails != "" && rawDetails != "{}" {
			if err := json.Unmarshal([]byte(rawDetails), &ev.Details); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *eventsRepo) CountEventsSince(
	ctx context.Context,
	subject string,
	t domain.EventType,
	since time.Time,
) (int64, error) {
	var count int64
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM security_events
		WHERE subject = ? AND type = ? AND created_at >= ?`,
		subject, string(t), since.UTC(),
	).Scan(&count)
	return count, err
}

func (r *eventsRepo) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM security_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
