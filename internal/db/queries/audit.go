package queries

import (
	"context"
	"database/sql"
)

// AuditEvent is the row shape for the audit_events table.
type AuditEvent struct {
	ID          string
	OccurredAt  string
	ActorType   string
	ActorID     string
	SessionID   sql.NullString
	Capability  string
	CommandName string
	PayloadJSON sql.NullString
	ResultJSON  sql.NullString
	Success     bool
}

type CreateAuditEventParams struct {
	ID          string
	OccurredAt  string
	ActorType   string
	ActorID     string
	SessionID   sql.NullString
	Capability  string
	CommandName string
	PayloadJSON sql.NullString
	ResultJSON  sql.NullString
	Success     bool
}

const createAuditEvent = `
INSERT INTO audit_events (id, occurred_at, actor_type, actor_id, session_id, capability, command_name, payload_json, result_json, success)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateAuditEvent(ctx context.Context, arg CreateAuditEventParams) error {
	_, err := q.db.ExecContext(ctx, createAuditEvent,
		arg.ID, arg.OccurredAt, arg.ActorType, arg.ActorID, arg.SessionID, arg.Capability,
		arg.CommandName, arg.PayloadJSON, arg.ResultJSON, arg.Success)
	return err
}

// ListAuditEventsBefore returns events newest-first, optionally filtered
// by capability, strictly before cursor (the occurred_at of the last row
// a caller has already seen) — an empty cursor means "from the newest".
func (q *Queries) ListAuditEventsBefore(ctx context.Context, capability, cursor string, limit int64) ([]AuditEvent, error) {
	query := `
SELECT id, occurred_at, actor_type, actor_id, session_id, capability, command_name, payload_json, result_json, success
FROM audit_events
WHERE (? = '' OR capability = ?) AND (? = '' OR occurred_at < ?)
ORDER BY occurred_at DESC
LIMIT ?
`
	rows, err := q.db.QueryContext(ctx, query, capability, capability, cursor, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorType, &e.ActorID, &e.SessionID,
			&e.Capability, &e.CommandName, &e.PayloadJSON, &e.ResultJSON, &e.Success); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
