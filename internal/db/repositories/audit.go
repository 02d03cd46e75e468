package repositories

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/db/queries"
	"github.com/kagan-sh/kagan-sub004/internal/models"
)

// AuditRepo appends to the global audit_events log, distinct from a task's
// own task_events trail.
type AuditRepo struct {
	q *queries.Queries
}

func NewAuditRepo(conn *sql.DB) *AuditRepo {
	return &AuditRepo{q: queries.New(conn)}
}

// newAuditID generates the 8-char hex id audit.record returns alongside
// occurred_at.
func newAuditID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

func (r *AuditRepo) Record(ctx context.Context, e *models.AuditEvent) error {
	e.ID = newAuditID()
	e.OccurredAt = time.Now().UTC()
	return r.q.CreateAuditEvent(ctx, queries.CreateAuditEventParams{
		ID:          e.ID,
		OccurredAt:  formatTime(e.OccurredAt),
		ActorType:   string(e.ActorType),
		ActorID:     e.ActorID,
		SessionID:   nullStringFromPtr(e.SessionID),
		Capability:  e.Capability,
		CommandName: e.CommandName,
		PayloadJSON: nullStringFromPtr(e.PayloadJSON),
		ResultJSON:  nullStringFromPtr(e.ResultJSON),
		Success:     e.Success,
	})
}

// ListBefore returns up to limit events newest-first, optionally scoped to
// capability, strictly before cursor (an empty cursor starts at the
// newest event).
func (r *AuditRepo) ListBefore(ctx context.Context, capability, cursor string, limit int) ([]*models.AuditEvent, error) {
	rows, err := r.q.ListAuditEventsBefore(ctx, capability, cursor, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]*models.AuditEvent, 0, len(rows))
	for _, row := range rows {
		occurredAt, err := parseTime(row.OccurredAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &models.AuditEvent{
			ID:          row.ID,
			OccurredAt:  occurredAt,
			ActorType:   models.ActorType(row.ActorType),
			ActorID:     row.ActorID,
			SessionID:   ptrFromNullString(row.SessionID),
			Capability:  row.Capability,
			CommandName: row.CommandName,
			PayloadJSON: ptrFromNullString(row.PayloadJSON),
			ResultJSON:  ptrFromNullString(row.ResultJSON),
			Success:     row.Success,
		})
	}
	return out, nil
}
