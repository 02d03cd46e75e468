package services

import (
	"context"

	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/models"
)

const defaultAuditLimit = 50

// AuditService is the append-only global audit trail: every authorized
// mutation is recorded once, regardless of which capability served it
//.
type AuditService struct {
	repos *repositories.Repositories
}

func NewAuditService(repos *repositories.Repositories) *AuditService {
	return &AuditService{repos: repos}
}

// Record appends one audit event and returns it with its generated id and
// occurred_at populated.
func (s *AuditService) Record(ctx context.Context, actorType models.ActorType, actorID string, sessionID *string, capability, commandName string, payloadJSON, resultJSON *string, success bool) (*models.AuditEvent, error) {
	event := &models.AuditEvent{
		ActorType:   actorType,
		ActorID:     actorID,
		SessionID:   sessionID,
		Capability:  capability,
		CommandName: commandName,
		PayloadJSON: payloadJSON,
		ResultJSON:  resultJSON,
		Success:     success,
	}
	if err := s.repos.Audit.Record(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// ListEvents returns up to limit events newest-first, optionally scoped to
// capability, paging backwards from cursor (the occurred_at of the last
// row a caller has already seen).
func (s *AuditService) ListEvents(ctx context.Context, capability string, limit int, cursor string) ([]*models.AuditEvent, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	return s.repos.Audit.ListBefore(ctx, capability, cursor, limit)
}
