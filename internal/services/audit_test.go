package services

import (
	"context"
	"testing"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/stretchr/testify/require"
)

func TestAuditService_RecordGeneratesIDAndTimestamp(t *testing.T) {
	repos := setupTestRepos(t)
	svc := NewAuditService(repos)
	ctx := context.Background()

	event, err := svc.Record(ctx, models.ActorTypeUser, "user-1", nil, "tasks", "task.create", nil, nil, true)
	require.NoError(t, err)
	require.Len(t, event.ID, 8)
	require.False(t, event.OccurredAt.IsZero())
}

func TestAuditService_ListEventsNewestFirstWithCursor(t *testing.T) {
	repos := setupTestRepos(t)
	svc := NewAuditService(repos)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, models.ActorTypeAgent, "agent-1", nil, "tasks", "task.update", nil, nil, true)
		require.NoError(t, err)
	}
	_, err := svc.Record(ctx, models.ActorTypeAgent, "agent-1", nil, "merges", "merge.task", nil, nil, false)
	require.NoError(t, err)

	all, err := svc.ListEvents(ctx, "", 10, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 0; i+1 < len(all); i++ {
		require.False(t, all[i].OccurredAt.Before(all[i+1].OccurredAt))
	}

	scoped, err := svc.ListEvents(ctx, "merges", 10, "")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	require.Equal(t, "merges", scoped[0].Capability)

	firstPage, err := svc.ListEvents(ctx, "", 2, "")
	require.NoError(t, err)
	require.Len(t, firstPage, 2)

	cursor := firstPage[len(firstPage)-1].OccurredAt.UTC().Format(time.RFC3339Nano)
	secondPage, err := svc.ListEvents(ctx, "", 10, cursor)
	require.NoError(t, err)
	require.Len(t, secondPage, 2)
}
