package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/db/queries"
	"github.com/kagan-sh/kagan-sub004/internal/models"
)

// TaskRepo persists models.Task rows and their append-only event trail.
type TaskRepo struct {
	q *queries.Queries
}

func NewTaskRepo(conn *sql.DB) *TaskRepo {
	return &TaskRepo{q: queries.New(conn)}
}

func convertTask(row queries.Task) (*models.Task, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	var criteria []string
	if err := json.Unmarshal([]byte(row.AcceptanceCriteria), &criteria); err != nil {
		return nil, err
	}

	t := &models.Task{
		ID:                 row.ID,
		ProjectID:          row.ProjectID,
		ParentID:           ptrFromNullString(row.ParentID),
		Title:              row.Title,
		Description:        row.Description,
		Status:             models.TaskStatus(row.Status),
		Priority:           models.Priority(row.Priority),
		TaskType:           models.TaskType(row.TaskType),
		AgentBackend:       ptrFromNullString(row.AgentBackend),
		AcceptanceCriteria: criteria,
		BaseBranch:         ptrFromNullString(row.BaseBranch),
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
		MergeReadiness:     models.MergeReadiness(row.MergeReadiness),
		MergeFailed:        row.MergeFailed,
		MergeError:         ptrFromNullString(row.MergeError),
		ChecksPassed:       ptrFromNullBool(row.ChecksPassed),
		Scratchpad:         row.Scratchpad,
	}
	if row.TerminalBackend.Valid {
		backend := models.TerminalBackend(row.TerminalBackend.String)
		t.TerminalBackend = &backend
	}
	return t, nil
}

func terminalBackendNullString(tb *models.TerminalBackend) sql.NullString {
	if tb == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*tb), Valid: true}
}

func (r *TaskRepo) Create(ctx context.Context, t *models.Task) error {
	criteria, err := json.Marshal(t.AcceptanceCriteria)
	if err != nil {
		return err
	}
	if criteria == nil || string(criteria) == "null" {
		criteria = []byte("[]")
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = models.TaskStatusBacklog
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if t.TaskType == "" {
		t.TaskType = models.TaskTypeAuto
	}

	return r.q.CreateTask(ctx, queries.CreateTaskParams{
		ID:                 t.ID,
		ProjectID:          t.ProjectID,
		ParentID:           nullStringFromPtr(t.ParentID),
		Title:              t.Title,
		Description:        t.Description,
		Status:             string(t.Status),
		Priority:           string(t.Priority),
		TaskType:           string(t.TaskType),
		TerminalBackend:    terminalBackendNullString(t.TerminalBackend),
		AgentBackend:       nullStringFromPtr(t.AgentBackend),
		AcceptanceCriteria: string(criteria),
		BaseBranch:         nullStringFromPtr(t.BaseBranch),
		CreatedAt:          formatTime(now),
		UpdatedAt:          formatTime(now),
	})
}

func (r *TaskRepo) Get(ctx context.Context, id string) (*models.Task, error) {
	row, err := r.q.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertTask(row)
}

func (r *TaskRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Task, error) {
	rows, err := r.q.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return convertTasks(rows)
}

func (r *TaskRepo) ListByStatus(ctx context.Context, projectID string, status models.TaskStatus) ([]*models.Task, error) {
	rows, err := r.q.ListTasksByStatus(ctx, projectID, string(status))
	if err != nil {
		return nil, err
	}
	return convertTasks(rows)
}

// ListUpdatedSince drives tasks.wait: callers pass the cursor they last
// observed and receive every task mutated strictly after it, oldest first.
func (r *TaskRepo) ListUpdatedSince(ctx context.Context, projectID string, since time.Time) ([]*models.Task, error) {
	rows, err := r.q.ListTasksUpdatedSince(ctx, projectID, formatTime(since))
	if err != nil {
		return nil, err
	}
	return convertTasks(rows)
}

func convertTasks(rows []queries.Task) ([]*models.Task, error) {
	out := make([]*models.Task, 0, len(rows))
	for _, row := range rows {
		t, err := convertTask(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *TaskRepo) Update(ctx context.Context, t *models.Task) error {
	criteria, err := json.Marshal(t.AcceptanceCriteria)
	if err != nil {
		return err
	}
	if criteria == nil || string(criteria) == "null" {
		criteria = []byte("[]")
	}
	t.UpdatedAt = time.Now().UTC()

	return r.q.UpdateTask(ctx, queries.UpdateTaskParams{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Status:             string(t.Status),
		Priority:           string(t.Priority),
		TerminalBackend:    terminalBackendNullString(t.TerminalBackend),
		AgentBackend:       nullStringFromPtr(t.AgentBackend),
		AcceptanceCriteria: string(criteria),
		BaseBranch:         nullStringFromPtr(t.BaseBranch),
		MergeReadiness:     string(t.MergeReadiness),
		MergeFailed:        t.MergeFailed,
		MergeError:         nullStringFromPtr(t.MergeError),
		ChecksPassed:       nullBoolFromPtr(t.ChecksPassed),
		Scratchpad:         t.Scratchpad,
		UpdatedAt:          formatTime(t.UpdatedAt),
	})
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	return r.q.DeleteTask(ctx, id)
}

func (r *TaskRepo) AppendEvent(ctx context.Context, taskID, kind, message string) error {
	return r.q.CreateTaskEvent(ctx, queries.CreateTaskEventParams{
		TaskID: taskID, Kind: kind, Message: message, CreatedAt: formatTime(time.Now()),
	})
}

func (r *TaskRepo) ListEvents(ctx context.Context, taskID string) ([]models.TaskEvent, error) {
	rows, err := r.q.ListTaskEvents(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]models.TaskEvent, 0, len(rows))
	for _, row := range rows {
		createdAt, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, models.TaskEvent{
			ID: row.ID, TaskID: row.TaskID, Kind: row.Kind, Message: row.Message, CreatedAt: createdAt,
		})
	}
	return out, nil
}
