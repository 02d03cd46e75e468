// Package services implements the core's business logic: task/project/
// workspace CRUD, the automation scheduler, the merge service, PAIR
// session launchers, the janitor, and audit recording. Every mutation that
// reaches a repository also publishes the matching internal/eventbus event
// so tasks.wait/jobs.wait observe it without polling.
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/eventbus"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/oklog/ulid/v2"
)

// TaskService owns task CRUD, status-transition lifecycle helpers,
// scratchpad, and task mentions.
type TaskService struct {
	repos *repositories.Repositories
	bus   *eventbus.Bus
}

func NewTaskService(repos *repositories.Repositories, bus *eventbus.Bus) *TaskService {
	return &TaskService{repos: repos, bus: bus}
}

// Create persists a new task and publishes TaskCreated.
func (s *TaskService) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	if err := s.repos.Tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.bus.Publish(eventbus.TaskCreated{TaskID: t.ID})
	return t, nil
}

func (s *TaskService) Get(ctx context.Context, taskID string) (*models.Task, error) {
	return s.repos.Tasks.Get(ctx, taskID)
}

func (s *TaskService) ListByProject(ctx context.Context, projectID string) ([]*models.Task, error) {
	return s.repos.Tasks.ListByProject(ctx, projectID)
}

// ListAll aggregates every task across every project, used by tasks.list
// which carries no project or status filter.
func (s *TaskService) ListAll(ctx context.Context) ([]*models.Task, error) {
	projects, err := s.repos.Projects.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.Task
	for _, project := range projects {
		tasksForProject, err := s.repos.Tasks.ListByProject(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, tasksForProject...)
	}
	return out, nil
}

// ListAllByStatus aggregates status-filtered tasks across every project,
// used by the reconciliation tick which has no single project in view.
func (s *TaskService) ListAllByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	projects, err := s.repos.Projects.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.Task
	for _, project := range projects {
		tasksForProject, err := s.repos.Tasks.ListByStatus(ctx, project.ID, status)
		if err != nil {
			return nil, err
		}
		out = append(out, tasksForProject...)
	}
	return out, nil
}

// UpdateFields is the general mutator: every task.* field a client can set
// directly, applied in one update, emitting TaskChanged with the previous
// and current status whenever status itself changed.
type UpdateFields struct {
	Title              *string
	Description        *string
	Priority           *models.Priority
	TerminalBackend    *models.TerminalBackend
	AgentBackend       *string
	AcceptanceCriteria []string
	BaseBranch         *string
}

func (s *TaskService) UpdateFields(ctx context.Context, taskID string, fields UpdateFields) (*models.Task, error) {
	task, err := s.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if fields.Title != nil {
		task.Title = *fields.Title
	}
	if fields.Description != nil {
		task.Description = *fields.Description
	}
	if fields.Priority != nil {
		task.Priority = *fields.Priority
	}
	if fields.TerminalBackend != nil {
		task.TerminalBackend = fields.TerminalBackend
	}
	if fields.AgentBackend != nil {
		task.AgentBackend = fields.AgentBackend
	}
	if fields.AcceptanceCriteria != nil {
		task.AcceptanceCriteria = fields.AcceptanceCriteria
	}
	if fields.BaseBranch != nil {
		task.BaseBranch = fields.BaseBranch
	}
	if err := s.repos.Tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.bus.Publish(eventbus.TaskChanged{TaskID: task.ID})
	return task, nil
}

// Move is the narrow status-transition helper; it always emits previous
// and current status, even when they're equal (callers rely on that for
// idempotent retries).
func (s *TaskService) Move(ctx context.Context, taskID string, status models.TaskStatus) (*models.Task, error) {
	task, err := s.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	previous := task.Status
	task.Status = status
	if err := s.repos.Tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.bus.Publish(eventbus.TaskChanged{TaskID: task.ID, PreviousStatus: string(previous), CurrentStatus: string(status)})
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, taskID string) error {
	if err := s.repos.Tasks.Delete(ctx, taskID); err != nil {
		return err
	}
	s.bus.Publish(eventbus.TaskDeleted{TaskID: taskID})
	return nil
}

// SyncStatusFromAgentComplete is a no-op unless the task is currently
// IN_PROGRESS and the agent reported success, in which case it moves to
// REVIEW.
func (s *TaskService) SyncStatusFromAgentComplete(ctx context.Context, task *models.Task, success bool) (*models.Task, error) {
	if task.Status != models.TaskStatusInProgress || !success {
		return task, nil
	}
	return s.Move(ctx, task.ID, models.TaskStatusReview)
}

// SyncStatusFromReviewPass moves REVIEW -> DONE; no-op otherwise.
func (s *TaskService) SyncStatusFromReviewPass(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.Status != models.TaskStatusReview {
		return task, nil
	}
	return s.Move(ctx, task.ID, models.TaskStatusDone)
}

// SyncStatusFromReviewReject moves REVIEW -> IN_PROGRESS, appending reason
// to the task's description; no-op otherwise.
func (s *TaskService) SyncStatusFromReviewReject(ctx context.Context, task *models.Task, reason string) (*models.Task, error) {
	if task.Status != models.TaskStatusReview {
		return task, nil
	}
	task.Description = appendNote(task.Description, reason)
	if err := s.repos.Tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	return s.Move(ctx, task.ID, models.TaskStatusInProgress)
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return strings.TrimSpace(existing + "\n" + note)
}

// GetScratchpad returns the task's raw scratchpad text.
func (s *TaskService) GetScratchpad(ctx context.Context, taskID string) (string, error) {
	task, err := s.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return "", err
	}
	return task.Scratchpad, nil
}

// AppendScratchpad appends content to the task's scratchpad, joining with
// a newline and trimming surrounding whitespace — matching the core's
// `f"{old}\n{new}".strip()` append rule.
func (s *TaskService) AppendScratchpad(ctx context.Context, taskID, content string) (*models.Task, error) {
	task, err := s.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.Scratchpad = appendNote(task.Scratchpad, content)
	if err := s.repos.Tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.bus.Publish(eventbus.TaskChanged{TaskID: task.ID})
	return task, nil
}

// AppendEvent records a per-task audit trail entry, distinct from the
// global audit log.
func (s *TaskService) AppendEvent(ctx context.Context, taskID, kind, message string) error {
	return s.repos.Tasks.AppendEvent(ctx, taskID, kind, message)
}

func (s *TaskService) ListEvents(ctx context.Context, taskID string) ([]models.TaskEvent, error) {
	return s.repos.Tasks.ListEvents(ctx, taskID)
}

// ListLogs returns the agent run history (models.Execution rows, each
// carrying a sidecar log file path) recorded for a task, newest first.
func (s *TaskService) ListLogs(ctx context.Context, taskID string) ([]*models.Execution, error) {
	return s.repos.Executions.ListForTask(ctx, taskID)
}

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9][A-Za-z0-9_-]*)`)

// ParseMentions extracts `@<task-id>` style mentions from text. Callers
// filter the result against known task ids; a mention of a non-existent
// task is simply not a link.
func ParseMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// TaskLinks resolves the tasks mentioned in a task's scratchpad and
// description, deduplicated, excluding self-references.
func (s *TaskService) TaskLinks(ctx context.Context, task *models.Task) ([]*models.Task, error) {
	ids := append(ParseMentions(task.Scratchpad), ParseMentions(task.Description)...)
	seen := map[string]bool{task.ID: true}
	var linked []*models.Task
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		other, err := s.repos.Tasks.Get(ctx, id)
		if err != nil {
			continue
		}
		linked = append(linked, other)
	}
	return linked, nil
}
