package queries

import (
	"context"
	"database/sql"
)

// Task is the row shape for the tasks table.
type Task struct {
	ID                 string
	ProjectID          string
	ParentID           sql.NullString
	Title              string
	Description        string
	Status             string
	Priority           string
	TaskType           string
	TerminalBackend    sql.NullString
	AgentBackend       sql.NullString
	AcceptanceCriteria string
	BaseBranch         sql.NullString
	MergeReadiness     string
	MergeFailed        bool
	MergeError         sql.NullString
	ChecksPassed       sql.NullBool
	Scratchpad         string
	CreatedAt          string
	UpdatedAt          string
}

type CreateTaskParams struct {
	ID                 string
	ProjectID          string
	ParentID           sql.NullString
	Title              string
	Description        string
	Status             string
	Priority           string
	TaskType           string
	TerminalBackend    sql.NullString
	AgentBackend       sql.NullString
	AcceptanceCriteria string
	BaseBranch         sql.NullString
	CreatedAt          string
	UpdatedAt          string
}

const taskColumns = `id, project_id, parent_id, title, description, status, priority, task_type,
	terminal_backend, agent_backend, acceptance_criteria, base_branch, merge_readiness,
	merge_failed, merge_error, checks_passed, scratchpad, created_at, updated_at`

const createTask = `
INSERT INTO tasks (id, project_id, parent_id, title, description, status, priority, task_type,
	terminal_backend, agent_backend, acceptance_criteria, base_branch, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateTask(ctx context.Context, arg CreateTaskParams) error {
	_, err := q.db.ExecContext(ctx, createTask,
		arg.ID, arg.ProjectID, arg.ParentID, arg.Title, arg.Description, arg.Status, arg.Priority,
		arg.TaskType, arg.TerminalBackend, arg.AgentBackend, arg.AcceptanceCriteria, arg.BaseBranch,
		arg.CreatedAt, arg.UpdatedAt)
	return err
}

func scanTask(row interface{ Scan(...interface{}) error }) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.ParentID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.TaskType, &t.TerminalBackend, &t.AgentBackend, &t.AcceptanceCriteria, &t.BaseBranch,
		&t.MergeReadiness, &t.MergeFailed, &t.MergeError, &t.ChecksPassed, &t.Scratchpad,
		&t.CreatedAt, &t.UpdatedAt)
	return t, err
}

const getTask = `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

func (q *Queries) GetTask(ctx context.Context, id string) (Task, error) {
	return scanTask(q.db.QueryRowContext(ctx, getTask, id))
}

const listTasksByProject = `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ? ORDER BY updated_at DESC`

func (q *Queries) ListTasksByProject(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, listTasksByProject, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

const listTasksByStatus = `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ? AND status = ? ORDER BY updated_at DESC`

func (q *Queries) ListTasksByStatus(ctx context.Context, projectID, status string) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, listTasksByStatus, projectID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

const listTasksUpdatedSince = `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ? AND updated_at > ? ORDER BY updated_at ASC`

// ListTasksUpdatedSince drives tasks.wait's long-poll cursor.
func (q *Queries) ListTasksUpdatedSince(ctx context.Context, projectID, since string) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, listTasksUpdatedSince, projectID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type UpdateTaskParams struct {
	ID                 string
	Title              string
	Description        string
	Status             string
	Priority           string
	TerminalBackend    sql.NullString
	AgentBackend       sql.NullString
	AcceptanceCriteria string
	BaseBranch         sql.NullString
	MergeReadiness     string
	MergeFailed        bool
	MergeError         sql.NullString
	ChecksPassed       sql.NullBool
	Scratchpad         string
	UpdatedAt          string
}

const updateTask = `
UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, terminal_backend = ?,
	agent_backend = ?, acceptance_criteria = ?, base_branch = ?, merge_readiness = ?,
	merge_failed = ?, merge_error = ?, checks_passed = ?, scratchpad = ?, updated_at = ?
WHERE id = ?
`

func (q *Queries) UpdateTask(ctx context.Context, arg UpdateTaskParams) error {
	_, err := q.db.ExecContext(ctx, updateTask,
		arg.Title, arg.Description, arg.Status, arg.Priority, arg.TerminalBackend, arg.AgentBackend,
		arg.AcceptanceCriteria, arg.BaseBranch, arg.MergeReadiness, arg.MergeFailed, arg.MergeError,
		arg.ChecksPassed, arg.Scratchpad, arg.UpdatedAt, arg.ID)
	return err
}

const deleteTask = `DELETE FROM tasks WHERE id = ?`

func (q *Queries) DeleteTask(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteTask, id)
	return err
}

// TaskEvent is the row shape for the task_events table.
type TaskEvent struct {
	ID        int64
	TaskID    string
	Kind      string
	Message   string
	CreatedAt string
}

type CreateTaskEventParams struct {
	TaskID    string
	Kind      string
	Message   string
	CreatedAt string
}

const createTaskEvent = `
INSERT INTO task_events (task_id, kind, message, created_at) VALUES (?, ?, ?, ?)
`

func (q *Queries) CreateTaskEvent(ctx context.Context, arg CreateTaskEventParams) error {
	_, err := q.db.ExecContext(ctx, createTaskEvent, arg.TaskID, arg.Kind, arg.Message, arg.CreatedAt)
	return err
}

const listTaskEvents = `
SELECT id, task_id, kind, message, created_at FROM task_events WHERE task_id = ? ORDER BY id ASC
`

func (q *Queries) ListTaskEvents(ctx context.Context, taskID string) ([]TaskEvent, error) {
	rows, err := q.db.QueryContext(ctx, listTaskEvents, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskEvent
	for rows.Next() {
		var e TaskEvent
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
