package queries

import (
	"context"
	"database/sql"
)

// Workspace is the row shape for the workspaces table.
type Workspace struct {
	ID         string
	ProjectID  string
	TaskID     sql.NullString
	BranchName string
	Path       string
	Status     string
	CreatedAt  string
	UpdatedAt  string
}

type CreateWorkspaceParams struct {
	ID         string
	ProjectID  string
	TaskID     sql.NullString
	BranchName string
	Path       string
	CreatedAt  string
	UpdatedAt  string
}

const workspaceColumns = `id, project_id, task_id, branch_name, path, status, created_at, updated_at`

const createWorkspace = `
INSERT INTO workspaces (id, project_id, task_id, branch_name, path, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateWorkspace(ctx context.Context, arg CreateWorkspaceParams) error {
	_, err := q.db.ExecContext(ctx, createWorkspace, arg.ID, arg.ProjectID, arg.TaskID, arg.BranchName, arg.Path, arg.CreatedAt, arg.UpdatedAt)
	return err
}

func scanWorkspace(row interface{ Scan(...interface{}) error }) (Workspace, error) {
	var w Workspace
	err := row.Scan(&w.ID, &w.ProjectID, &w.TaskID, &w.BranchName, &w.Path, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

const getWorkspace = `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = ?`

func (q *Queries) GetWorkspace(ctx context.Context, id string) (Workspace, error) {
	return scanWorkspace(q.db.QueryRowContext(ctx, getWorkspace, id))
}

const getWorkspaceForTask = `SELECT ` + workspaceColumns + ` FROM workspaces WHERE task_id = ? AND status = 'ACTIVE'`

func (q *Queries) GetWorkspaceForTask(ctx context.Context, taskID string) (Workspace, error) {
	return scanWorkspace(q.db.QueryRowContext(ctx, getWorkspaceForTask, taskID))
}

const listActiveWorkspaces = `SELECT ` + workspaceColumns + ` FROM workspaces WHERE status = 'ACTIVE'`

func (q *Queries) ListActiveWorkspaces(ctx context.Context) ([]Workspace, error) {
	rows, err := q.db.QueryContext(ctx, listActiveWorkspaces)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

const closeWorkspace = `UPDATE workspaces SET status = 'CLOSED', updated_at = ? WHERE id = ?`

func (q *Queries) CloseWorkspace(ctx context.Context, id, updatedAt string) error {
	_, err := q.db.ExecContext(ctx, closeWorkspace, updatedAt, id)
	return err
}

// WorkspaceRepo is the row shape for the workspace_repos junction table.
type WorkspaceRepo struct {
	WorkspaceID string
	RepoID      string
	Path        string
}

type AddWorkspaceRepoParams struct {
	WorkspaceID string
	RepoID      string
	Path        string
}

const addWorkspaceRepo = `
INSERT INTO workspace_repos (workspace_id, repo_id, path) VALUES (?, ?, ?)
`

func (q *Queries) AddWorkspaceRepo(ctx context.Context, arg AddWorkspaceRepoParams) error {
	_, err := q.db.ExecContext(ctx, addWorkspaceRepo, arg.WorkspaceID, arg.RepoID, arg.Path)
	return err
}

const listWorkspaceRepos = `
SELECT workspace_id, repo_id, path FROM workspace_repos WHERE workspace_id = ?
`

func (q *Queries) ListWorkspaceRepos(ctx context.Context, workspaceID string) ([]WorkspaceRepo, error) {
	rows, err := q.db.QueryContext(ctx, listWorkspaceRepos, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkspaceRepo
	for rows.Next() {
		var wr WorkspaceRepo
		if err := rows.Scan(&wr.WorkspaceID, &wr.RepoID, &wr.Path); err != nil {
			return nil, err
		}
		out = append(out, wr)
	}
	return out, rows.Err()
}

// Execution is the row shape for the executions table.
type Execution struct {
	ID           string
	TaskID       string
	CreatedAt    string
	MetadataJSON string
	LogPath      string
}

type CreateExecutionParams struct {
	ID           string
	TaskID       string
	CreatedAt    string
	MetadataJSON string
	LogPath      string
}

const createExecution = `
INSERT INTO executions (id, task_id, created_at, metadata_json, log_path) VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) CreateExecution(ctx context.Context, arg CreateExecutionParams) error {
	_, err := q.db.ExecContext(ctx, createExecution, arg.ID, arg.TaskID, arg.CreatedAt, arg.MetadataJSON, arg.LogPath)
	return err
}

const listExecutionsForTask = `
SELECT id, task_id, created_at, metadata_json, log_path FROM executions WHERE task_id = ? ORDER BY created_at DESC
`

func (q *Queries) ListExecutionsForTask(ctx context.Context, taskID string) ([]Execution, error) {
	rows, err := q.db.QueryContext(ctx, listExecutionsForTask, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.TaskID, &e.CreatedAt, &e.MetadataJSON, &e.LogPath); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
