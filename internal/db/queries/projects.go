package queries

import (
	"context"
	"database/sql"
)

// Project is the row shape for the projects table.
type Project struct {
	ID           string
	Name         string
	Description  string
	LastOpenedAt sql.NullString
	CreatedAt    string
	UpdatedAt    string
}

type CreateProjectParams struct {
	ID          string
	Name        string
	Description string
	CreatedAt   string
	UpdatedAt   string
}

const createProject = `
INSERT INTO projects (id, name, description, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) CreateProject(ctx context.Context, arg CreateProjectParams) error {
	_, err := q.db.ExecContext(ctx, createProject, arg.ID, arg.Name, arg.Description, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const getProject = `
SELECT id, name, description, last_opened_at, created_at, updated_at
FROM projects WHERE id = ?
`

func (q *Queries) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	row := q.db.QueryRowContext(ctx, getProject, id)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.LastOpenedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const listProjects = `
SELECT id, name, description, last_opened_at, created_at, updated_at
FROM projects ORDER BY updated_at DESC
`

func (q *Queries) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := q.db.QueryContext(ctx, listProjects)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.LastOpenedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type UpdateProjectParams struct {
	ID          string
	Name        string
	Description string
	UpdatedAt   string
}

const updateProject = `
UPDATE projects SET name = ?, description = ?, updated_at = ? WHERE id = ?
`

func (q *Queries) UpdateProject(ctx context.Context, arg UpdateProjectParams) error {
	_, err := q.db.ExecContext(ctx, updateProject, arg.Name, arg.Description, arg.UpdatedAt, arg.ID)
	return err
}

const touchProjectLastOpened = `
UPDATE projects SET last_opened_at = ?, updated_at = ? WHERE id = ?
`

func (q *Queries) TouchProjectLastOpened(ctx context.Context, id, timestamp string) error {
	_, err := q.db.ExecContext(ctx, touchProjectLastOpened, timestamp, timestamp, id)
	return err
}

const deleteProject = `DELETE FROM projects WHERE id = ?`

func (q *Queries) DeleteProject(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteProject, id)
	return err
}

// Repo is the row shape for the repos table.
type Repo struct {
	ID            string
	Name          string
	Path          string
	DefaultBranch string
	ScriptsJSON   string
	CreatedAt     string
	UpdatedAt     string
}

type CreateRepoParams struct {
	ID            string
	Name          string
	Path          string
	DefaultBranch string
	ScriptsJSON   string
	CreatedAt     string
	UpdatedAt     string
}

const createRepo = `
INSERT INTO repos (id, name, path, default_branch, scripts_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateRepo(ctx context.Context, arg CreateRepoParams) error {
	_, err := q.db.ExecContext(ctx, createRepo, arg.ID, arg.Name, arg.Path, arg.DefaultBranch, arg.ScriptsJSON, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const getRepo = `
SELECT id, name, path, default_branch, scripts_json, created_at, updated_at
FROM repos WHERE id = ?
`

func (q *Queries) GetRepo(ctx context.Context, id string) (Repo, error) {
	var r Repo
	row := q.db.QueryRowContext(ctx, getRepo, id)
	err := row.Scan(&r.ID, &r.Name, &r.Path, &r.DefaultBranch, &r.ScriptsJSON, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

const listReposForProject = `
SELECT r.id, r.name, r.path, r.default_branch, r.scripts_json, r.created_at, r.updated_at
FROM repos r
JOIN project_repos pr ON pr.repo_id = r.id
WHERE pr.project_id = ?
ORDER BY pr.display_order ASC
`

func (q *Queries) ListReposForProject(ctx context.Context, projectID string) ([]Repo, error) {
	rows, err := q.db.QueryContext(ctx, listReposForProject, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Repo
	for rows.Next() {
		var r Repo
		if err := rows.Scan(&r.ID, &r.Name, &r.Path, &r.DefaultBranch, &r.ScriptsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const listAllRepos = `
SELECT id, name, path, default_branch, scripts_json, created_at, updated_at
FROM repos ORDER BY id ASC
`

// ListAllRepos returns every registered repo regardless of project
// membership, used by the janitor sweep to enumerate checkout paths.
func (q *Queries) ListAllRepos(ctx context.Context) ([]Repo, error) {
	rows, err := q.db.QueryContext(ctx, listAllRepos)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Repo
	for rows.Next() {
		var r Repo
		if err := rows.Scan(&r.ID, &r.Name, &r.Path, &r.DefaultBranch, &r.ScriptsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const deleteRepo = `DELETE FROM repos WHERE id = ?`

func (q *Queries) DeleteRepo(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteRepo, id)
	return err
}

// ProjectRepo is the row shape for the project_repos junction table.
type ProjectRepo struct {
	ProjectID    string
	RepoID       string
	IsPrimary    bool
	DisplayOrder int64
}

type AddRepoToProjectParams struct {
	ProjectID    string
	RepoID       string
	IsPrimary    bool
	DisplayOrder int64
}

const addRepoToProject = `
INSERT INTO project_repos (project_id, repo_id, is_primary, display_order)
VALUES (?, ?, ?, ?)
`

func (q *Queries) AddRepoToProject(ctx context.Context, arg AddRepoToProjectParams) error {
	_, err := q.db.ExecContext(ctx, addRepoToProject, arg.ProjectID, arg.RepoID, arg.IsPrimary, arg.DisplayOrder)
	return err
}

const removeRepoFromProject = `
DELETE FROM project_repos WHERE project_id = ? AND repo_id = ?
`

func (q *Queries) RemoveRepoFromProject(ctx context.Context, projectID, repoID string) error {
	_, err := q.db.ExecContext(ctx, removeRepoFromProject, projectID, repoID)
	return err
}
