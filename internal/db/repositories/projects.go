package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/db/queries"
	"github.com/kagan-sh/kagan-sub004/internal/models"
)

// ProjectRepo persists models.Project and models.Repo rows (repos are
// project-adjacent, not project-owned — a repo can belong to several
// projects via the project_repos junction table).
type ProjectRepo struct {
	q *queries.Queries
}

func NewProjectRepo(conn *sql.DB) *ProjectRepo {
	return &ProjectRepo{q: queries.New(conn)}
}

func convertProject(p queries.Project) (*models.Project, error) {
	createdAt, err := parseTime(p.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	lastOpened, err := ptrFromNullTime(p.LastOpenedAt)
	if err != nil {
		return nil, err
	}
	return &models.Project{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		LastOpenedAt: lastOpened,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func (r *ProjectRepo) Create(ctx context.Context, p *models.Project) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return r.q.CreateProject(ctx, queries.CreateProjectParams{
		ID: p.ID, Name: p.Name, Description: p.Description, CreatedAt: formatTime(now), UpdatedAt: formatTime(now),
	})
}

func (r *ProjectRepo) Get(ctx context.Context, id string) (*models.Project, error) {
	row, err := r.q.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertProject(row)
}

func (r *ProjectRepo) List(ctx context.Context) ([]*models.Project, error) {
	rows, err := r.q.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Project, 0, len(rows))
	for _, row := range rows {
		p, err := convertProject(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *ProjectRepo) Update(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()
	return r.q.UpdateProject(ctx, queries.UpdateProjectParams{
		ID: p.ID, Name: p.Name, Description: p.Description, UpdatedAt: formatTime(p.UpdatedAt),
	})
}

func (r *ProjectRepo) TouchLastOpened(ctx context.Context, id string) error {
	return r.q.TouchProjectLastOpened(ctx, id, formatTime(time.Now()))
}

func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	return r.q.DeleteProject(ctx, id)
}

// RepoRepo persists models.Repo rows and their project memberships.
type RepoRepo struct {
	q *queries.Queries
}

func NewRepoRepo(conn *sql.DB) *RepoRepo {
	return &RepoRepo{q: queries.New(conn)}
}

func convertRepo(row queries.Repo) (*models.Repo, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	var scripts map[string]string
	if err := json.Unmarshal([]byte(row.ScriptsJSON), &scripts); err != nil {
		return nil, err
	}
	return &models.Repo{
		ID:            row.ID,
		Name:          row.Name,
		Path:          row.Path,
		DefaultBranch: row.DefaultBranch,
		Scripts:       scripts,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

func (r *RepoRepo) Create(ctx context.Context, repo *models.Repo) error {
	scriptsJSON, err := json.Marshal(repo.Scripts)
	if err != nil {
		return err
	}
	now := formatTime(time.Now())
	return r.q.CreateRepo(ctx, queries.CreateRepoParams{
		ID: repo.ID, Name: repo.Name, Path: repo.Path, DefaultBranch: repo.DefaultBranch,
		ScriptsJSON: string(scriptsJSON), CreatedAt: now, UpdatedAt: now,
	})
}

func (r *RepoRepo) Get(ctx context.Context, id string) (*models.Repo, error) {
	row, err := r.q.GetRepo(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertRepo(row)
}

func (r *RepoRepo) ListForProject(ctx context.Context, projectID string) ([]*models.Repo, error) {
	rows, err := r.q.ListReposForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Repo, 0, len(rows))
	for _, row := range rows {
		repo, err := convertRepo(row)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, nil
}

// ListAll returns every registered repo across all projects (the janitor
// sweep's checkout-path universe).
func (r *RepoRepo) ListAll(ctx context.Context) ([]*models.Repo, error) {
	rows, err := r.q.ListAllRepos(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Repo, 0, len(rows))
	for _, row := range rows {
		repo, err := convertRepo(row)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, nil
}

func (r *RepoRepo) Delete(ctx context.Context, id string) error {
	return r.q.DeleteRepo(ctx, id)
}

func (r *RepoRepo) AddToProject(ctx context.Context, projectID, repoID string, isPrimary bool, displayOrder int) error {
	return r.q.AddRepoToProject(ctx, queries.AddRepoToProjectParams{
		ProjectID: projectID, RepoID: repoID, IsPrimary: isPrimary, DisplayOrder: int64(displayOrder),
	})
}

func (r *RepoRepo) RemoveFromProject(ctx context.Context, projectID, repoID string) error {
	return r.q.RemoveRepoFromProject(ctx, projectID, repoID)
}
