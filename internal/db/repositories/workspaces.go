package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/db/queries"
	"github.com/kagan-sh/kagan-sub004/internal/models"
)

// WorkspaceRepo persists models.Workspace, its per-repo worktree paths,
// and models.Execution records.
type WorkspaceRepo struct {
	q *queries.Queries
}

func NewWorkspaceRepo(conn *sql.DB) *WorkspaceRepo {
	return &WorkspaceRepo{q: queries.New(conn)}
}

func convertWorkspace(row queries.Workspace) (*models.Workspace, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &models.Workspace{
		ID:         row.ID,
		ProjectID:  row.ProjectID,
		TaskID:     ptrFromNullString(row.TaskID),
		BranchName: row.BranchName,
		Path:       row.Path,
		Status:     models.WorkspaceStatus(row.Status),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func (r *WorkspaceRepo) Create(ctx context.Context, w *models.Workspace) error {
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	if w.Status == "" {
		w.Status = models.WorkspaceStatusActive
	}
	return r.q.CreateWorkspace(ctx, queries.CreateWorkspaceParams{
		ID: w.ID, ProjectID: w.ProjectID, TaskID: nullStringFromPtr(w.TaskID),
		BranchName: w.BranchName, Path: w.Path, CreatedAt: formatTime(now), UpdatedAt: formatTime(now),
	})
}

func (r *WorkspaceRepo) Get(ctx context.Context, id string) (*models.Workspace, error) {
	row, err := r.q.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertWorkspace(row)
}

func (r *WorkspaceRepo) GetForTask(ctx context.Context, taskID string) (*models.Workspace, error) {
	row, err := r.q.GetWorkspaceForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return convertWorkspace(row)
}

func (r *WorkspaceRepo) ListActive(ctx context.Context) ([]*models.Workspace, error) {
	rows, err := r.q.ListActiveWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Workspace, 0, len(rows))
	for _, row := range rows {
		w, err := convertWorkspace(row)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (r *WorkspaceRepo) Close(ctx context.Context, id string) error {
	return r.q.CloseWorkspace(ctx, id, formatTime(time.Now()))
}

func (r *WorkspaceRepo) AddRepo(ctx context.Context, workspaceID, repoID, path string) error {
	return r.q.AddWorkspaceRepo(ctx, queries.AddWorkspaceRepoParams{WorkspaceID: workspaceID, RepoID: repoID, Path: path})
}

func (r *WorkspaceRepo) ListRepos(ctx context.Context, workspaceID string) ([]models.WorkspaceRepo, error) {
	rows, err := r.q.ListWorkspaceRepos(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]models.WorkspaceRepo, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.WorkspaceRepo{WorkspaceID: row.WorkspaceID, RepoID: row.RepoID, Path: row.Path})
	}
	return out, nil
}

// ExecutionRepo persists models.Execution rows.
type ExecutionRepo struct {
	q *queries.Queries
}

func NewExecutionRepo(conn *sql.DB) *ExecutionRepo {
	return &ExecutionRepo{q: queries.New(conn)}
}

func (r *ExecutionRepo) Create(ctx context.Context, e *models.Execution) error {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	e.CreatedAt = time.Now().UTC()
	return r.q.CreateExecution(ctx, queries.CreateExecutionParams{
		ID: e.ID, TaskID: e.TaskID, CreatedAt: formatTime(e.CreatedAt),
		MetadataJSON: string(metaJSON), LogPath: e.LogPath,
	})
}

func (r *ExecutionRepo) ListForTask(ctx context.Context, taskID string) ([]*models.Execution, error) {
	rows, err := r.q.ListExecutionsForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Execution, 0, len(rows))
	for _, row := range rows {
		createdAt, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		var meta map[string]string
		if err := json.Unmarshal([]byte(row.MetadataJSON), &meta); err != nil {
			return nil, err
		}
		out = append(out, &models.Execution{
			ID: row.ID, TaskID: row.TaskID, CreatedAt: createdAt, Metadata: meta, LogPath: row.LogPath,
		})
	}
	return out, nil
}
