package services

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/gitutil"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/oklog/ulid/v2"
)

// WorkspaceService provisions one `kagan/<workspace-id>` branch and
// worktree per repo in a project for a given task.
type WorkspaceService struct {
	repos *repositories.Repositories
}

func NewWorkspaceService(repos *repositories.Repositories) *WorkspaceService {
	return &WorkspaceService{repos: repos}
}

// Provision creates the workspace row and one worktree per project repo,
// branching from each repo's default branch (or baseBranchOverride when
// set). Partial failure releases any worktrees already created.
func (s *WorkspaceService) Provision(ctx context.Context, projectID, taskID string, baseBranchOverride *string) (*models.Workspace, error) {
	repoList, err := s.repos.Repos.ListForProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project repos: %w", err)
	}
	if len(repoList) == 0 {
		return nil, fmt.Errorf("project %s has no repos registered", projectID)
	}

	ws := &models.Workspace{
		ID:         ulid.Make().String(),
		ProjectID:  projectID,
		TaskID:     &taskID,
		BranchName: "kagan/" + taskID,
	}

	type createdWorktree struct {
		repoPath     string
		worktreePath string
	}
	var created []createdWorktree
	rollback := func() {
		for _, c := range created {
			gitutil.New(c.repoPath).Release(ctx, c.worktreePath, true)
		}
	}

	for _, repo := range repoList {
		base := repo.DefaultBranch
		if baseBranchOverride != nil && *baseBranchOverride != "" {
			base = *baseBranchOverride
		}
		worktreePath := filepath.Join(config.GetWorktreeBase(), ws.ID, repo.Name)
		adapter := gitutil.New(repo.Path)
		res, err := adapter.Create(ctx, worktreePath, ws.BranchName, base)
		if err != nil || !res.Succeeded() {
			rollback()
			if err != nil {
				return nil, fmt.Errorf("create worktree for repo %s: %w", repo.Name, err)
			}
			return nil, fmt.Errorf("create worktree for repo %s: %s", repo.Name, res.Stderr)
		}
		created = append(created, createdWorktree{repoPath: repo.Path, worktreePath: worktreePath})
		if ws.Path == "" {
			ws.Path = worktreePath
		}
	}

	if err := s.repos.Workspaces.Create(ctx, ws); err != nil {
		rollback()
		return nil, fmt.Errorf("persist workspace: %w", err)
	}
	for _, repo := range repoList {
		worktreePath := filepath.Join(config.GetWorktreeBase(), ws.ID, repo.Name)
		if err := s.repos.Workspaces.AddRepo(ctx, ws.ID, repo.ID, worktreePath); err != nil {
			return nil, fmt.Errorf("record workspace repo: %w", err)
		}
	}

	return ws, nil
}

func (s *WorkspaceService) Get(ctx context.Context, id string) (*models.Workspace, error) {
	return s.repos.Workspaces.Get(ctx, id)
}

func (s *WorkspaceService) GetForTask(ctx context.Context, taskID string) (*models.Workspace, error) {
	return s.repos.Workspaces.GetForTask(ctx, taskID)
}

func (s *WorkspaceService) ListActive(ctx context.Context) ([]*models.Workspace, error) {
	return s.repos.Workspaces.ListActive(ctx)
}

// Release removes every repo worktree belonging to the workspace and
// marks it CLOSED.
func (s *WorkspaceService) Release(ctx context.Context, workspaceID string, force bool) error {
	repoLinks, err := s.repos.Workspaces.ListRepos(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("list workspace repos: %w", err)
	}

	for _, link := range repoLinks {
		repo, err := s.repos.Repos.Get(ctx, link.RepoID)
		if err != nil {
			return fmt.Errorf("get repo %s: %w", link.RepoID, err)
		}
		adapter := gitutil.New(repo.Path)
		if _, err := adapter.Release(ctx, link.Path, force); err != nil {
			return fmt.Errorf("release worktree %s: %w", link.Path, err)
		}
	}

	return s.repos.Workspaces.Close(ctx, workspaceID)
}
