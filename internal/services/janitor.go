package services

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/gitutil"
)

// JanitorService collects the live workspace set from the database and
// hands it to gitutil's sweep, keeping the read model ("what's active", in
// the DB) separate from the side effect ("what's on disk", in git).
type JanitorService struct {
	repos *repositories.Repositories
}

func NewJanitorService(repos *repositories.Repositories) *JanitorService {
	return &JanitorService{repos: repos}
}

// Run sweeps every registered repo's checkout, pruning stale worktree
// administrative entries and deleting orphaned kagan/* branches whose
// task is no longer active.
func (j *JanitorService) Run(ctx context.Context, pruneWorktrees, gcBranches bool) (gitutil.JanitorResult, error) {
	repoList, err := j.repos.Repos.ListAll(ctx)
	if err != nil {
		return gitutil.JanitorResult{}, fmt.Errorf("list repos: %w", err)
	}
	repoPaths := make([]string, 0, len(repoList))
	for _, repo := range repoList {
		repoPaths = append(repoPaths, repo.Path)
	}

	workspaces, err := j.repos.Workspaces.ListActive(ctx)
	if err != nil {
		return gitutil.JanitorResult{}, fmt.Errorf("list active workspaces: %w", err)
	}
	activeTaskIDs := make(map[string]bool, len(workspaces))
	for _, ws := range workspaces {
		if ws.TaskID != nil {
			activeTaskIDs[*ws.TaskID] = true
		}
	}

	return gitutil.RunJanitor(ctx, repoPaths, activeTaskIDs, pruneWorktrees, gcBranches)
}
