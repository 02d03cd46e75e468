package gitutil

import (
	"context"
	"strings"
)

// JanitorResult summarizes one janitor sweep across every repo path.
type JanitorResult struct {
	WorktreesPruned int
	BranchesDeleted []string
	ReposProcessed  int
}

// TotalCleaned is the combined count of pruned worktrees and deleted
// branches.
func (r JanitorResult) TotalCleaned() int {
	return r.WorktreesPruned + len(r.BranchesDeleted)
}

// RunJanitor prunes stale worktree administrative entries and deletes
// orphaned `kagan/*` branches across repoPaths. A branch is orphaned when
// its workspace id (the suffix after `kagan/`) is not in activeWorkspaceIDs
// and it has no live worktree; `kagan/merge-worktree-*` branches are always
// orphans since they never map to a real workspace.
func RunJanitor(ctx context.Context, repoPaths []string, activeWorkspaceIDs map[string]bool, pruneWorktrees, gcBranches bool) (JanitorResult, error) {
	result := JanitorResult{}

	for _, repoPath := range repoPaths {
		adapter := New(repoPath)
		result.ReposProcessed++

		if pruneWorktrees {
			res, err := adapter.PruneWorktrees(ctx)
			if err != nil {
				return result, err
			}
			result.WorktreesPruned += countPrunedLines(res.Stdout)
		}

		if !gcBranches {
			continue
		}

		branchesRes, err := adapter.ListKaganBranches(ctx)
		if err != nil {
			return result, err
		}
		for _, branch := range strings.Split(branchesRes.Stdout, "\n") {
			branch = strings.TrimSpace(branch)
			if branch == "" {
				continue
			}
			if !isOrphanBranch(ctx, adapter, branch, activeWorkspaceIDs) {
				continue
			}
			if _, err := adapter.DeleteBranch(ctx, branch); err != nil {
				return result, err
			}
			result.BranchesDeleted = append(result.BranchesDeleted, branch)
		}
	}

	return result, nil
}

func isOrphanBranch(ctx context.Context, adapter *Adapter, branch string, activeWorkspaceIDs map[string]bool) bool {
	workspaceID, ok := strings.CutPrefix(branch, "kagan/")
	if !ok {
		return false
	}
	if strings.HasPrefix(workspaceID, "merge-worktree-") {
		return true
	}
	if activeWorkspaceIDs[workspaceID] {
		return false
	}
	worktreePath, err := adapter.GetWorktreeForBranch(ctx, branch)
	if err != nil {
		return false
	}
	return worktreePath == ""
}

func countPrunedLines(output string) int {
	count := 0
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "Removing worktrees/") {
			count++
		}
	}
	return count
}
