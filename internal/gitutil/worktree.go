// Package gitutil is a thin shell wrapper around the `git` CLI: worktree
// create/release, rebase-onto-base, squash merge, commit/diff inspection,
// and branch garbage collection. Every operation captures stdout/stderr
// into a uniform CommandResult rather than raising on a non-zero exit —
// callers (the merge service, the janitor) interpret the captured output
// themselves.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// CommandResult is the uniform shape every git shell-out returns.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Succeeded reports whether the command exited zero.
func (r CommandResult) Succeeded() bool { return r.ExitCode == 0 }

// Adapter runs git commands rooted at a single repository checkout path.
type Adapter struct {
	RepoPath string
}

// New builds an Adapter for the repository at repoPath (the primary
// checkout, not a worktree — worktrees hang off this path).
func New(repoPath string) *Adapter {
	return &Adapter{RepoPath: repoPath}
}

func (a *Adapter) run(ctx context.Context, dir string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("exec git %s: %w", strings.Join(args, " "), err)
	}
	return result, nil
}

// Create adds a worktree at worktreePath on a fresh branch branchName
// (the `kagan/<workspace-id>` convention), based on baseBranch.
func (a *Adapter) Create(ctx context.Context, worktreePath, branchName, baseBranch string) (CommandResult, error) {
	return a.run(ctx, a.RepoPath, "worktree", "add", "-b", branchName, worktreePath, baseBranch)
}

// Release removes a worktree, optionally forcing past uncommitted changes.
func (a *Adapter) Release(ctx context.Context, worktreePath string, force bool) (CommandResult, error) {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, worktreePath)
	return a.run(ctx, a.RepoPath, args...)
}

// RebaseOntoBase rebases the worktree's current branch onto baseBranch.
func (a *Adapter) RebaseOntoBase(ctx context.Context, worktreePath, baseBranch string) (CommandResult, error) {
	if _, err := a.run(ctx, worktreePath, "fetch", "origin", baseBranch); err != nil {
		return CommandResult{}, err
	}
	return a.run(ctx, worktreePath, "rebase", baseBranch)
}

// AbortRebase aborts an in-progress rebase in the worktree.
func (a *Adapter) AbortRebase(ctx context.Context, worktreePath string) (CommandResult, error) {
	return a.run(ctx, worktreePath, "rebase", "--abort")
}

// MergeSquash squash-merges the worktree's branch into targetBranch,
// checked out in the primary repository, and commits the result.
func (a *Adapter) MergeSquash(ctx context.Context, branchName, targetBranch, message string) (CommandResult, error) {
	if res, err := a.run(ctx, a.RepoPath, "checkout", targetBranch); err != nil || !res.Succeeded() {
		return res, err
	}
	res, err := a.run(ctx, a.RepoPath, "merge", "--squash", branchName)
	if err != nil || !res.Succeeded() {
		return res, err
	}
	return a.run(ctx, a.RepoPath, "commit", "-m", message)
}

// Push pushes a worktree's branch, requiring --force-with-lease when
// forceAfterRebase is set — every rebase must push with a force flag
//.
func (a *Adapter) Push(ctx context.Context, worktreePath, branchName string, forceAfterRebase bool) (CommandResult, error) {
	args := []string{"push", "origin", branchName}
	if forceAfterRebase {
		args = append(args, "--force-with-lease")
	}
	return a.run(ctx, worktreePath, args...)
}

// GetCommitLog returns `git log` for the worktree's branch against
// baseBranch, one commit per line (abbreviated hash, then subject).
func (a *Adapter) GetCommitLog(ctx context.Context, worktreePath, baseBranch string) (CommandResult, error) {
	return a.run(ctx, worktreePath, "log", "--oneline", baseBranch+"..HEAD")
}

// GetFilesChanged returns the worktree's currently dirty (uncommitted)
// file paths.
func (a *Adapter) GetFilesChanged(ctx context.Context, worktreePath string) (CommandResult, error) {
	return a.run(ctx, worktreePath, "status", "--porcelain")
}

// GetFilesChangedOnBase returns the file paths that differ between the
// worktree's branch and baseBranch — used to compute the preemptive-rebase
// overlap check.
func (a *Adapter) GetFilesChangedOnBase(ctx context.Context, worktreePath, baseBranch string) (CommandResult, error) {
	return a.run(ctx, worktreePath, "diff", "--name-only", baseBranch+"...HEAD")
}

// PruneWorktrees removes administrative files for worktrees whose
// directory no longer exists, returning the verbose prune output so the
// caller can count removed entries.
func (a *Adapter) PruneWorktrees(ctx context.Context) (CommandResult, error) {
	return a.run(ctx, a.RepoPath, "worktree", "prune", "--verbose")
}

// ListKaganBranches lists local branches under the refs/heads/kagan/
// namespace.
func (a *Adapter) ListKaganBranches(ctx context.Context) (CommandResult, error) {
	return a.run(ctx, a.RepoPath, "for-each-ref", "--format=%(refname:short)", "refs/heads/kagan/*")
}

// DeleteBranch force-deletes a local branch.
func (a *Adapter) DeleteBranch(ctx context.Context, branchName string) (CommandResult, error) {
	return a.run(ctx, a.RepoPath, "branch", "-D", branchName)
}

// GetWorktreeForBranch returns the worktree path currently checked out
// for branchName, or "" if none (the branch has no active worktree).
func (a *Adapter) GetWorktreeForBranch(ctx context.Context, branchName string) (string, error) {
	res, err := a.run(ctx, a.RepoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return "", err
	}
	var currentPath string
	for _, line := range strings.Split(res.Stdout, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			currentPath = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			if ref == "refs/heads/"+branchName {
				return currentPath, nil
			}
		}
	}
	return "", nil
}

// IsBranchMerged reports whether branchName has been fully merged into
// targetBranch.
func (a *Adapter) IsBranchMerged(ctx context.Context, branchName, targetBranch string) (bool, error) {
	res, err := a.run(ctx, a.RepoPath, "branch", "--merged", targetBranch)
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.TrimSpace(strings.TrimPrefix(line, "*")) == branchName {
			return true, nil
		}
	}
	return false, nil
}

// conflictIndicators are the substrings the merge service greps for in
// captured git output to classify a failure as a rebase/merge conflict
// rather than a generic error.
var conflictIndicators = []string{"CONFLICT", "Merge conflict", "conflict in", "fix conflicts"}

// IsConflict reports whether a CommandResult's stderr/stdout looks like a
// merge/rebase conflict rather than some other git failure.
func IsConflict(result CommandResult) bool {
	combined := strings.ToLower(result.Stdout + result.Stderr)
	for _, indicator := range conflictIndicators {
		if strings.Contains(combined, strings.ToLower(indicator)) {
			return true
		}
	}
	return false
}

var conflictFilePattern = regexp.MustCompile(`CONFLICT \([^)]+\): Merge conflict in (.+)`)

// ParseConflictFiles extracts conflicted file paths from captured git
// merge output.
func ParseConflictFiles(result CommandResult) []string {
	combined := result.Stdout + result.Stderr
	var files []string
	for _, match := range conflictFilePattern.FindAllStringSubmatch(combined, -1) {
		files = append(files, strings.TrimSpace(match[1]))
	}
	return files
}

// IsBaseAhead reports whether a merge failure indicates the target branch
// has commits the source branch lacks, triggering an automatic
// rebase-then-retry.
func IsBaseAhead(result CommandResult) bool {
	combined := result.Stdout + result.Stderr
	return strings.Contains(combined, "not possible to fast-forward") ||
		strings.Contains(combined, "Updates were rejected") ||
		strings.Contains(combined, "tip of your current branch is behind")
}
