package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/eventbus"
	"github.com/kagan-sh/kagan-sub004/internal/gitutil"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/kagan-sh/kagan-sub004/internal/tracing"
)

const (
	mergeQuiescePoll    = 250 * time.Millisecond
	mergeQuiesceTimeout = 5 * time.Second
	maxStoredErrorLen   = 500
)

// MergeService serialises destructive git mutations across every repo of
// a task's workspace, grounded on
// original_source/src/kagan/services/merges.py's merge_task/apply_rejection_feedback.
type MergeService struct {
	repos      *repositories.Repositories
	tasks      *TaskService
	workspaces *WorkspaceService
	automation *AutomationScheduler
	cfg        *config.Config
	bus        *eventbus.Bus
	tracer     *tracing.Service
}

func NewMergeService(repos *repositories.Repositories, tasks *TaskService, workspaces *WorkspaceService, automation *AutomationScheduler, cfg *config.Config, bus *eventbus.Bus, tracer *tracing.Service) *MergeService {
	return &MergeService{repos: repos, tasks: tasks, workspaces: workspaces, automation: automation, cfg: cfg, bus: bus, tracer: tracer}
}

// MergeTask runs the full merge flow for task, returning (success, message).
func (m *MergeService) MergeTask(ctx context.Context, task *models.Task) (bool, string, error) {
	ctx, span := m.tracer.StartGitSpan(ctx, "merge_task")
	defer span.End()

	ok, message, err := m.mergeTask(ctx, task)
	m.tracer.RecordMerge(ctx, "merge", ok && err == nil)
	return ok, message, err
}

func (m *MergeService) mergeTask(ctx context.Context, task *models.Task) (bool, string, error) {
	if m.cfg.General.RequireReviewApproval && (task.ChecksPassed == nil || !*task.ChecksPassed) {
		message := "Review approval required before merge"
		m.fail(ctx, task, message)
		return false, message, nil
	}

	doMerge := func() (bool, string, error) {
		return m.doMerge(ctx, task)
	}

	if m.cfg.General.SerializeMerges {
		lock := m.automation.MergeLock()
		lock.Lock()
		defer lock.Unlock()
	}
	return doMerge()
}

func (m *MergeService) doMerge(ctx context.Context, task *models.Task) (bool, string, error) {
	if m.automation.IsRunning(task.ID) || m.automation.IsReviewing(task.ID) {
		if !m.quiesce(task.ID) {
			message := "Merge blocked: Task runtime is still active"
			m.fail(ctx, task, message)
			return false, message, nil
		}
	}

	ws, err := m.workspaces.GetForTask(ctx, task.ID)
	if err != nil {
		message := fmt.Sprintf("no active workspace for task: %v", err)
		m.fail(ctx, task, message)
		return false, message, nil
	}
	repoLinks, err := m.repos.Workspaces.ListRepos(ctx, ws.ID)
	if err != nil {
		return false, "", fmt.Errorf("list workspace repos: %w", err)
	}

	base := m.cfg.General.DefaultBaseBranch
	if task.BaseBranch != nil && *task.BaseBranch != "" {
		base = *task.BaseBranch
	}

	if task.TaskType == models.TaskTypeAuto && m.hasNoChanges(ctx, repoLinks, base) {
		if err := m.closeExploratory(ctx, task, ws, repoLinks); err != nil {
			return false, "", err
		}
		return true, "closed: task made no changes against its base branch", nil
	}

	if err := m.repos.Tasks.Update(ctx, withRisk(task)); err != nil {
		return false, "", err
	}

	for _, link := range repoLinks {
		repo, err := m.repos.Repos.Get(ctx, link.RepoID)
		if err != nil {
			return false, "", fmt.Errorf("get repo: %w", err)
		}
		adapter := gitutil.New(repo.Path)

		if m.hasOverlapWithBase(ctx, adapter, link.Path, base) {
			if res, err := adapter.RebaseOntoBase(ctx, link.Path, base); err != nil || !res.Succeeded() {
				return m.handleRebaseFailure(ctx, task, adapter, link.Path, res)
			}
		}

		res, err := adapter.MergeSquash(ctx, ws.BranchName, base, fmt.Sprintf("Merge %s", ws.BranchName))
		if err == nil && res.Succeeded() {
			continue
		}
		if gitutil.IsBaseAhead(res) {
			rebaseRes, rerr := adapter.RebaseOntoBase(ctx, link.Path, base)
			if rerr != nil || !rebaseRes.Succeeded() {
				return m.handleRebaseFailure(ctx, task, adapter, link.Path, rebaseRes)
			}
			retryRes, rerr := adapter.MergeSquash(ctx, ws.BranchName, base, fmt.Sprintf("Merge %s", ws.BranchName))
			if rerr != nil || !retryRes.Succeeded() {
				return m.handleConflict(ctx, task, retryRes)
			}
			continue
		}
		return m.handleConflict(ctx, task, res)
	}

	for _, link := range repoLinks {
		repo, err := m.repos.Repos.Get(ctx, link.RepoID)
		if err != nil {
			continue
		}
		gitutil.New(repo.Path).Release(ctx, link.Path, true)
	}
	m.workspaces.Release(ctx, ws.ID, true)

	task.Status = models.TaskStatusDone
	task.MergeFailed = false
	task.MergeError = nil
	task.MergeReadiness = models.MergeReadinessReady
	if err := m.repos.Tasks.Update(ctx, task); err != nil {
		return false, "", err
	}
	m.bus.Publish(eventbus.TaskChanged{TaskID: task.ID, CurrentStatus: string(models.TaskStatusDone)})
	m.tasks.AppendEvent(ctx, task.ID, "merge", fmt.Sprintf("Merged to %s", base))
	return true, "merged", nil
}

// hasNoChanges reports whether every repo in repoLinks has no commits and
// no working-tree diff against base, the condition closeExploratory acts
// on to avoid an empty merge commit for an AUTO task that made no changes.
func (m *MergeService) hasNoChanges(ctx context.Context, repoLinks []models.WorkspaceRepo, base string) bool {
	for _, link := range repoLinks {
		repo, err := m.repos.Repos.Get(ctx, link.RepoID)
		if err != nil {
			return false
		}
		adapter := gitutil.New(repo.Path)
		commits, err := adapter.GetCommitLog(ctx, link.Path, base)
		if err != nil || strings.TrimSpace(commits.Stdout) != "" {
			return false
		}
		changed, err := adapter.GetFilesChanged(ctx, link.Path)
		if err != nil || strings.TrimSpace(changed.Stdout) != "" {
			return false
		}
	}
	return true
}

// closeExploratory deletes task's workspace (worktrees and branches) and
// the task row itself, rather than recording an empty DONE merge.
func (m *MergeService) closeExploratory(ctx context.Context, task *models.Task, ws *models.Workspace, repoLinks []models.WorkspaceRepo) error {
	for _, link := range repoLinks {
		repo, err := m.repos.Repos.Get(ctx, link.RepoID)
		if err != nil {
			continue
		}
		adapter := gitutil.New(repo.Path)
		adapter.Release(ctx, link.Path, true)
		adapter.DeleteBranch(ctx, ws.BranchName)
	}
	if err := m.workspaces.Release(ctx, ws.ID, true); err != nil {
		return fmt.Errorf("release workspace: %w", err)
	}
	if err := m.tasks.Delete(ctx, task.ID); err != nil {
		return fmt.Errorf("delete exploratory task: %w", err)
	}
	return nil
}

// ApplyRejectionFeedback carries out review.reject's action parameter:
// retry/stage (the spec's default REVIEW -> IN_PROGRESS path, with the
// iteration counter reset for another automation pass) or shelve (REVIEW
// -> BACKLOG, preserving the iteration counter so a later retry resumes
// its cap instead of starting over).
func (m *MergeService) ApplyRejectionFeedback(ctx context.Context, task *models.Task, reason, action string) (*models.Task, error) {
	switch action {
	case "", "retry", "stage":
		updated, err := m.tasks.SyncStatusFromReviewReject(ctx, task, reason)
		if err != nil {
			return nil, err
		}
		if task.TaskType == models.TaskTypeAuto {
			m.automation.ResetIterations(task.ID)
		}
		return updated, nil
	case "shelve":
		if task.Status != models.TaskStatusReview {
			return task, nil
		}
		task.Description = appendNote(task.Description, reason)
		if err := m.repos.Tasks.Update(ctx, task); err != nil {
			return nil, err
		}
		return m.tasks.Move(ctx, task.ID, models.TaskStatusBacklog)
	default:
		return nil, fmt.Errorf("unknown review.reject action %q: must be retry, stage, or shelve", action)
	}
}

func withRisk(task *models.Task) *models.Task {
	task.MergeFailed = false
	task.MergeError = nil
	task.MergeReadiness = models.MergeReadinessRisk
	return task
}

func (m *MergeService) quiesce(taskID string) bool {
	deadline := time.Now().Add(mergeQuiesceTimeout)
	if m.automation.StopTask(taskID) {
		return true
	}
	for time.Now().Before(deadline) {
		if !m.automation.IsRunning(taskID) {
			return true
		}
		time.Sleep(mergeQuiescePoll)
	}
	return !m.automation.IsRunning(taskID)
}

func (m *MergeService) hasOverlapWithBase(ctx context.Context, adapter *gitutil.Adapter, worktreePath, base string) bool {
	changed, err := adapter.GetFilesChanged(ctx, worktreePath)
	if err != nil {
		return false
	}
	changedOnBase, err := adapter.GetFilesChangedOnBase(ctx, worktreePath, base)
	if err != nil {
		return false
	}
	baseFiles := make(map[string]bool)
	for _, f := range strings.Split(changedOnBase.Stdout, "\n") {
		if f = strings.TrimSpace(f); f != "" {
			baseFiles[f] = true
		}
	}
	for _, line := range strings.Split(changed.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if baseFiles[fields[len(fields)-1]] {
			return true
		}
	}
	return false
}

func (m *MergeService) handleRebaseFailure(ctx context.Context, task *models.Task, adapter *gitutil.Adapter, worktreePath string, res gitutil.CommandResult) (bool, string, error) {
	files := gitutil.ParseConflictFiles(res)
	adapter.AbortRebase(ctx, worktreePath)
	message := "Rebase conflict"
	if len(files) > 0 {
		message = "Rebase conflicts in: " + strings.Join(files, ", ")
	}
	m.fail(ctx, task, message)
	return false, message, nil
}

func (m *MergeService) handleConflict(ctx context.Context, task *models.Task, res gitutil.CommandResult) (bool, string, error) {
	var message string
	if gitutil.IsConflict(res) {
		files := gitutil.ParseConflictFiles(res)
		if len(files) > 0 {
			message = "Merge conflicts in: " + strings.Join(files, ", ") + ". Resolve conflicts and retry merge from REVIEW."
		} else {
			message = "Merge conflicts detected. Check git status in worktree and retry."
		}
	} else {
		message = res.Stderr
		if message == "" {
			message = "unknown merge failure"
		}
	}
	if len(message) > maxStoredErrorLen {
		message = message[:maxStoredErrorLen]
	}
	m.fail(ctx, task, message)
	m.tasks.AppendEvent(ctx, task.ID, "merge", "Merge conflict: "+message)
	return false, message, nil
}

func (m *MergeService) fail(ctx context.Context, task *models.Task, message string) {
	task.MergeFailed = true
	task.MergeError = &message
	task.MergeReadiness = models.MergeReadinessBlocked
	m.repos.Tasks.Update(ctx, task)
	m.bus.Publish(eventbus.TaskChanged{TaskID: task.ID})
	m.tasks.AppendEvent(ctx, task.ID, "policy", message)
}

// RebaseForReview is review.rebase's manual counterpart to the merge
// flow's preemptive rebase: on conflict it returns the task to
// IN_PROGRESS, aborts, and annotates the description instead of blocking
// in REVIEW.
func (m *MergeService) RebaseForReview(ctx context.Context, task *models.Task) (bool, error) {
	ctx, span := m.tracer.StartGitSpan(ctx, "rebase_for_review")
	defer span.End()

	clean, err := m.rebaseForReview(ctx, task)
	m.tracer.RecordMerge(ctx, "rebase", clean && err == nil)
	return clean, err
}

func (m *MergeService) rebaseForReview(ctx context.Context, task *models.Task) (bool, error) {
	ws, err := m.workspaces.GetForTask(ctx, task.ID)
	if err != nil {
		return false, fmt.Errorf("get workspace: %w", err)
	}
	repoLinks, err := m.repos.Workspaces.ListRepos(ctx, ws.ID)
	if err != nil {
		return false, fmt.Errorf("list workspace repos: %w", err)
	}

	base := m.cfg.General.DefaultBaseBranch
	if task.BaseBranch != nil && *task.BaseBranch != "" {
		base = *task.BaseBranch
	}

	for _, link := range repoLinks {
		repo, err := m.repos.Repos.Get(ctx, link.RepoID)
		if err != nil {
			return false, fmt.Errorf("get repo: %w", err)
		}
		adapter := gitutil.New(repo.Path)
		res, err := adapter.RebaseOntoBase(ctx, link.Path, base)
		if err != nil || !res.Succeeded() {
			adapter.AbortRebase(ctx, link.Path)
			task.Status = models.TaskStatusInProgress
			task.Description = appendNote(task.Description, "Rebase conflict during review.rebase; resolve manually and retry.")
			m.repos.Tasks.Update(ctx, task)
			m.bus.Publish(eventbus.TaskChanged{TaskID: task.ID, CurrentStatus: string(models.TaskStatusInProgress)})
			if task.TaskType == models.TaskTypeAuto {
				m.automation.ResetIterations(task.ID)
			}
			return false, nil
		}
	}
	return true, nil
}
