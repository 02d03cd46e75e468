package models

import "time"

// Workspace is the core's logical bundle: one branch + one worktree per
// repo, for one task. Branch naming follows the `kagan/<workspace-id>`
// convention.
type Workspace struct {
	ID         string          `json:"id" db:"id"`
	ProjectID  string          `json:"project_id" db:"project_id"`
	TaskID     *string         `json:"task_id,omitempty" db:"task_id"`
	BranchName string          `json:"branch_name" db:"branch_name"`
	Path       string          `json:"path" db:"path"`
	Status     WorkspaceStatus `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// WorkspaceRepo mirrors a per-repo worktree path inside a multi-repo
// workspace.
type WorkspaceRepo struct {
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	RepoID      string `json:"repo_id" db:"repo_id"`
	Path        string `json:"path" db:"path"`
}

// Execution is a single agent run's metadata record; its log is stored
// sidecar as JSONL under the execution's workspace.
type Execution struct {
	ID        string            `json:"id" db:"id"`
	TaskID    string            `json:"task_id" db:"task_id"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	Metadata  map[string]string `json:"metadata" db:"metadata"`
	LogPath   string            `json:"log_path" db:"log_path"`
}
