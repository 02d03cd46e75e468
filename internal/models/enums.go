package models

// TaskStatus is the Kanban-style lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusBacklog    TaskStatus = "BACKLOG"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusReview     TaskStatus = "REVIEW"
	TaskStatusDone       TaskStatus = "DONE"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusBacklog, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	}
	return false
}

// Priority is the operator-assigned importance of a Task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// TaskType selects whether a task runs unattended (AUTO) or with a human
// paired in a terminal/editor session (PAIR).
type TaskType string

const (
	TaskTypeAuto TaskType = "AUTO"
	TaskTypePair TaskType = "PAIR"
)

// TerminalBackend is the PAIR session launcher kind.
type TerminalBackend string

const (
	TerminalBackendTmux   TerminalBackend = "tmux"
	TerminalBackendVSCode TerminalBackend = "vscode"
	TerminalBackendCursor TerminalBackend = "cursor"
)

// ResolvePairBackend resolves a PAIR terminal backend from a task-level
// override, falling back to the configured default, falling back to tmux.
func ResolvePairBackend(taskBackend *TerminalBackend, configDefault string) TerminalBackend {
	if taskBackend != nil && *taskBackend != "" {
		return *taskBackend
	}
	switch TerminalBackend(configDefault) {
	case TerminalBackendTmux, TerminalBackendVSCode, TerminalBackendCursor:
		return TerminalBackend(configDefault)
	default:
		return TerminalBackendTmux
	}
}

// MergeReadiness summarizes whether a task's workspace can be merged.
type MergeReadiness string

const (
	MergeReadinessReady   MergeReadiness = "READY"
	MergeReadinessRisk    MergeReadiness = "RISK"
	MergeReadinessBlocked MergeReadiness = "BLOCKED"
)

// WorkspaceStatus is the lifecycle state of a workspace/worktree pair.
type WorkspaceStatus string

const (
	WorkspaceStatusActive WorkspaceStatus = "ACTIVE"
	WorkspaceStatusClosed WorkspaceStatus = "CLOSED"
)

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAgent  ActorType = "agent"
	ActorTypeSystem ActorType = "system"
)

// JobStatus is the async job state machine.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether the job status will never change again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobAction names the operation a job performs.
type JobAction string

const (
	JobActionAgentStart  JobAction = "agent_start"
	JobActionStopAgent   JobAction = "stop_agent"
	JobActionReviewStart JobAction = "review_start"
	JobActionMergeTask   JobAction = "merge_task"
	JobActionRebaseTask  JobAction = "rebase_task"
)
