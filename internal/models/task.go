package models

import "time"

// Task is the unit of work scheduled, paired on, and merged by the core.
//
// Invariant: TaskType == TaskTypeAuto implies TerminalBackend is nil.
// Invariant: UpdatedAt monotonically increases on every mutation; it is the
// race-safe cursor consumed by tasks.wait (see internal/services/wait.go).
type Task struct {
	ID                 string          `json:"id" db:"id"`
	ProjectID          string          `json:"project_id" db:"project_id"`
	ParentID           *string         `json:"parent_id,omitempty" db:"parent_id"`
	Title              string          `json:"title" db:"title"`
	Description        string          `json:"description" db:"description"`
	Status             TaskStatus      `json:"status" db:"status"`
	Priority           Priority        `json:"priority" db:"priority"`
	TaskType           TaskType        `json:"task_type" db:"task_type"`
	TerminalBackend    *TerminalBackend `json:"terminal_backend,omitempty" db:"terminal_backend"`
	AgentBackend       *string         `json:"agent_backend,omitempty" db:"agent_backend"`
	AcceptanceCriteria []string        `json:"acceptance_criteria" db:"acceptance_criteria"`
	BaseBranch         *string         `json:"base_branch,omitempty" db:"base_branch"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
	MergeReadiness     MergeReadiness  `json:"merge_readiness" db:"merge_readiness"`
	MergeFailed        bool            `json:"merge_failed" db:"merge_failed"`
	MergeError         *string         `json:"merge_error,omitempty" db:"merge_error"`
	ChecksPassed       *bool           `json:"checks_passed,omitempty" db:"checks_passed"`
	Scratchpad         string          `json:"-" db:"scratchpad"`
}

// TaskEvent is a per-task audit trail entry, distinct from the global
// AuditEvent log.
type TaskEvent struct {
	ID        int64     `json:"id" db:"id"`
	TaskID    string    `json:"task_id" db:"task_id"`
	Kind      string    `json:"kind" db:"kind"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
