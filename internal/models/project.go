package models

import "time"

// Project groups one or more repos that a set of tasks operate against.
type Project struct {
	ID           string     `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Description  string     `json:"description" db:"description"`
	LastOpenedAt *time.Time `json:"last_opened_at,omitempty" db:"last_opened_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Repo is a git repository registered with the core.
type Repo struct {
	ID             string            `json:"id" db:"id"`
	Name           string            `json:"name" db:"name"`
	Path           string            `json:"path" db:"path"`
	DefaultBranch  string            `json:"default_branch" db:"default_branch"`
	Scripts        map[string]string `json:"scripts" db:"scripts"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// ProjectRepo is the junction between a Project and a Repo.
type ProjectRepo struct {
	ProjectID    string `json:"project_id" db:"project_id"`
	RepoID       string `json:"repo_id" db:"repo_id"`
	IsPrimary    bool   `json:"is_primary" db:"is_primary"`
	DisplayOrder int    `json:"display_order" db:"display_order"`
}
