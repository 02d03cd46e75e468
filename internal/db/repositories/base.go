// Package repositories adapts the hand-written query layer in
// internal/db/queries to internal/models domain types, following the
// teacher's Repositories-aggregate pattern: one typed repo per table,
// gathered behind a single constructor so services depend on one object.
package repositories

import (
	"database/sql"

	"github.com/kagan-sh/kagan-sub004/internal/db"
)

// Repositories aggregates every table-scoped repository behind a single
// handle, constructed once at startup and threaded through the services
// layer and the dispatcher's route handlers.
type Repositories struct {
	Projects      *ProjectRepo
	Repos         *RepoRepo
	Tasks         *TaskRepo
	Workspaces    *WorkspaceRepo
	Executions    *ExecutionRepo
	Audit         *AuditRepo
	Jobs          *JobRepo

	db *db.DB
}

// New builds a Repositories bound to database's connection pool.
func New(database *db.DB) *Repositories {
	conn := database.Conn()
	return &Repositories{
		Projects:   NewProjectRepo(conn),
		Repos:      NewRepoRepo(conn),
		Tasks:      NewTaskRepo(conn),
		Workspaces: NewWorkspaceRepo(conn),
		Executions: NewExecutionRepo(conn),
		Audit:      NewAuditRepo(conn),
		Jobs:       NewJobRepo(conn),
		db:         database,
	}
}

// BeginTx starts a database transaction for callers that need to span
// several repository calls atomically (e.g. deleting a task and its
// workspace rows together).
func (r *Repositories) BeginTx() (*sql.Tx, error) {
	return r.db.Conn().Begin()
}
