package jobs

import "github.com/kagan-sh/kagan-sub004/internal/models"

// Store persists jobs and their event logs. internal/db/repositories
// provides the SQLite-backed implementation used in production; tests use
// an in-memory fake.
type Store interface {
	CreateJob(job *models.Job) error
	UpdateJob(job *models.Job) error
	GetJob(jobID string) (*models.Job, error)
	AppendJobEvent(event *models.JobEvent) error
	ListJobEvents(jobID string, limit, offset int) (events []models.JobEvent, total int, err error)
}
