package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/db/queries"
	"github.com/kagan-sh/kagan-sub004/internal/models"
)

// JobRepo persists models.Job and models.JobEvent rows. It implements
// jobs.Store so internal/jobs.Manager can run against the real database
// without depending on internal/db/repositories directly.
type JobRepo struct {
	q *queries.Queries
}

func NewJobRepo(conn *sql.DB) *JobRepo {
	return &JobRepo{q: queries.New(conn)}
}

func (r *JobRepo) CreateJob(job *models.Job) error {
	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	return r.q.CreateJob(context.Background(), queries.CreateJobParams{
		ID: job.JobID, TaskID: job.TaskID, Action: string(job.Action), Status: string(job.Status),
		CreatedAt: formatTime(now), UpdatedAt: formatTime(now),
	})
}

func (r *JobRepo) UpdateJob(job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	var resultJSON sql.NullString
	if len(job.Result) > 0 {
		resultJSON = sql.NullString{String: string(job.Result), Valid: true}
	}
	return r.q.UpdateJob(context.Background(), queries.UpdateJobParams{
		ID: job.JobID, Status: string(job.Status), Code: job.Code, Message: job.Message,
		ResultJSON: resultJSON, UpdatedAt: formatTime(job.UpdatedAt),
	})
}

func (r *JobRepo) GetJob(jobID string) (*models.Job, error) {
	row, err := r.q.GetJob(context.Background(), jobID)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job := &models.Job{
		JobID: row.ID, TaskID: row.TaskID, Action: models.JobAction(row.Action),
		Status: models.JobStatus(row.Status), Code: row.Code, Message: row.Message,
		CreatedAt: createdAt, UpdatedAt: updatedAt,
	}
	if row.ResultJSON.Valid {
		job.Result = []byte(row.ResultJSON.String)
	}
	return job, nil
}

func (r *JobRepo) AppendJobEvent(event *models.JobEvent) error {
	event.Timestamp = time.Now().UTC()
	var payload sql.NullString
	if len(event.Payload) > 0 {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	id, err := r.q.CreateJobEvent(context.Background(), queries.CreateJobEventParams{
		JobID: event.JobID, Status: string(event.Status), Code: event.Code, Message: event.Message,
		PayloadJSON: payload, Timestamp: formatTime(event.Timestamp),
	})
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

func (r *JobRepo) ListJobEvents(jobID string, limit, offset int) ([]models.JobEvent, int, error) {
	rows, err := r.q.ListJobEvents(context.Background(), jobID, int64(limit), int64(offset))
	if err != nil {
		return nil, 0, err
	}
	total, err := r.q.CountJobEvents(context.Background(), jobID)
	if err != nil {
		return nil, 0, err
	}

	out := make([]models.JobEvent, 0, len(rows))
	for _, row := range rows {
		ts, err := parseTime(row.Timestamp)
		if err != nil {
			return nil, 0, err
		}
		e := models.JobEvent{
			ID: row.ID, JobID: row.JobID, Status: models.JobStatus(row.Status),
			Code: row.Code, Message: row.Message, Timestamp: ts,
		}
		if row.PayloadJSON.Valid {
			e.Payload = []byte(row.PayloadJSON.String)
		}
		out = append(out, e)
	}
	return out, int(total), nil
}
