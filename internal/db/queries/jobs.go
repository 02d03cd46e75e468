package queries

import (
	"context"
	"database/sql"
)

// Job is the row shape for the jobs table.
type Job struct {
	ID         string
	TaskID     string
	Action     string
	Status     string
	Code       string
	Message    string
	ResultJSON sql.NullString
	CreatedAt  string
	UpdatedAt  string
}

type CreateJobParams struct {
	ID        string
	TaskID    string
	Action    string
	Status    string
	CreatedAt string
	UpdatedAt string
}

const jobColumns = `job_id, task_id, action, status, code, message, result_json, created_at, updated_at`

const createJob = `
INSERT INTO jobs (job_id, task_id, action, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateJob(ctx context.Context, arg CreateJobParams) error {
	_, err := q.db.ExecContext(ctx, createJob, arg.ID, arg.TaskID, arg.Action, arg.Status, arg.CreatedAt, arg.UpdatedAt)
	return err
}

func scanJob(row interface{ Scan(...interface{}) error }) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.TaskID, &j.Action, &j.Status, &j.Code, &j.Message, &j.ResultJSON, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

const getJob = `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = ?`

func (q *Queries) GetJob(ctx context.Context, jobID string) (Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, getJob, jobID))
}

type UpdateJobParams struct {
	ID         string
	Status     string
	Code       string
	Message    string
	ResultJSON sql.NullString
	UpdatedAt  string
}

const updateJob = `
UPDATE jobs SET status = ?, code = ?, message = ?, result_json = ?, updated_at = ? WHERE job_id = ?
`

func (q *Queries) UpdateJob(ctx context.Context, arg UpdateJobParams) error {
	_, err := q.db.ExecContext(ctx, updateJob, arg.Status, arg.Code, arg.Message, arg.ResultJSON, arg.UpdatedAt, arg.ID)
	return err
}

// JobEvent is the row shape for the job_events table.
type JobEvent struct {
	ID          int64
	JobID       string
	Status      string
	Code        string
	Message     string
	PayloadJSON sql.NullString
	Timestamp   string
}

type CreateJobEventParams struct {
	JobID       string
	Status      string
	Code        string
	Message     string
	PayloadJSON sql.NullString
	Timestamp   string
}

const createJobEvent = `
INSERT INTO job_events (job_id, status, code, message, payload_json, timestamp) VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateJobEvent(ctx context.Context, arg CreateJobEventParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createJobEvent, arg.JobID, arg.Status, arg.Code, arg.Message, arg.PayloadJSON, arg.Timestamp)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listJobEvents = `
SELECT id, job_id, status, code, message, payload_json, timestamp
FROM job_events WHERE job_id = ? ORDER BY id ASC LIMIT ? OFFSET ?
`

func (q *Queries) ListJobEvents(ctx context.Context, jobID string, limit, offset int64) ([]JobEvent, error) {
	rows, err := q.db.QueryContext(ctx, listJobEvents, jobID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobEvent
	for rows.Next() {
		var e JobEvent
		if err := rows.Scan(&e.ID, &e.JobID, &e.Status, &e.Code, &e.Message, &e.PayloadJSON, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const countJobEvents = `SELECT COUNT(*) FROM job_events WHERE job_id = ?`

func (q *Queries) CountJobEvents(ctx context.Context, jobID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countJobEvents, jobID).Scan(&count)
	return count, err
}
