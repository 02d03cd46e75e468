// Package jobs implements the asynchronous job subsystem: the state
// machine QUEUED → RUNNING → {SUCCEEDED, FAILED, CANCELLED}, its
// append-only event log, and the submit/get/wait/events/cancel operations
//.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/eventbus"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/kagan-sh/kagan-sub004/internal/tracing"
	"github.com/oklog/ulid/v2"
)

// ErrJobNotFound is returned by Get/Wait/Events/Cancel for an unknown job_id.
var ErrJobNotFound = errors.New("job not found")

// Handler executes the work behind one job action. It runs on its own
// goroutine once the job transitions to RUNNING; returning an error moves
// the job to FAILED with that error's message, returning nil moves it to
// SUCCEEDED. A handler observing ctx cancellation should stop promptly and
// return ctx.Err() — cancellation is cooperative.
type Handler func(ctx context.Context, job *models.Job, params map[string]interface{}) (result interface{}, err error)

// quiesceWindow bounds how long Cancel waits for a RUNNING job's handler to
// observe cancellation before reporting STOP_PENDING.
const quiesceWindow = 5 * time.Second

type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is the job subsystem's runtime: it owns the state machine,
// dispatches submitted jobs to registered handlers, and publishes
// JobUpdated events for tasks.wait/jobs.wait style long-polls.
type Manager struct {
	store  Store
	bus    *eventbus.Bus
	tracer *tracing.Service

	mu       sync.Mutex
	handlers map[models.JobAction]Handler
	running  map[string]*runningJob
}

// NewManager builds a job manager backed by store, publishing transitions
// onto bus and recording completions against tracer.
func NewManager(store Store, bus *eventbus.Bus, tracer *tracing.Service) *Manager {
	return &Manager{
		store:    store,
		bus:      bus,
		tracer:   tracer,
		handlers: make(map[models.JobAction]Handler),
		running:  make(map[string]*runningJob),
	}
}

// RegisterHandler binds the executor for a job action. Call during core
// startup before any job of that action can be submitted.
func (m *Manager) RegisterHandler(action models.JobAction, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[action] = handler
}

// Submit creates a QUEUED job and hands it to the registered handler for
// its action on a new goroutine, returning immediately.
func (m *Manager) Submit(ctx context.Context, taskID string, action models.JobAction, params map[string]interface{}) (*models.Job, error) {
	m.mu.Lock()
	handler, ok := m.handlers[action]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for job action %q", action)
	}

	now := time.Now().UTC()
	job := &models.Job{
		JobID:     ulid.Make().String(),
		TaskID:    taskID,
		Action:    action,
		Status:    models.JobStatusQueued,
		Code:      "QUEUED",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := m.appendEvent(job, "QUEUED", "job queued", nil); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.mu.Lock()
	m.running[job.JobID] = &runningJob{cancel: cancel, done: done}
	m.mu.Unlock()

	snapshot := *job
	go m.run(runCtx, done, job, handler, params)

	return &snapshot, nil
}

func (m *Manager) run(ctx context.Context, done chan struct{}, job *models.Job, handler Handler, params map[string]interface{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		delete(m.running, job.JobID)
		m.mu.Unlock()
	}()

	if err := m.transition(job, models.JobStatusRunning, "RUNNING", "job started", nil); err != nil {
		return
	}

	result, err := handler(ctx, job, params)
	if errors.Is(ctx.Err(), context.Canceled) {
		_ = m.transition(job, models.JobStatusCancelled, "CANCELLED", "job cancelled", nil)
		m.tracer.RecordJob(context.Background(), string(job.Action), false)
		return
	}
	if err != nil {
		_ = m.transition(job, models.JobStatusFailed, "JOB_FAILED", err.Error(), nil)
		m.tracer.RecordJob(context.Background(), string(job.Action), false)
		return
	}

	var payload json.RawMessage
	if result != nil {
		if raw, mErr := json.Marshal(result); mErr == nil {
			payload = raw
		}
	}
	_ = m.transitionWithResult(job, models.JobStatusSucceeded, "JOB_SUCCEEDED", "job completed", payload)
	m.tracer.RecordJob(context.Background(), string(job.Action), true)
}

func (m *Manager) transition(job *models.Job, status models.JobStatus, code, message string, payload json.RawMessage) error {
	return m.transitionWithResult(job, status, code, message, payload)
}

func (m *Manager) transitionWithResult(job *models.Job, status models.JobStatus, code, message string, payload json.RawMessage) error {
	job.Status = status
	job.Code = code
	job.Message = message
	job.UpdatedAt = time.Now().UTC()
	if status == models.JobStatusSucceeded && payload != nil {
		job.Result = payload
	}
	if err := m.store.UpdateJob(job); err != nil {
		return err
	}
	if err := m.appendEvent(job, code, message, payload); err != nil {
		return err
	}
	m.bus.Publish(eventbus.JobUpdated{JobID: job.JobID, TaskID: job.TaskID, Status: string(status)})
	return nil
}

func (m *Manager) appendEvent(job *models.Job, code, message string, payload json.RawMessage) error {
	return m.store.AppendJobEvent(&models.JobEvent{
		JobID:     job.JobID,
		Status:    job.Status,
		Code:      code,
		Message:   message,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

// Get returns the current job record.
func (m *Manager) Get(jobID string) (*models.Job, error) {
	job, err := m.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Wait blocks until job reaches a terminal status or timeout elapses.
// Exceeding the timeout while the job is still non-terminal is not itself
// an error: the returned job is non-terminal and timedOut is true,
// mirroring jobs.wait's documented non-error timeout response.
func (m *Manager) Wait(ctx context.Context, jobID string, timeout time.Duration) (job *models.Job, timedOut bool, err error) {
	job, err = m.Get(jobID)
	if err != nil {
		return nil, false, err
	}
	if job.Status.IsTerminal() {
		return job, false, nil
	}

	sub := m.bus.Subscribe("job.updated", func(e eventbus.Event) bool {
		updated, ok := e.(eventbus.JobUpdated)
		return ok && updated.JobID == jobID
	})
	defer sub.Unsubscribe()

	// Re-check after subscribing to close the race where the job finished
	// between Get and Subscribe.
	job, err = m.Get(jobID)
	if err != nil {
		return nil, false, err
	}
	if job.Status.IsTerminal() {
		return job, false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-sub.C():
			job, err = m.Get(jobID)
			if err != nil {
				return nil, false, err
			}
			if job.Status.IsTerminal() {
				return job, false, nil
			}
		case <-timer.C:
			job, err = m.Get(jobID)
			if err != nil {
				return nil, false, err
			}
			return job, true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Events returns a stable, paginated slice of a job's event log.
func (m *Manager) Events(jobID string, limit, offset int) (events []models.JobEvent, returned, total int, hasMore bool, nextOffset int, err error) {
	if limit <= 0 {
		limit = 50
	}
	events, total, err = m.store.ListJobEvents(jobID, limit, offset)
	if err != nil {
		return nil, 0, 0, false, 0, err
	}
	returned = len(events)
	hasMore = offset+returned < total
	nextOffset = offset + returned
	return events, returned, total, hasMore, nextOffset, nil
}

// Cancel transitions a QUEUED job straight to CANCELLED, or signals
// cooperative cancellation to a RUNNING job's handler and waits up to
// quiesceWindow for it to acknowledge. If the handler hasn't stopped by
// then, the job remains RUNNING and the job returned by this call carries
// Code STOP_PENDING; the stored record is not updated, so a later Get
// still reports the RUNNING code.
func (m *Manager) Cancel(jobID string) (*models.Job, error) {
	job, err := m.Get(jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case models.JobStatusQueued:
		if err := m.transitionWithResult(job, models.JobStatusCancelled, "CANCELLED", "job cancelled before start", nil); err != nil {
			return nil, err
		}
		return job, nil
	case models.JobStatusRunning:
		m.mu.Lock()
		rj, ok := m.running[jobID]
		m.mu.Unlock()
		if !ok {
			return job, nil
		}
		rj.cancel()
		select {
		case <-rj.done:
			return m.Get(jobID)
		case <-time.After(quiesceWindow):
			job.Code = "STOP_PENDING"
			return job, nil
		}
	default:
		// FAILED/SUCCEEDED/CANCELLED jobs ignore cancel requests.
		return job, nil
	}
}
