package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/worker"
)

// JobStatus is the lifecycle state of an async regroup job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a final state. Event streams
// close once a job reaches one.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// RegroupJobOptions mirror the start request into the job record.
type RegroupJobOptions struct {
	DryRun      bool `json:"dry_run"`
	Concurrency int  `json:"concurrency"`
}

// JobEvent is one progress message fanned out to SSE listeners.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// RegroupJob is the one async job the API runs. It carries its own listener
// set: progress events fan out to every subscribed SSE stream, and slow
// listeners miss events instead of blocking the run.
type RegroupJob struct {
	ID                 string                `json:"id"`
	Status             JobStatus             `json:"status"`
	Progress           int                   `json:"progress"`
	TotalSightings     int                   `json:"total_sightings"`
	ProcessedSightings int                   `json:"processed_sightings"`
	Error              string                `json:"error,omitempty"`
	StartedAt          time.Time             `json:"started_at"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
	Options            RegroupJobOptions     `json:"options"`
	Result             *worker.RegroupResult `json:"result,omitempty"`

	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// GetStatus returns the current job status under the read lock.
func (j *RegroupJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Cancel marks the job cancelled and stops the running worker.
func (j *RegroupJob) Cancel() {
	j.mu.Lock()
	j.Status = JobStatusCancelled
	cancel := j.cancel
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// AddListener subscribes a new event channel.
func (j *RegroupJob) AddListener() chan JobEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	j.listeners = append(j.listeners, ch)
	return ch
}

// RemoveListener unsubscribes and closes a channel returned by AddListener.
func (j *RegroupJob) RemoveListener(ch chan JobEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, listener := range j.listeners {
		if listener == ch {
			j.listeners = append(j.listeners[:i], j.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent delivers an event to every listener with buffer room.
func (j *RegroupJob) SendEvent(event JobEvent) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, listener := range j.listeners {
		select {
		case listener <- event:
		default:
			// Buffer full, drop rather than stall the run.
		}
	}
}

// JobManager hands out jobs by ID. Finished jobs stay queryable until the
// next run starts.
type JobManager struct {
	jobs map[string]*RegroupJob
	mu   sync.RWMutex
}

func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*RegroupJob)}
}

// CreateJob registers a new pending job under the given ID. Jobs that
// already reached a terminal state are pruned here, so the registry holds
// at most the current run plus jobs still winding down.
func (m *JobManager) CreateJob(id string, options RegroupJobOptions) *RegroupJob {
	job := &RegroupJob{
		ID:        id,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		Options:   options,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for oldID, old := range m.jobs {
		if old.GetStatus().Terminal() {
			delete(m.jobs, oldID)
		}
	}
	m.jobs[id] = job
	return job
}

// GetJob returns the job for an ID, nil when unknown.
func (m *JobManager) GetJob(id string) *RegroupJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ActiveJob returns a job that is still pending or running, nil when none.
func (m *JobManager) ActiveJob() *RegroupJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		if !job.GetStatus().Terminal() {
			return job
		}
	}
	return nil
}

// ListJobs returns all known jobs in unspecified order.
func (m *JobManager) ListJobs() []*RegroupJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*RegroupJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}
