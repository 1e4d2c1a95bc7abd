package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// RebuildJob is an async rebuild of the roster from the dataset directory.
type RebuildJob struct {
	EventBroadcaster

	ID          string
	DatasetDir  string
	Status      JobStatus
	Total       int
	Processed   int
	CurrentFile string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *RebuildResult
}

// RebuildResult summarizes a finished rebuild.
type RebuildResult struct {
	Total   int      `json:"total"`
	Added   int      `json:"added"`
	Skipped []string `json:"skipped"`
}

// RebuildJobView is the JSON form of a RebuildJob.
type RebuildJobView struct {
	ID          string         `json:"id"`
	DatasetDir  string         `json:"dataset_dir"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	CurrentFile string         `json:"current_file,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      *RebuildResult `json:"result,omitempty"`
}

// Snapshot returns a consistent copy of the job state.
func (j *RebuildJob) Snapshot() RebuildJobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v := RebuildJobView{
		ID:          j.ID,
		DatasetDir:  j.DatasetDir,
		Status:      j.Status,
		Total:       j.Total,
		Processed:   j.Processed,
		CurrentFile: j.CurrentFile,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
	if j.Total > 0 {
		v.Progress = j.Processed * 100 / j.Total
	}
	return v
}

// GetStatus returns the current job status.
func (j *RebuildJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// setStatus moves the job to status and stamps terminal states. A finished
// job keeps its status, and setStatus then reports false.
func (j *RebuildJob) setStatus(status JobStatus) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return false
	}
	j.Status = status
	if status.Terminal() {
		now := time.Now()
		j.CompletedAt = &now
	}
	return true
}

// Cancel stops a pending or running job. It reports false when the job had
// already finished.
func (j *RebuildJob) Cancel() bool {
	if !j.setStatus(JobStatusCancelled) {
		return false
	}
	j.EventBroadcaster.Cancel()
	return true
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// JobManager manages async rebuild jobs.
type JobManager struct {
	jobs map[string]*RebuildJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*RebuildJob),
	}
}

// StartExclusive registers a pending rebuild job unless another job is still
// pending or running, in which case that job is returned as active and nothing
// is registered. Finished jobs past retention are dropped.
func (m *JobManager) StartExclusive(id, datasetDir string, cancel context.CancelFunc) (job, active *RebuildJob) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.jobs {
		if !existing.GetStatus().Terminal() {
			return nil, existing
		}
	}

	job = &RebuildJob{
		ID:         id,
		DatasetDir: datasetDir,
		Status:     JobStatusPending,
		StartedAt:  time.Now(),
	}
	job.cancel = cancel
	m.pruneLocked(time.Now())
	m.jobs[id] = job
	return job, nil
}

func (m *JobManager) pruneLocked(now time.Time) {
	for id, job := range m.jobs {
		v := job.Snapshot()
		if v.CompletedAt != nil && now.Sub(*v.CompletedAt) > constants.JobRetention {
			delete(m.jobs, id)
		}
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *RebuildJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*RebuildJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*RebuildJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}
