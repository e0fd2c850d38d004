package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/esgcompare/internal/document"
)

// JobStatus represents the state of a comparison job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusResolving   JobStatus = "resolving"
	StatusReconciling JobStatus = "reconciling"
	StatusCompleted   JobStatus = "completed"
	StatusPartial     JobStatus = "partial"
	StatusFailed      JobStatus = "failed"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// Job tracks one asynchronous comparison of several documents.
type Job struct {
	mu sync.Mutex

	ID string `json:"job_id"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`
	Files  []string  `json:"files"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	docs      []document.Document
	result    *Result
	errors    []string
	cancel    context.CancelFunc
	cancelled bool
}

// Progress tracks how many documents have resolved.
type Progress struct {
	Documents int      `json:"documents"`
	Resolved  int      `json:"resolved"`
	CacheHits int      `json:"cache_hits"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// NewJob creates a queued job over already-parsed documents. Files names the
// uploads the documents came from.
func NewJob(docs []document.Document, files []string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Phase:     "queued",
		Files:     files,
		Progress:  Progress{Documents: len(docs)},
		CreatedAt: now,
		UpdatedAt: now,
		docs:      docs,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.updated()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) updated() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// RecordDocument counts a resolved document.
func (j *Job) RecordDocument(dr DocumentResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Resolved++
	if dr.CacheHit {
		j.Progress.CacheHits++
	}
	if dr.Status == DocFailed {
		j.Progress.Failed++
		j.errors = append(j.errors, dr.Name+": "+dr.Reason)
		j.Progress.Errors = j.errors
	}
	j.UpdatedAt = time.Now()
}

// Finish stores the pipeline result and sets the terminal status: completed
// when every document was included, partial when some were, failed when
// none were.
func (j *Job) Finish(res *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.docs = nil
	ok, failed := len(res.Succeeded()), len(res.Failed())
	switch {
	case failed == 0:
		j.Status = StatusCompleted
	case ok > 0:
		j.Status = StatusPartial
	default:
		j.Status = StatusFailed
	}
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

// Result returns the pipeline result once the job has finished.
func (j *Job) Result() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Documents returns the parsed inputs still awaiting processing.
func (j *Job) Documents() []document.Document {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.docs
}

func (j *Job) setCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
	if j.cancelled {
		cancel()
	}
}

// Cancel stops the job issuing further extraction calls. It reports false
// when the job already finished.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Done() {
		return false
	}
	j.cancelled = true
	if j.cancel != nil {
		j.cancel()
	}
	return true
}

func (j *Job) cancelRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Files     []string  `json:"files"`
	Progress  Progress  `json:"progress"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	files := append([]string{}, j.Files...)
	snap := JobSnapshot{
		ID:     j.ID,
		Status: j.Status,
		Phase:  j.Phase,
		Files:  files,
		Progress: Progress{
			Documents: j.Progress.Documents,
			Resolved:  j.Progress.Resolved,
			CacheHits: j.Progress.CacheHits,
			Failed:    j.Progress.Failed,
			Errors:    errs,
		},
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.result != nil {
		snap.Rows = len(j.result.Table.Rows)
	}
	return snap
}
