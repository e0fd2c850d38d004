package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/esgcompare/internal/document"
	"github.com/dgallion1/esgcompare/internal/metric"
)

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob(nil, nil)
	if job.Status != StatusQueued {
		t.Fatalf("expected new job to be queued, got %q", job.Status)
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusResolving, "resolving"},
		{StatusReconciling, "reconciling"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_IDsAreUnique(t *testing.T) {
	a, b := NewJob(nil, nil), NewJob(nil, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty IDs, got %q and %q", a.ID, b.ID)
	}
}

func TestJob_RecordDocument(t *testing.T) {
	job := NewJob(make([]document.Document, 3), nil)
	job.RecordDocument(DocumentResult{Name: "a.pdf", Status: DocOK, CacheHit: true})
	job.RecordDocument(DocumentResult{Name: "b.pdf", Status: DocOK})
	job.RecordDocument(DocumentResult{Name: "c.pdf", Status: DocFailed, Reason: "quota_exceeded"})

	snap := job.Snapshot()
	if snap.Progress.Documents != 3 || snap.Progress.Resolved != 3 {
		t.Errorf("expected 3/3 resolved, got %d/%d", snap.Progress.Resolved, snap.Progress.Documents)
	}
	if snap.Progress.CacheHits != 1 {
		t.Errorf("expected 1 cache hit, got %d", snap.Progress.CacheHits)
	}
	if snap.Progress.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", snap.Progress.Failed)
	}
	if len(snap.Progress.Errors) != 1 || snap.Progress.Errors[0] != "c.pdf: quota_exceeded" {
		t.Errorf("unexpected errors %v", snap.Progress.Errors)
	}
}

func TestJob_FinishStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []DocStatus
		want     JobStatus
	}{
		{"all ok", []DocStatus{DocOK, DocOK}, StatusCompleted},
		{"some failed", []DocStatus{DocOK, DocFailed}, StatusPartial},
		{"all failed", []DocStatus{DocFailed, DocFailed}, StatusFailed},
		{"no documents", nil, StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &Result{}
			for _, s := range tt.statuses {
				res.Documents = append(res.Documents, DocumentResult{Status: s})
			}
			job := NewJob(nil, nil)
			job.Finish(res)
			if job.Status != tt.want {
				t.Errorf("expected %q, got %q", tt.want, job.Status)
			}
			if job.Result() != res {
				t.Error("expected result to be stored")
			}
			if job.Cancel() {
				t.Error("finished job must not report cancellation")
			}
		})
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("alpha.pdf: parse failed")
	job.AddError("beta.pdf: parse failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "alpha.pdf: parse failed" {
		t.Errorf("expected first error %q, got %q", "alpha.pdf: parse failed", snap.Progress.Errors[0])
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job, got %d", store.Len())
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func waitDone(t *testing.T, job *Job) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := job.Snapshot(); snap.Status.Done() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.ID)
	return JobSnapshot{}
}

func TestOrchestrator_RunsJobs(t *testing.T) {
	client := newFake(byKeyword(map[string][]metric.RawRecord{
		"alpha": {raw("Scope 1 emissions", 10.0, "tCO2e")},
		"beta":  {raw("Scope 1 emissions", 12.0, "tCO2e")},
	}))
	o := NewOrchestrator(newPipeline(client, nil, 2), 1, 4, time.Hour, discard)
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob([]document.Document{mkDoc("alpha.pdf", "alpha"), mkDoc("beta.pdf", "beta")}, []string{"alpha.pdf", "beta.pdf"})
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.GetJob(job.ID) != job {
		t.Fatal("expected job to be registered")
	}

	snap := waitDone(t, job)
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Rows != 1 {
		t.Errorf("expected 1 row, got %d", snap.Rows)
	}
	if snap.Progress.Resolved != 2 {
		t.Errorf("expected 2 resolved, got %d", snap.Progress.Resolved)
	}
	if job.Documents() != nil {
		t.Error("expected parsed documents to be released")
	}
}

func TestOrchestrator_CancelQueuedJob(t *testing.T) {
	client := newFake(byKeyword(nil))
	o := NewOrchestrator(newPipeline(client, nil, 1), 1, 4, time.Hour, discard)

	job := NewJob([]document.Document{mkDoc("alpha.pdf", "alpha")}, nil)
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !o.CancelJob(job.ID) {
		t.Fatal("expected queued job to be cancellable")
	}
	if o.CancelJob("missing") {
		t.Error("expected unknown job not to be cancellable")
	}

	o.Start(context.Background())
	defer o.Stop()

	snap := waitDone(t, job)
	if snap.Status != StatusFailed {
		t.Errorf("expected failed, got %q", snap.Status)
	}
	if client.Calls() != 0 {
		t.Errorf("expected no extraction calls, got %d", client.Calls())
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	o := NewOrchestrator(newPipeline(newFake(byKeyword(nil)), nil, 1), 1, 1, time.Hour, discard)
	// Not started: nothing drains the queue.
	if err := o.Submit(NewJob(nil, nil)); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	job := NewJob(nil, nil)
	if err := o.Submit(job); err == nil {
		t.Fatal("expected queue full error")
	}
	if job.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job to be failed")
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	o := NewOrchestrator(newPipeline(newFake(byKeyword(nil)), nil, 1), 1, 1, time.Hour, discard)
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	job := NewJob(nil, nil)
	if err := o.Submit(job); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if job.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job to be failed")
	}
	if o.GetJob(job.ID) != nil {
		t.Errorf("expected rejected job not to be registered")
	}
}
