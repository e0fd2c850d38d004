package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Worker processes comparison jobs one at a time.
type Worker struct {
	pipeline *Pipeline
	log      *slog.Logger
}

func NewWorker(p *Pipeline, log *slog.Logger) *Worker {
	return &Worker{pipeline: p, log: log}
}

// Process runs the pipeline for a job and records the outcome on it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID)
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	job.setCancel(cancel)

	docs := job.Documents()
	job.SetStatus(StatusResolving, "resolving")
	log.Info("job started", "documents", len(docs), "cancel_requested", job.cancelRequested())

	p := w.pipeline.WithHooks(
		job.RecordDocument,
		func() { job.SetStatus(StatusReconciling, "reconciling") },
	)
	res, err := p.Run(ctx, docs)
	if err != nil {
		log.Error("job failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "resolving")
		return
	}
	job.Finish(res)

	snap := job.Snapshot()
	log.Info("job finished",
		"status", snap.Status,
		"included", len(res.Succeeded()),
		"failed", len(res.Failed()),
		"cache_hits", snap.Progress.CacheHits,
		"rows", len(res.Table.Rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}
