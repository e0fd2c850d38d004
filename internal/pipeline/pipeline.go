package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dgallion1/esgcompare/internal/cache"
	"github.com/dgallion1/esgcompare/internal/chunker"
	"github.com/dgallion1/esgcompare/internal/document"
	"github.com/dgallion1/esgcompare/internal/extract"
	"github.com/dgallion1/esgcompare/internal/fingerprint"
	"github.com/dgallion1/esgcompare/internal/metric"
	"github.com/dgallion1/esgcompare/internal/normalize"
	"github.com/dgallion1/esgcompare/internal/reconcile"
)

// ErrCancelled marks documents that were not resolved because the run was
// cancelled before their extraction calls could be issued.
var ErrCancelled = errors.New("cancelled")

// DocStatus says whether a document made it into reconciliation.
type DocStatus string

const (
	DocOK     DocStatus = "ok"
	DocFailed DocStatus = "failed"
)

// DocumentResult is the outcome of resolving one input document.
type DocumentResult struct {
	Index       int                  `json:"index"`
	Name        string               `json:"name"`
	Fingerprint metric.Fingerprint   `json:"fingerprint,omitempty"`
	Status      DocStatus            `json:"status"`
	CacheHit    bool                 `json:"cache_hit"`
	Chunks      int                  `json:"chunks,omitempty"`
	Counts      map[metric.State]int `json:"counts,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Error       string               `json:"error,omitempty"`
	SameAs      string               `json:"same_as,omitempty"`
	ElapsedMs   int64                `json:"elapsed_ms"`

	Set metric.Set `json:"-"`
	Err error      `json:"-"`
}

// Result is the outcome of a pipeline run. Documents keep input order.
type Result struct {
	Documents []DocumentResult `json:"documents"`
	Table     reconcile.Table  `json:"table"`
}

// Succeeded returns the documents included in the table.
func (r *Result) Succeeded() []DocumentResult {
	var out []DocumentResult
	for _, d := range r.Documents {
		if d.Status == DocOK {
			out = append(out, d)
		}
	}
	return out
}

// Failed returns the documents excluded from the table, with their reasons.
func (r *Result) Failed() []DocumentResult {
	var out []DocumentResult
	for _, d := range r.Documents {
		if d.Status == DocFailed {
			out = append(out, d)
		}
	}
	return out
}

// Options tunes a Pipeline.
type Options struct {
	MaxConcurrent  int // Documents resolved at once.
	FuzzyThreshold float64
	Chunking       chunker.Config
	Retry          RetryPolicy
}

// Pipeline resolves documents to normalized metric sets, through the cache
// when possible, and reconciles them into a comparison table.
type Pipeline struct {
	client   extract.Client
	cache    *cache.Cache
	norm     *normalize.Normalizer
	rec      *reconcile.Reconciler
	chunking chunker.Config
	retry    RetryPolicy
	limit    int
	log      *slog.Logger
	flight   *singleflight.Group

	// OnResolved, when set, is called once per document as it resolves. It
	// may be called from several goroutines at once.
	OnResolved func(DocumentResult)
	// OnReconcile, when set, is called once every document has resolved.
	OnReconcile func()
}

// New builds a pipeline. A nil cache disables caching.
func New(client extract.Client, c *cache.Cache, schema metric.Schema, opts Options, log *slog.Logger) *Pipeline {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Pipeline{
		client:   client,
		cache:    c,
		norm:     normalize.New(schema),
		rec:      reconcile.New(opts.FuzzyThreshold),
		chunking: opts.Chunking,
		retry:    opts.Retry.withDefaults(),
		limit:    opts.MaxConcurrent,
		log:      log,
		flight:   &singleflight.Group{},
	}
}

// WithHooks returns a copy of p reporting to the given hooks. The copy
// shares the client, cache and in-flight deduplication with p.
func (p *Pipeline) WithHooks(onResolved func(DocumentResult), onReconcile func()) *Pipeline {
	cp := *p
	cp.OnResolved = onResolved
	cp.OnReconcile = onReconcile
	return &cp
}

// Schema returns the metric schema extraction is asked for.
func (p *Pipeline) Schema() metric.Schema {
	return p.norm.Schema()
}

// Run resolves every document, then reconciles the successful ones. A
// failing document never stops the others; it is reported in the result.
// The returned error is non-nil only for an unusable pipeline.
func (p *Pipeline) Run(ctx context.Context, docs []document.Document) (*Result, error) {
	if p.client == nil {
		return nil, fmt.Errorf("pipeline has no extraction client")
	}
	start := time.Now()
	res := &Result{Documents: make([]DocumentResult, len(docs))}

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i := range docs {
		g.Go(func() error {
			dr := p.Resolve(ctx, docs[i])
			dr.Index = i
			res.Documents[i] = dr
			if p.OnResolved != nil {
				p.OnResolved(dr)
			}
			return nil
		})
	}
	_ = g.Wait()

	if p.OnReconcile != nil {
		p.OnReconcile()
	}
	// Identical content is one document: later copies point at the first
	// copy's column instead of confirming its metrics.
	var included []reconcile.Document
	firstOf := make(map[metric.Fingerprint]string)
	for i, d := range res.Documents {
		if d.Status != DocOK {
			continue
		}
		if name, ok := firstOf[d.Fingerprint]; ok {
			res.Documents[i].SameAs = name
			continue
		}
		firstOf[d.Fingerprint] = d.Name
		included = append(included, reconcile.Document{Name: d.Name, Set: d.Set})
	}
	res.Table = p.rec.Reconcile(included)

	p.log.Info("pipeline complete",
		"documents", len(docs),
		"included", len(included),
		"failed", len(res.Failed()),
		"rows", len(res.Table.Rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Resolve produces the normalized set for one document: from the cache on a
// hit, otherwise by extraction and normalization followed by a cache write.
func (p *Pipeline) Resolve(ctx context.Context, doc document.Document) DocumentResult {
	start := time.Now()
	dr := DocumentResult{Name: documentName(doc)}
	finish := func(err error) DocumentResult {
		dr.ElapsedMs = time.Since(start).Milliseconds()
		if err != nil {
			dr.Status = DocFailed
			dr.Err = err
			dr.Reason = reason(err)
			dr.Error = err.Error()
			return dr
		}
		dr.Status = DocOK
		dr.Counts = dr.Set.Counts()
		return dr
	}

	if ctx.Err() != nil {
		return finish(ErrCancelled)
	}
	fp, err := fingerprint.OfDocument(&doc)
	if err != nil {
		return finish(err)
	}
	dr.Fingerprint = fp
	log := p.log.With("fingerprint", fp.Short(), "source", dr.Name)

	if set, ok := p.lookup(ctx, log, fp); ok {
		dr.CacheHit = true
		dr.Set = set
		log.Info("cache hit", "records", len(set.Records))
		return finish(nil)
	}

	// Identical content submitted twice in one run is extracted once.
	v, err, shared := p.flight.Do(string(fp), func() (any, error) {
		return p.extract(ctx, log, doc, fp)
	})
	if err != nil {
		log.Error("document failed", "error", err, "shared", shared)
		return finish(err)
	}
	out := v.(extracted)
	dr.Set = out.set
	dr.Chunks = out.chunks
	return finish(nil)
}

type extracted struct {
	set    metric.Set
	chunks int
}

func (p *Pipeline) extract(ctx context.Context, log *slog.Logger, doc document.Document, fp metric.Fingerprint) (extracted, error) {
	start := time.Now()
	chunks := chunker.Split(&doc, p.chunking)
	schema := p.norm.Schema()

	var raws []metric.RawRecord
	for _, c := range chunks {
		var got []metric.RawRecord
		err := p.retry.Do(ctx, log.With("chunk", c.Index), func(callCtx context.Context) error {
			var err error
			got, err = p.client.Extract(callCtx, c.Text, schema)
			return err
		})
		if err != nil {
			return extracted{}, fmt.Errorf("chunk %d of %d: %w", c.Index+1, len(chunks), err)
		}
		raws = append(raws, got...)
	}

	set := p.norm.Normalize(raws, fp)
	counts := set.Counts()
	log.Info("document extracted",
		"chunks", len(chunks),
		"raw_records", len(raws),
		"reported", counts[metric.Reported],
		"not_reported", counts[metric.NotReported],
		"unparsed", counts[metric.Unparsed],
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	// The write goes ahead after cancellation: the work is already paid for.
	if p.cache != nil {
		if err := p.cache.Put(context.WithoutCancel(ctx), fp, set); err != nil {
			log.Warn("cache write failed", "error", err)
		}
	}
	return extracted{set: set, chunks: len(chunks)}, nil
}

func (p *Pipeline) lookup(ctx context.Context, log *slog.Logger, fp metric.Fingerprint) (metric.Set, bool) {
	if p.cache == nil {
		return metric.Set{}, false
	}
	set, ok, err := p.cache.Get(ctx, fp)
	if err != nil {
		log.Warn("cache unavailable, recomputing", "error", err)
		return metric.Set{}, false
	}
	return set, ok
}

// Lookup returns the cached set for a fingerprint, if any.
func (p *Pipeline) Lookup(ctx context.Context, fp metric.Fingerprint) (metric.Set, bool, error) {
	if p.cache == nil {
		return metric.Set{}, false, nil
	}
	return p.cache.Get(ctx, fp)
}

func documentName(doc document.Document) string {
	switch {
	case doc.Source != "":
		return doc.Source
	case doc.Title != "":
		return doc.Title
	default:
		return "untitled"
	}
}

// reason maps a resolution error to a short machine-readable code.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, fingerprint.ErrEmptyDocument):
		return "empty_document"
	case errors.Is(err, extract.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, extract.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, extract.ErrServiceUnavailable):
		return "service_unavailable"
	default:
		return "error"
	}
}
