package extract

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgallion1/esgcompare/internal/metric"
)

// Throttled paces calls to an inner client and records their latency.
type Throttled struct {
	inner   Client
	limiter *rate.Limiter
	stats   *LLMStats
}

// NewThrottled allows perMinute calls per minute with the given burst. A
// non-positive perMinute disables pacing.
func NewThrottled(inner Client, perMinute float64, burst int, stats *LLMStats) *Throttled {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	if stats == nil {
		stats = NewLLMStats(time.Hour)
	}
	return &Throttled{inner: inner, limiter: rate.NewLimiter(limit, burst), stats: stats}
}

func (t *Throttled) Model() string { return t.inner.Model() }

// Stats exposes the latency tracker.
func (t *Throttled) Stats() *LLMStats { return t.stats }

func (t *Throttled) Extract(ctx context.Context, text string, schema metric.Schema) ([]metric.RawRecord, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable(fmt.Errorf("wait for rate limit: %w", err))
	}
	start := time.Now()
	recs, err := t.inner.Extract(ctx, text, schema)
	t.stats.Record(time.Since(start).Milliseconds(), err != nil)
	return recs, err
}
