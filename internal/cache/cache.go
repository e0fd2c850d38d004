package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgallion1/esgcompare/internal/metric"
)

// ErrCacheUnavailable wraps every store or codec failure. Callers treat it as
// a miss and recompute.
var ErrCacheUnavailable = errors.New("extraction cache unavailable")

// envelopeVersion is bumped whenever metric.Set changes shape; entries with
// another version read as misses.
const envelopeVersion = 1

// Store is a byte-oriented key-value backend. Get reports ok=false for a
// missing key. Put overwrites; each Put replaces the whole value atomically.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

type envelope struct {
	Version int        `json:"version"`
	Set     metric.Set `json:"set"`
}

// Stats counts cache traffic since the cache was opened.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Writes int64 `json:"writes"`
	Errors int64 `json:"errors"`
}

// Cache maps content fingerprints to normalized metric sets.
type Cache struct {
	store  Store
	prefix string

	hits, misses, writes, errs atomic.Int64
}

// New wraps store. A non-empty prefix namespaces every key, so changing it
// invalidates earlier entries without touching them.
func New(store Store, prefix string) *Cache {
	return &Cache{store: store, prefix: prefix}
}

func (c *Cache) key(fp metric.Fingerprint) string {
	if c.prefix == "" {
		return fp.String()
	}
	return c.prefix + "-" + fp.String()
}

// Get returns the cached set for fp.
func (c *Cache) Get(ctx context.Context, fp metric.Fingerprint) (metric.Set, bool, error) {
	data, ok, err := c.store.Get(ctx, c.key(fp))
	if err != nil {
		c.errs.Add(1)
		return metric.Set{}, false, fmt.Errorf("%w: get %s: %w", ErrCacheUnavailable, fp.Short(), err)
	}
	if !ok {
		c.misses.Add(1)
		return metric.Set{}, false, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.errs.Add(1)
		return metric.Set{}, false, fmt.Errorf("%w: decode %s: %w", ErrCacheUnavailable, fp.Short(), err)
	}
	if env.Version != envelopeVersion || env.Set.Fingerprint != fp {
		c.misses.Add(1)
		return metric.Set{}, false, nil
	}
	c.hits.Add(1)
	return env.Set, true, nil
}

// Put stores set under fp, replacing any earlier entry.
func (c *Cache) Put(ctx context.Context, fp metric.Fingerprint, set metric.Set) error {
	set.Fingerprint = fp
	data, err := json.Marshal(envelope{Version: envelopeVersion, Set: set})
	if err != nil {
		c.errs.Add(1)
		return fmt.Errorf("%w: encode %s: %w", ErrCacheUnavailable, fp.Short(), err)
	}
	if err := c.store.Put(ctx, c.key(fp), data); err != nil {
		c.errs.Add(1)
		return fmt.Errorf("%w: put %s: %w", ErrCacheUnavailable, fp.Short(), err)
	}
	c.writes.Add(1)
	return nil
}

// Stats returns a snapshot of the traffic counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Writes: c.writes.Load(),
		Errors: c.errs.Load(),
	}
}

// Close flushes and releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
