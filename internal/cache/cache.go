// Package cache implements the sharded cache front-end described in
// spec.md §4.6: it routes dataset keys to a shard via a consistent-hash
// ring, falls back to the L2 tier on a primary miss, and merges statistics
// across every shard and the L2 tier. This is the component a caller
// (internal/httpapi) actually talks to — it never sees individual shards.
package cache

import (
	"fmt"
	"time"

	"github.com/tobgu/qcache-go/internal/apperr"
	"github.com/tobgu/qcache-go/internal/l2"
	"github.com/tobgu/qcache-go/internal/qframe"
	"github.com/tobgu/qcache-go/internal/ring"
	"github.com/tobgu/qcache-go/internal/shard"
)

// Config configures a new Cache.
type Config struct {
	ShardCount      int
	ShardSize       int64
	ShardMaxAge     time.Duration
	L2Size          int64
	L2MaxAge        time.Duration
	StatisticsBufferSize int
}

// Cache is the sharded front-end. Its shards and L2 tier each run their own
// goroutine; Cache itself holds no mutable state besides the (immutable
// after construction) ring and handle slices, so its methods are safe to
// call concurrently from multiple HTTP handler goroutines.
type Cache struct {
	ring   *ring.Ring
	shards []*shard.Shard
	l2     l2.Tier
}

// New builds a Cache per cfg. If cfg.L2Size <= 0, the L2 tier is a no-op
// (spec.md §4.5's "enabled iff l2_size > 0").
func New(cfg Config) (*Cache, error) {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 1
	}

	shards := make([]*shard.Shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = shard.New(cfg.ShardSize, cfg.ShardMaxAge, cfg.StatisticsBufferSize)
	}

	var tier l2.Tier
	if cfg.L2Size > 0 {
		store, err := l2.New(cfg.L2Size, cfg.L2MaxAge)
		if err != nil {
			return nil, fmt.Errorf("cache: building l2 store: %w", err)
		}
		tier = store
	} else {
		tier = l2.NopStore{}
	}

	return &Cache{
		ring:   ring.New(cfg.ShardCount),
		shards: shards,
		l2:     tier,
	}, nil
}

func (c *Cache) shardFor(key string) *shard.Shard {
	return c.shards[c.ring.Shard(key)]
}

// Query runs q against the dataset at key. On a primary-shard miss it
// probes L2; an L2 hit is decoded, pushed back into the owning shard, and
// the query retried once so a future query hits the warm primary tier
// directly, per spec.md §4.6.
func (c *Cache) Query(key string, q map[string]any, standIns []qframe.StandIn, hints map[string]string, accept string) (shard.QueryResult, map[string]any, error) {
	sh := c.shardFor(key)

	res, stats, err := sh.Query(key, q, standIns)
	if err == nil {
		return res, stats, nil
	}
	if err != apperr.NotFound {
		return res, stats, err
	}

	raw, ok := c.l2.Get(key)
	if !ok {
		return shard.QueryResult{}, stats, apperr.NotFound
	}

	frame, decodeErr := decodeFrame(raw, accept, hints)
	if decodeErr != nil {
		return shard.QueryResult{}, stats, apperr.NotFound
	}
	if _, err := sh.Insert(key, frame); err != nil {
		return shard.QueryResult{}, stats, apperr.NotFound
	}

	res, retryStats, err := sh.Query(key, q, standIns)
	mergeInto(stats, retryStats)
	mergeInto(stats, c.l2.Statistics())
	return res, stats, err
}

// Insert decodes raw (CSV or JSON, per contentType) into a QFrame, applies
// stand-ins, and stores it in both the owning shard and the L2 tier, per
// spec.md §4.6. L2 storage happens after the shard insert succeeds; L2
// failures never fail the overall insert (L2 is an optimization, not a
// durability guarantee).
func (c *Cache) Insert(key string, raw []byte, contentType string, hints map[string]string, standIns []qframe.StandIn) (map[string]any, error) {
	frame, err := decodeFrame(raw, contentType, hints)
	if err != nil {
		return nil, err
	}
	frame = applyStandInsIfNeeded(frame, standIns)

	sh := c.shardFor(key)
	stats, err := sh.Insert(key, frame)
	if err != nil {
		return stats, err
	}

	c.l2.Insert(key, raw)
	mergeInto(stats, c.l2.Statistics())
	return stats, nil
}

// Delete removes key from both the owning shard and L2. Idempotent.
func (c *Cache) Delete(key string) map[string]any {
	sh := c.shardFor(key)
	stats := sh.Delete(key)
	c.l2.Delete(key)
	mergeInto(stats, c.l2.Statistics())
	return stats
}

// Statistics fans out to every shard and the L2 tier and merges the
// result: counters sum, buffers concatenate, statistics_duration and
// statistics_buffer_size are taken from the first source that reports
// them (spec.md §4.6's merge rule — those two fields are not meaningfully
// summable across shards).
func (c *Cache) Statistics() map[string]any {
	merged := map[string]any{}
	for _, sh := range c.shards {
		mergeInto(merged, sh.Statistics())
	}
	mergeInto(merged, c.l2.Statistics())
	return merged
}

// Status reports "OK" unless any shard reports non-OK, in which case the
// first non-OK status wins. The L2 tier is not consulted.
func (c *Cache) Status() string {
	for _, sh := range c.shards {
		if st := sh.Status(); st != "OK" {
			return st
		}
	}
	return "OK"
}

// Reset empties every shard and the L2 tier.
func (c *Cache) Reset() {
	for _, sh := range c.shards {
		sh.Reset()
	}
	c.l2.Reset()
}

// Stop terminates every shard goroutine. The Cache must not be used
// afterwards.
func (c *Cache) Stop() {
	for _, sh := range c.shards {
		sh.Stop()
	}
}

func decodeFrame(raw []byte, contentType string, hints map[string]string) (*qframe.Frame, error) {
	switch contentType {
	case "text/csv", "":
		return qframe.FromCSV(raw, hints, nil)
	case "application/json":
		return qframe.FromJSON(raw, hints, nil)
	default:
		return nil, apperr.UnsupportedMedia
	}
}

func applyStandInsIfNeeded(f *qframe.Frame, standIns []qframe.StandIn) *qframe.Frame {
	if len(standIns) == 0 {
		return f
	}
	res, err := f.Query(map[string]any{}, standIns)
	if err != nil {
		return f
	}
	return res.Frame
}

// mergeInto folds src's statistics into dst per the merge rules described
// on Statistics above.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if k == "statistics_duration" || k == "statistics_buffer_size" || k == "shard_execution_duration" {
			if _, ok := dst[k]; !ok {
				dst[k] = v
			}
			continue
		}
		switch val := v.(type) {
		case int64:
			if existing, ok := dst[k].(int64); ok {
				dst[k] = existing + val
			} else {
				dst[k] = val
			}
		case []float64:
			if existing, ok := dst[k].([]float64); ok {
				dst[k] = append(existing, val...)
			} else {
				dst[k] = append([]float64(nil), val...)
			}
		default:
			if _, ok := dst[k]; !ok {
				dst[k] = v
			}
		}
	}
}
