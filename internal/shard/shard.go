// Package shard implements the cache shard described in spec.md §4.4: a
// single-threaded worker owning one DatasetMap of QFrames and one
// Statistics instance. Concurrency is achieved by routing different keys
// to different shards (see internal/ring and internal/cache), never by
// locking inside a shard — this is the Go reading of spec.md §9's "process
// boundaries vs goroutines" note: each Shard runs its own goroutine and
// serializes commands through a channel instead of an OS process and a
// ZeroMQ socket.
package shard

import (
	"time"

	"github.com/tobgu/qcache-go/internal/apperr"
	"github.com/tobgu/qcache-go/internal/datasetmap"
	"github.com/tobgu/qcache-go/internal/qframe"
	"github.com/tobgu/qcache-go/internal/statistics"
)

// frameEntry adapts *qframe.Frame to datasetmap.Sized.
type frameEntry struct {
	frame *qframe.Frame
}

func (e *frameEntry) ByteSize() int64 { return e.frame.ByteSize() }

// QueryResult is the payload of a successful Query call.
type QueryResult struct {
	Frame          *qframe.Frame
	UnslicedLength int
}

// Shard owns its DatasetMap and Statistics exclusively; every exported
// method submits a closure to the shard's single goroutine and blocks for
// the result, so no field here is ever touched from two goroutines at
// once.
type Shard struct {
	jobs    chan func()
	entries *datasetmap.Map
	stats   *statistics.Statistics
	nowFn   func() time.Time
	clockFn func() float64
}

// New starts a shard goroutine with the given byte budget, TTL and
// statistics buffer size.
func New(maxSize int64, maxAge time.Duration, statsBufferSize int) *Shard {
	s := &Shard{
		jobs:    make(chan func(), 64),
		nowFn:   time.Now,
		clockFn: func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
	s.entries = datasetmap.New(maxSize, maxAge)
	s.stats = statistics.New(statsBufferSize, s.clockFn)
	go s.run()
	return s
}

func (s *Shard) run() {
	for job := range s.jobs {
		job()
	}
}

// Stop terminates the shard's goroutine. No further calls may be made
// after Stop returns.
func (s *Shard) Stop() { close(s.jobs) }

func (s *Shard) call(f func() (any, error)) (any, map[string]any, error) {
	type out struct {
		payload any
		stats   map[string]any
		err     error
	}
	ch := make(chan out, 1)
	s.jobs <- func() {
		start := time.Now()
		payload, err := f()
		ch <- out{payload, map[string]any{"shard_execution_duration": time.Since(start).Seconds()}, err}
	}
	o := <-ch
	return o.payload, o.stats, o.err
}

// Query evaluates q (with stand_ins applied) against the dataset stored at
// key. A miss or TTL-expired entry returns apperr.NotFound; a malformed
// query surfaces the qframe.MalformedQueryError unchanged so the caller
// can translate it into a 400 response, per spec.md §4.3.7.
func (s *Shard) Query(key string, q map[string]any, standIns []qframe.StandIn) (QueryResult, map[string]any, error) {
	payload, stats, err := s.call(func() (any, error) {
		if !s.entries.Contains(key) {
			s.stats.Inc("miss_count", 1)
			return QueryResult{}, apperr.NotFound
		}
		if s.entries.EvictIfTooOld(key) {
			s.stats.Inc("miss_count", 1)
			s.stats.Inc("age_evict_count", 1)
			return QueryResult{}, apperr.NotFound
		}
		v, _ := s.entries.Get(key)
		entry := v.(*frameEntry)

		start := time.Now()
		res, err := entry.frame.Query(q, standIns)
		if err != nil {
			return QueryResult{}, err
		}
		s.stats.Inc("hit_count", 1)
		s.stats.Append("query_duration", time.Since(start).Seconds())
		return QueryResult{Frame: res.Frame, UnslicedLength: res.UnslicedLength}, nil
	})
	if err != nil {
		return QueryResult{}, stats, err
	}
	return payload.(QueryResult), stats, nil
}

// Insert stores frame at key, replacing any existing entry, evicting LRU
// entries as needed to stay within the byte budget.
func (s *Shard) Insert(key string, frame *qframe.Frame) (map[string]any, error) {
	_, stats, err := s.call(func() (any, error) {
		if s.entries.Contains(key) {
			s.stats.Inc("replace_count", 1)
			s.entries.Delete(key)
		}

		start := time.Now()
		durations, err := s.entries.EnsureFree(frame.ByteSize())
		if err != nil {
			return nil, apperr.CapacityExceeded
		}
		s.entries.Put(key, &frameEntry{frame: frame})

		s.stats.Inc("store_count", 1)
		s.stats.Append("store_row_counts", float64(frame.Len()))
		if len(durations) > 0 {
			s.stats.Inc("size_evict_count", int64(len(durations)))
			for _, d := range durations {
				s.stats.Append("durations_until_eviction", d.Seconds())
			}
		}
		s.stats.Append("store_durations", time.Since(start).Seconds())
		return nil, nil
	})
	return stats, err
}

// Delete removes key; idempotent.
func (s *Shard) Delete(key string) map[string]any {
	_, stats, _ := s.call(func() (any, error) {
		s.entries.Delete(key)
		return nil, nil
	})
	return stats
}

// Statistics returns a snapshot of this shard's counters/buffers plus
// dataset_count and cache_size.
func (s *Shard) Statistics() map[string]any {
	payload, _, _ := s.call(func() (any, error) {
		snap := s.stats.Snapshot()
		snap["dataset_count"] = int64(s.entries.Len())
		snap["cache_size"] = s.entries.Size()
		return snap, nil
	})
	return payload.(map[string]any)
}

// Status always reports "OK". It does not check whether the shard
// goroutine is still running (it returns "OK" after Stop as well).
func (s *Shard) Status() string { return "OK" }

// Reset empties the dataset map and statistics.
func (s *Shard) Reset() {
	s.call(func() (any, error) {
		s.entries.Reset()
		s.stats.Reset()
		return nil, nil
	})
}
