// Package datasetmap implements the per-shard key -> entry store shared by
// the primary (QFrame) cache tier and the L2 (opaque bytes) tier: a
// byte-accounted LRU with optional TTL eviction, reporting the age at which
// each evicted entry left the cache.
package datasetmap

import (
	"container/list"
	"errors"
	"time"
)

// ErrCapacityExceeded is returned by EnsureFree when the requested byte
// count can never fit, even with the map fully empty.
var ErrCapacityExceeded = errors.New("datasetmap: capacity exceeded")

// Sized is anything that knows its own resident byte size. QFrame and the
// L2 byte blob both satisfy it.
type Sized interface {
	ByteSize() int64
}

type entry struct {
	key            string
	value          Sized
	creationTime   time.Time
	lastAccessTime time.Time
	accessCount    int64
	sizeBytes      int64
}

// Map is the size- and age-bounded LRU store. It is not safe for concurrent
// use by multiple goroutines; the cache shard that owns one serializes all
// access through its command loop, per the single-threaded-per-shard
// concurrency model.
type Map struct {
	maxSize int64
	maxAge  time.Duration // 0 means no expiry

	index map[string]*list.Element // value *entry
	order *list.List               // front = most recently used
	size  int64

	now func() time.Time
}

// New creates an empty Map with the given byte capacity and TTL (0 = no
// expiry).
func New(maxSize int64, maxAge time.Duration) *Map {
	return &Map{
		maxSize: maxSize,
		maxAge:  maxAge,
		index:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Size returns the current total resident bytes (sum of entry sizes).
func (m *Map) Size() int64 { return m.size }

// MaxSize returns the configured byte capacity.
func (m *Map) MaxSize() int64 { return m.maxSize }

// Len returns the number of resident entries.
func (m *Map) Len() int { return len(m.index) }

// Contains reports whether key is present, without touching LRU order or
// checking TTL expiry.
func (m *Map) Contains(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Get returns the value for key, bumping it to most-recently-used and
// incrementing its access count. The second return is false if the key is
// absent.
func (m *Map) Get(key string) (Sized, bool) {
	el, ok := m.index[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	e.lastAccessTime = m.now()
	e.accessCount++
	m.order.MoveToFront(el)
	return e.value, true
}

// Put inserts or replaces the value for key, adjusting the running size
// total by the delta between the new and any previous entry's size. It does
// not evict; callers must call EnsureFree first to guarantee capacity.
func (m *Map) Put(key string, value Sized) {
	now := m.now()
	newSize := value.ByteSize()

	if el, ok := m.index[key]; ok {
		e := el.Value.(*entry)
		m.size += newSize - e.sizeBytes
		e.value = value
		e.sizeBytes = newSize
		e.creationTime = now
		e.lastAccessTime = now
		e.accessCount = 0
		m.order.MoveToFront(el)
		return
	}

	e := &entry{
		key:            key,
		value:          value,
		creationTime:   now,
		lastAccessTime: now,
		sizeBytes:      newSize,
	}
	el := m.order.PushFront(e)
	m.index[key] = el
	m.size += newSize
}

// Delete removes key if present. It is idempotent.
func (m *Map) Delete(key string) {
	el, ok := m.index[key]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	m.size -= e.sizeBytes
	m.order.Remove(el)
	delete(m.index, key)
}

// EvictIfTooOld deletes key and returns true if maxAge is set and the
// entry's age exceeds it.
func (m *Map) EvictIfTooOld(key string) bool {
	el, ok := m.index[key]
	if !ok {
		return false
	}
	e := el.Value.(*entry)
	if m.maxAge > 0 && m.now().Sub(e.creationTime) > m.maxAge {
		m.Delete(key)
		return true
	}
	return false
}

// EnsureFree guarantees maxSize-size >= nBytes on return, evicting
// least-recently-used entries (the tail of the LRU list) as needed. It
// returns the residency duration (now - creationTime) of each evicted entry,
// in eviction order (an unspecified but deterministic order within a
// process). Returns ErrCapacityExceeded if nBytes alone can never fit.
func (m *Map) EnsureFree(nBytes int64) ([]time.Duration, error) {
	if nBytes > m.maxSize {
		return nil, ErrCapacityExceeded
	}

	if m.maxSize-m.size >= nBytes {
		return nil, nil
	}

	var durations []time.Duration
	now := m.now()
	for m.maxSize-m.size < nBytes {
		tail := m.order.Back()
		if tail == nil {
			break
		}
		e := tail.Value.(*entry)
		durations = append(durations, now.Sub(e.creationTime))
		m.Delete(e.key)
	}
	return durations, nil
}

// Reset empties the map.
func (m *Map) Reset() {
	m.index = make(map[string]*list.Element)
	m.order = list.New()
	m.size = 0
}
