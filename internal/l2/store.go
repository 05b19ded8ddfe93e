// Package l2 implements the secondary cache tier: opaque, zstd-compressed
// byte blobs with the same eviction contract as the primary DatasetMap, but
// no query capability. Its only purpose is to rehydrate a primary-tier
// shard after an entry has been evicted there.
package l2

import (
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/tobgu/qcache-go/internal/datasetmap"
)

// blob is the Sized value stored in the underlying DatasetMap: the
// compressed bytes plus their decompressed length, used to size the output
// buffer when Get decompresses them.
type blob struct {
	compressed []byte
	rawSize    int64
}

func (b blob) ByteSize() int64 { return int64(len(b.compressed)) }

// Store is the second-class shard described in spec.md §4.5: same
// DatasetMap contract as the primary tier, but keyed to opaque bytes
// rather than a QFrame.
type Store struct {
	entries  *datasetmap.Map
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	hitCount int64
}

// New builds an L2 store with the given byte budget and TTL. Grounded on
// the teacher's zstd encoder/decoder pair in pkg/storage/compression.go,
// reused here to compress whole serialized datasets instead of
// timestamp/value blocks.
func New(maxSize int64, maxAge time.Duration) (*Store, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Store{
		entries: datasetmap.New(maxSize, maxAge),
		encoder: enc,
		decoder: dec,
	}, nil
}

// Insert compresses and stores raw, evicting older entries as needed to
// stay within the byte budget. Returns the per-victim residency durations,
// per the shared DatasetMap.EnsureFree contract.
func (s *Store) Insert(key string, raw []byte) ([]time.Duration, error) {
	compressed := s.encoder.EncodeAll(raw, nil)
	b := blob{compressed: compressed, rawSize: int64(len(raw))}

	durations, err := s.entries.EnsureFree(b.ByteSize())
	if err != nil {
		return nil, err
	}
	s.entries.Put(key, b)
	return durations, nil
}

// Get returns the decompressed bytes for key, or ok=false on a miss or
// expired entry.
func (s *Store) Get(key string) ([]byte, bool) {
	if s.entries.EvictIfTooOld(key) {
		return nil, false
	}
	v, ok := s.entries.Get(key)
	if !ok {
		return nil, false
	}
	b := v.(blob)
	raw, err := s.decoder.DecodeAll(b.compressed, make([]byte, 0, b.rawSize))
	if err != nil {
		return nil, false
	}
	s.hitCount++
	return raw, true
}

// Delete removes key; idempotent.
func (s *Store) Delete(key string) { s.entries.Delete(key) }

// Reset empties the store.
func (s *Store) Reset() { s.entries.Reset() }

// Statistics returns l2-prefixed counters: dataset count and resident
// byte size, per spec.md §4.5's "keys prefixed l2_...".
func (s *Store) Statistics() map[string]any {
	return map[string]any{
		"l2_dataset_count": int64(s.entries.Len()),
		"l2_cache_size":    s.entries.Size(),
		"l2_hit_count":     s.hitCount,
	}
}

// Enabled reports whether this store actually admits entries.
func (s *Store) Enabled() bool { return true }

// NopStore is used when l2 is disabled (--l2-cache-size <= 0): every
// operation is a no-op returning success/empty results, mirroring the
// teacher's pattern of swapping in a do-nothing implementation rather than
// nil-checking the L2 handle everywhere it's used.
type NopStore struct{}

func (NopStore) Insert(key string, raw []byte) ([]time.Duration, error) { return nil, nil }
func (NopStore) Get(key string) ([]byte, bool)                         { return nil, false }
func (NopStore) Delete(key string)                                     {}
func (NopStore) Reset()                                                {}
func (NopStore) Statistics() map[string]any {
	return map[string]any{"l2_dataset_count": int64(0), "l2_cache_size": int64(0), "l2_hit_count": int64(0)}
}
func (NopStore) Enabled() bool { return false }

// Tier is implemented by both Store and NopStore.
type Tier interface {
	Insert(key string, raw []byte) ([]time.Duration, error)
	Get(key string) ([]byte, bool)
	Delete(key string)
	Reset()
	Statistics() map[string]any
	Enabled() bool
}
