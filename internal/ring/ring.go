// Package ring implements the consistent-hash ring that maps dataset keys
// to shard ids, using virtual nodes so that adding or removing shards
// perturbs only a small fraction of keys.
package ring

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// point is one position on the ring.
type point struct {
	hash    uint64
	shardID int
}

// Ring is an immutable-after-construction consistent-hash ring. Safe for
// concurrent reads from multiple goroutines once built.
type Ring struct {
	points []point
}

// New builds a ring over shardCount shards. Per spec, the virtual node
// count per shard is ceil(1000/shardCount), and each virtual node's ring
// position is hash("{shardID}-{i}") for i in [0, virt).
func New(shardCount int) *Ring {
	if shardCount <= 0 {
		return &Ring{}
	}

	virt := (1000 + shardCount - 1) / shardCount
	points := make([]point, 0, shardCount*virt)
	for shardID := 0; shardID < shardCount; shardID++ {
		for i := 0; i < virt; i++ {
			key := fmt.Sprintf("%d-%d", shardID, i)
			points = append(points, point{hash: xxhash.Sum64String(key), shardID: shardID})
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].hash < points[j].hash })
	return &Ring{points: points}
}

// Shard returns the shard id owning key. Deterministic for a fixed ring;
// independent of any prior lookups.
func (r *Ring) Shard(key string) int {
	if len(r.points) == 0 {
		return 0
	}

	h := xxhash.Sum64String(key)
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= h })
	if idx == len(r.points) {
		idx = 0 // wrap around
	}
	return r.points[idx].shardID
}
