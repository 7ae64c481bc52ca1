// Package hashring implements the deterministic point-to-shard mapping of
// a consistent hash ring over shard ids, used to split batches
// of points into per-shard sub-batches.
package hashring

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/stathat/consistent"

	"github.com/cuemby/vecton/pkg/types"
)

// VirtualNodes is the fixed replication factor of virtual nodes per shard
// on the ring.
const VirtualNodes = 64

// Ring routes point ids to shard ids. The zero value is not usable; build
// one with New.
type Ring struct {
	c      *consistent.Consistent
	shards map[string]types.ShardID
}

// New builds a ring over the given shard ids. Ring state is a pure
// function of the shard set, so two peers that agree on the shard set
// make the same routing decision.
func New(shardIDs []types.ShardID) *Ring {
	c := consistent.New()
	c.NumberOfReplicas = VirtualNodes

	sorted := append([]types.ShardID(nil), shardIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	shards := make(map[string]types.ShardID, len(sorted))
	for _, id := range sorted {
		key := shardKey(id)
		c.Add(key)
		shards[key] = id
	}
	return &Ring{c: c, shards: shards}
}

func shardKey(id types.ShardID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Route deterministically maps a point id to a shard id. Returns an error
// if the ring has no shards.
func (r *Ring) Route(pointID uint64) (types.ShardID, error) {
	key, err := r.c.Get(strconv.FormatUint(pointID, 10))
	if err != nil {
		return 0, fmt.Errorf("hashring: route point %d: %w", pointID, err)
	}
	shard, ok := r.shards[key]
	if !ok {
		return 0, fmt.Errorf("hashring: route point %d: unknown ring member %q", pointID, key)
	}
	return shard, nil
}

// ShardIDs returns the shard ids known to the ring, in ascending order.
func (r *Ring) ShardIDs() []types.ShardID {
	out := make([]types.ShardID, 0, len(r.shards))
	for _, id := range r.shards {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SplitByShard groups ids by the shard they route to via keyFn, using
// ring to decide. The concatenation of the per-shard slices (in ring
// shard-id order) reproduces the input set with within-shard order
// preserved.
func SplitByShard[T any](items []T, keyFn func(T) uint64, ring *Ring) (map[types.ShardID][]T, error) {
	out := make(map[types.ShardID][]T)
	for _, item := range items {
		shard, err := ring.Route(keyFn(item))
		if err != nil {
			return nil, err
		}
		out[shard] = append(out[shard], item)
	}
	return out, nil
}
