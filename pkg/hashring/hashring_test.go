package hashring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vecton/pkg/types"
)

func TestRouteIsDeterministic(t *testing.T) {
	ring := New([]types.ShardID{0, 1, 2, 3})

	first, err := ring.Route(42)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := ring.Route(42)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTwoRingsOverSameShardsAgree(t *testing.T) {
	a := New([]types.ShardID{0, 1, 2})
	b := New([]types.ShardID{2, 1, 0})

	for id := uint64(0); id < 200; id++ {
		shardA, err := a.Route(id)
		require.NoError(t, err)
		shardB, err := b.Route(id)
		require.NoError(t, err)
		assert.Equal(t, shardA, shardB)
	}
}

func TestSplitByShardPreservesAllItems(t *testing.T) {
	ring := New([]types.ShardID{0, 1, 2})
	ids := []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	groups, err := SplitByShard(ids, func(id uint64) uint64 { return id }, ring)
	require.NoError(t, err)

	total := 0
	for _, group := range groups {
		total += len(group)
	}
	assert.Equal(t, len(ids), total)
}

func TestShardIDsSorted(t *testing.T) {
	ring := New([]types.ShardID{3, 1, 2})
	assert.Equal(t, []types.ShardID{1, 2, 3}, ring.ShardIDs())
}
