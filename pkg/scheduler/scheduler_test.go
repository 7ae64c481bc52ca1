package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/vecton/pkg/catalog"
	"github.com/cuemby/vecton/pkg/types"
)

func TestPickSourceEmpty(t *testing.T) {
	r := &Rebalancer{}
	assert.Equal(t, types.PeerID(0), r.pickSource(nil))
}

func TestPickSourcePrefersFirstActive(t *testing.T) {
	r := &Rebalancer{}
	assert.Equal(t, types.PeerID(3), r.pickSource([]types.PeerID{3, 7}))
}

func TestPickTargetNoCandidates(t *testing.T) {
	toc := catalog.New(types.PeerID(1))
	r := &Rebalancer{toc: toc}

	st := types.ShardState{Replicas: map[types.PeerID]types.ReplicaState{
		1: types.ReplicaActive,
	}}

	// With only this peer known and it already holding a replica, no
	// candidate remains.
	target := r.pickTarget(st)
	assert.Equal(t, types.PeerID(0), target)
}
