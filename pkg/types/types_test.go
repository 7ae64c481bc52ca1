package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeAppliesOnlyNonNilFields(t *testing.T) {
	base := DefaultConfig()
	dim := uint64(256)
	shards := uint32(4)

	merged := base.Merge(ConfigDiff{VectorDim: &dim, ShardNumber: &shards})

	assert.Equal(t, dim, merged.VectorDim)
	assert.Equal(t, shards, merged.ShardNumber)
	assert.Equal(t, base.ReplicationFactor, merged.ReplicationFactor)
	assert.Equal(t, base.Distance, merged.Distance)
}

func TestMergeDoesNotMutateReceiver(t *testing.T) {
	base := DefaultConfig()
	shards := uint32(8)
	_ = base.Merge(ConfigDiff{ShardNumber: &shards})

	assert.Equal(t, uint32(1), base.ShardNumber)
}

func TestValidateRejectsZeroShardNumber(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShardNumber = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroReplicationFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplicationFactor = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsWriteConsistencyAboveReplicationFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplicationFactor = 2
	cfg.WriteConsistencyFactor = 3
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestTransferKey(t *testing.T) {
	transfer := Transfer{ShardID: 2, From: 1, To: 3, Method: TransferStreamRecords}
	assert.Equal(t, TransferKey{ShardID: 2, From: 1, To: 3}, transfer.Key())
}

func TestShardStateActivePeers(t *testing.T) {
	s := ShardState{Replicas: map[PeerID]ReplicaState{
		1: ReplicaActive,
		2: ReplicaPartial,
		3: ReplicaActive,
	}}

	peers := s.ActivePeers()
	assert.ElementsMatch(t, []PeerID{1, 3}, peers)
}

func TestShardStateAvailable(t *testing.T) {
	available := ShardState{Replicas: map[PeerID]ReplicaState{1: ReplicaActive}}
	assert.True(t, available.Available())

	unavailable := ShardState{Replicas: map[PeerID]ReplicaState{1: ReplicaPartial, 2: ReplicaDead}}
	assert.False(t, unavailable.Available())

	empty := ShardState{}
	assert.False(t, empty.Available())
}
