package replicaset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

func TestStartTransferRejectsNonActiveSource(t *testing.T) {
	s := New(0)
	s.SetReplicaState(1, types.ReplicaPartial)
	allPeers := map[types.PeerID]struct{}{1: {}, 2: {}}

	err := s.StartTransfer(types.Transfer{ShardID: 0, From: 1, To: 2}, allPeers)
	require.Error(t, err)
	var badInput *vecerr.BadInput
	assert.ErrorAs(t, err, &badInput)
}

func TestStartTransferRejectsUnknownTarget(t *testing.T) {
	s := New(0)
	s.SetReplicaState(1, types.ReplicaActive)
	allPeers := map[types.PeerID]struct{}{1: {}}

	err := s.StartTransfer(types.Transfer{ShardID: 0, From: 1, To: 2}, allPeers)
	assert.Error(t, err)
}

func TestStartTransferRejectsDuplicate(t *testing.T) {
	s := New(0)
	s.SetReplicaState(1, types.ReplicaActive)
	allPeers := map[types.PeerID]struct{}{1: {}, 2: {}}

	transfer := types.Transfer{ShardID: 0, From: 1, To: 2}
	require.NoError(t, s.StartTransfer(transfer, allPeers))
	err := s.StartTransfer(transfer, allPeers)
	assert.Error(t, err)
}

func TestFinishTransferPromotesRecipientToActive(t *testing.T) {
	s := New(0)
	s.SetReplicaState(1, types.ReplicaActive)
	allPeers := map[types.PeerID]struct{}{1: {}, 2: {}}
	transfer := types.Transfer{ShardID: 0, From: 1, To: 2}
	require.NoError(t, s.StartTransfer(transfer, allPeers))

	s.FinishTransfer(transfer.Key())

	assert.Equal(t, types.ReplicaActive, s.Replicas[2])
	assert.Empty(t, s.Transfers)
}

func TestAbortTransferLeavesReplicaStateToCaller(t *testing.T) {
	s := New(0)
	s.SetReplicaState(1, types.ReplicaActive)
	allPeers := map[types.PeerID]struct{}{1: {}, 2: {}}
	transfer := types.Transfer{ShardID: 0, From: 1, To: 2}
	require.NoError(t, s.StartTransfer(transfer, allPeers))

	s.AbortTransfer(transfer.Key())

	assert.Empty(t, s.Transfers)
	_, hasReplica := s.Replicas[2]
	assert.False(t, hasReplica)
}

func TestSetReplicaStateEmptyRemovesEntry(t *testing.T) {
	s := New(0)
	s.SetReplicaState(1, types.ReplicaActive)
	s.SetReplicaState(1, "")
	_, ok := s.Replicas[1]
	assert.False(t, ok)
}

func TestStateIsIndependentCopy(t *testing.T) {
	s := New(0)
	s.SetReplicaState(1, types.ReplicaActive)

	snapshot := s.State()
	s.SetReplicaState(2, types.ReplicaActive)

	_, ok := snapshot.Replicas[2]
	assert.False(t, ok)
}
