package catalog

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vecton/pkg/consensus"
	"github.com/cuemby/vecton/pkg/types"
)

func freeRaftAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// newBootstrappedPeer wires a single-node raft cluster over toc, matching
// the shape production startup uses: one driver driving exactly the toc
// the test then inspects.
func newBootstrappedPeer(t *testing.T, toc *TableOfContent) *consensus.Driver {
	t.Helper()
	dataDir := t.TempDir()
	addr := freeRaftAddr(t)

	persist, err := consensus.Load(dataDir, types.PeerID(1))
	require.NoError(t, err)

	d, err := consensus.Open(types.PeerID(1), addr, dataDir, toc, persist)
	require.NoError(t, err)
	require.NoError(t, d.Bootstrap())
	require.Eventually(t, d.IsLeader, 2*time.Second, 10*time.Millisecond, "single node must become leader")
	return d
}

func vectorDim(d uint64) types.ConfigDiff {
	return types.ConfigDiff{VectorDim: &d}
}

func TestCreateCollectionActivatesLocalShardsAndMaterializesStorage(t *testing.T) {
	root := t.TempDir()
	toc := New(types.PeerID(1))
	toc.SetStorageRoot(root)
	d := newBootstrappedPeer(t, toc)
	defer d.Shutdown()

	require.NoError(t, toc.CreateCollection(d, "docs", vectorDim(4)))

	ids, err := toc.ShardIDs("docs")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	state, err := toc.ShardState("docs", ids[0])
	require.NoError(t, err)
	assert.Equal(t, types.ReplicaActive, state.Replicas[types.PeerID(1)])

	dir := shardDir(root, "docs", ids[0])
	assert.DirExists(t, dir+"/0")
}

func TestCreateCollectionRejectsDuplicateName(t *testing.T) {
	toc := New(types.PeerID(1))
	d := newBootstrappedPeer(t, toc)
	defer d.Shutdown()

	require.NoError(t, toc.CreateCollection(d, "docs", vectorDim(4)))
	err := toc.CreateCollection(d, "docs", vectorDim(4))
	assert.Error(t, err)
}

func TestDeleteCollectionRemovesEntryAndStorage(t *testing.T) {
	root := t.TempDir()
	toc := New(types.PeerID(1))
	toc.SetStorageRoot(root)
	d := newBootstrappedPeer(t, toc)
	defer d.Shutdown()

	require.NoError(t, toc.CreateCollection(d, "docs", vectorDim(4)))
	require.NoError(t, toc.DeleteCollection(d, "docs"))

	_, err := toc.CollectionConfig("docs")
	assert.Error(t, err)
	assert.NoDirExists(t, shardDir(root, "docs", 0))
}

func TestUpdateAliasesBatchAppliesAtomically(t *testing.T) {
	toc := New(types.PeerID(1))
	d := newBootstrappedPeer(t, toc)
	defer d.Shutdown()

	require.NoError(t, toc.CreateCollection(d, "docs", vectorDim(4)))
	require.NoError(t, toc.CreateCollection(d, "archive", vectorDim(4)))

	ops := []consensus.AliasOp{
		{Kind: consensus.AliasOpCreate, Alias: "v1", Collection: "docs"},
		{Kind: consensus.AliasOpRename, Alias: "v1", NewAlias: "v2"},
		{Kind: consensus.AliasOpCreate, Alias: "current", Collection: "archive"},
	}
	require.NoError(t, toc.UpdateAliases(d, ops))

	_, err := toc.CollectionConfig("v1")
	assert.Error(t, err)

	cfg, err := toc.CollectionConfig("v2")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), cfg.VectorDim)

	cfg, err = toc.CollectionConfig("current")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), cfg.VectorDim)
}

func TestUpdateAliasesBatchStopsAtFirstFailure(t *testing.T) {
	toc := New(types.PeerID(1))
	d := newBootstrappedPeer(t, toc)
	defer d.Shutdown()

	require.NoError(t, toc.CreateCollection(d, "docs", vectorDim(4)))

	ops := []consensus.AliasOp{
		{Kind: consensus.AliasOpCreate, Alias: "v1", Collection: "docs"},
		{Kind: consensus.AliasOpCreate, Alias: "v1", Collection: "docs"}, // duplicate: must fail
		{Kind: consensus.AliasOpCreate, Alias: "v2", Collection: "docs"},
	}
	assert.Error(t, toc.UpdateAliases(d, ops))

	_, err := toc.CollectionConfig("v1")
	assert.NoError(t, err, "first step of the batch must have committed")

	_, err = toc.CollectionConfig("v2")
	assert.Error(t, err, "step after the failure must never have applied")
}

func TestHandleTransferStartProposesFinishOnTransportSuccess(t *testing.T) {
	toc := New(types.PeerID(1))
	d := newBootstrappedPeer(t, toc)
	defer d.Shutdown()

	cfg := types.DefaultConfig()
	cfg.ReplicationFactor = 1
	require.NoError(t, toc.PerformCollectionMetaOp(consensus.ConsensusOperation{
		Kind:             consensus.OpCreateCollection,
		CreateCollection: &consensus.CreateCollectionOp{Name: "docs", Config: cfg},
	}))
	require.NoError(t, toc.PerformCollectionMetaOp(consensus.ConsensusOperation{
		Kind: consensus.OpSetShardReplicaState,
		SetShardReplicaState: &consensus.SetShardReplicaStateOp{
			Collection: "docs", ShardID: 0, Peer: 1, State: types.ReplicaActive,
		},
	}))
	require.NoError(t, toc.PerformCollectionMetaOp(consensus.ConsensusOperation{
		Kind:    consensus.OpAddPeer,
		AddPeer: &consensus.AddPeerOp{Peer: types.Peer{ID: 2, URI: "127.0.0.1:0"}},
	}))

	transfer := types.Transfer{ShardID: 0, From: 1, To: 2, Method: types.TransferStreamRecords}
	require.NoError(t, toc.HandleTransferStart(d, transfer, func() error { return nil }))

	require.Eventually(t, func() bool {
		state, err := toc.ShardState("docs", 0)
		if err != nil {
			return false
		}
		return state.Replicas[2] == types.ReplicaActive
	}, 2*time.Second, 10*time.Millisecond, "transport success must eventually finish the transfer")
}

func TestHandleTransferStartAbortsOnTransportFailure(t *testing.T) {
	toc := New(types.PeerID(1))
	d := newBootstrappedPeer(t, toc)
	defer d.Shutdown()

	cfg := types.DefaultConfig()
	cfg.ReplicationFactor = 1
	require.NoError(t, toc.PerformCollectionMetaOp(consensus.ConsensusOperation{
		Kind:             consensus.OpCreateCollection,
		CreateCollection: &consensus.CreateCollectionOp{Name: "docs", Config: cfg},
	}))
	require.NoError(t, toc.PerformCollectionMetaOp(consensus.ConsensusOperation{
		Kind: consensus.OpSetShardReplicaState,
		SetShardReplicaState: &consensus.SetShardReplicaStateOp{
			Collection: "docs", ShardID: 0, Peer: 1, State: types.ReplicaActive,
		},
	}))
	require.NoError(t, toc.PerformCollectionMetaOp(consensus.ConsensusOperation{
		Kind:    consensus.OpAddPeer,
		AddPeer: &consensus.AddPeerOp{Peer: types.Peer{ID: 2, URI: "127.0.0.1:0"}},
	}))

	transfer := types.Transfer{ShardID: 0, From: 1, To: 2, Method: types.TransferStreamRecords}
	require.NoError(t, toc.HandleTransferStart(d, transfer, func() error { return assertErr("transport down") }))

	require.Eventually(t, func() bool {
		state, err := toc.ShardState("docs", 0)
		if err != nil {
			return false
		}
		return state.Replicas[2] == types.ReplicaDead
	}, 2*time.Second, 10*time.Millisecond, "transport failure must eventually abort the transfer")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
