package catalog

import (
	"github.com/cuemby/vecton/pkg/consensus"
	"github.com/cuemby/vecton/pkg/log"
	"github.com/cuemby/vecton/pkg/replicaset"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// CreateCollection is the request-side half of create_collection: merge
// diff over the defaults, pick a placement, propose the collection into
// consensus, and only once that has committed materialize this peer's
// local shards and propose them Active — so Active never appears before
// the collection itself is durable.
func (t *TableOfContent) CreateCollection(driver *consensus.Driver, name string, diff types.ConfigDiff) error {
	t.mu.RLock()
	_, exists := t.collections[name]
	t.mu.RUnlock()
	if exists {
		return vecerr.NewBadInputf("catalog: collection %q already exists", name)
	}

	merged := types.DefaultConfig().Merge(diff)
	if err := merged.Validate(); err != nil {
		return err
	}

	distribution := t.SuggestShardDistribution(merged.ShardNumber, merged.ReplicationFactor)

	op := consensus.ConsensusOperation{
		Kind: consensus.OpCreateCollection,
		CreateCollection: &consensus.CreateCollectionOp{
			Name:         name,
			Config:       merged,
			Distribution: distribution,
		},
	}
	if err := driver.ProposeWithAwait(op, consensus.DefaultMetaOpWait); err != nil {
		return err
	}

	t.mu.RLock()
	storageRoot := t.storageRoot
	thisPeer := t.thisPeer
	t.mu.RUnlock()

	for shardID, replicas := range distribution {
		if !containsPeer(replicas, thisPeer) {
			continue
		}
		if storageRoot != "" {
			if err := materializeShard(storageRoot, name, shardID, merged.VectorDim); err != nil {
				return err
			}
		}
		activate := consensus.ConsensusOperation{
			Kind: consensus.OpSetShardReplicaState,
			SetShardReplicaState: &consensus.SetShardReplicaStateOp{
				Collection: name,
				ShardID:    shardID,
				Peer:       thisPeer,
				State:      types.ReplicaActive,
			},
		}
		if err := driver.Propose(activate, consensus.DefaultMetaOpWait); err != nil {
			return err
		}
	}
	return nil
}

func containsPeer(peers []types.PeerID, target types.PeerID) bool {
	for _, p := range peers {
		if p == target {
			return true
		}
	}
	return false
}

// DeleteCollection proposes the collection's removal. The filesystem
// teardown itself runs inside the consensus apply path (see
// deleteCollectionLocked), so every peer tears down its own local replica
// once the removal has committed, not just the node that called this.
func (t *TableOfContent) DeleteCollection(driver *consensus.Driver, name string) error {
	op := consensus.ConsensusOperation{
		Kind:             consensus.OpDeleteCollection,
		DeleteCollection: &consensus.DeleteCollectionOp{Name: name},
	}
	return driver.ProposeWithAwait(op, consensus.DefaultMetaOpWait)
}

// UpdateAliases proposes every step of ops as one consensus entry, so the
// whole batch commits (and becomes visible to readers) atomically.
func (t *TableOfContent) UpdateAliases(driver *consensus.Driver, ops []consensus.AliasOp) error {
	op := consensus.ConsensusOperation{
		Kind:          consensus.OpUpdateAliases,
		UpdateAliases: &consensus.UpdateAliasesOp{Ops: ops},
	}
	return driver.ProposeWithAwait(op, consensus.DefaultMetaOpWait)
}

// HandleTransferStart is the request-side half of handle_transfer(Start):
// propose the transfer, then run the caller-supplied transport step. The
// transport itself never touches consensus — it only reports success or
// failure, which this function turns into the Finish/Abort proposals
// replicaset.Set's OnFinish/OnFailure futures exist to carry.
func (t *TableOfContent) HandleTransferStart(driver *consensus.Driver, transfer types.Transfer, runTransport func() error) error {
	op := consensus.ConsensusOperation{Kind: consensus.OpStartShardTransfer, StartShardTransfer: &transfer}
	if err := driver.Propose(op, consensus.DefaultMetaOpWait); err != nil {
		return err
	}

	key := transfer.Key()
	var onFinish replicaset.OnFinish = func() {
		finish := consensus.ConsensusOperation{Kind: consensus.OpFinishShardTransfer, FinishShardTransfer: &key}
		if err := driver.Propose(finish, consensus.DefaultMetaOpWait); err != nil {
			log.Error("catalog: propose transfer finish: " + err.Error())
		}
	}
	var onFailure replicaset.OnFailure = func(reason string) {
		abort := consensus.ConsensusOperation{
			Kind:               consensus.OpAbortShardTransfer,
			AbortShardTransfer: &consensus.AbortShardTransferOp{Key: key, Reason: reason},
		}
		if err := driver.Propose(abort, consensus.DefaultMetaOpWait); err != nil {
			log.Error("catalog: propose transfer abort: " + err.Error())
		}
	}

	go func() {
		if err := runTransport(); err != nil {
			onFailure(err.Error())
			return
		}
		onFinish()
	}()
	return nil
}
