package catalog

import (
	"github.com/cuemby/vecton/pkg/consensus"
	"github.com/cuemby/vecton/pkg/replicaset"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

var _ consensus.CollectionContainer = (*TableOfContent)(nil)

// PerformCollectionMetaOp dispatches every committed ConsensusOperation
// except peer removal (which has its own cross-collection safety check,
// see RemovePeer below). Called only from the consensus apply path, so
// every mutation here is already ordered and durable in the raft log.
func (t *TableOfContent) PerformCollectionMetaOp(op consensus.ConsensusOperation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch op.Kind {
	case consensus.OpCreateCollection:
		return t.createCollectionLocked(*op.CreateCollection)
	case consensus.OpUpdateCollection:
		return t.updateCollectionLocked(*op.UpdateCollection)
	case consensus.OpDeleteCollection:
		return t.deleteCollectionLocked(*op.DeleteCollection)
	case consensus.OpCreateAlias:
		return t.createAliasLocked(*op.CreateAlias)
	case consensus.OpDeleteAlias:
		delete(t.aliases, op.DeleteAlias.Alias)
		return nil
	case consensus.OpRenameAlias:
		return t.renameAliasLocked(*op.RenameAlias)
	case consensus.OpUpdateAliases:
		return t.updateAliasesLocked(*op.UpdateAliases)
	case consensus.OpSetShardReplicaState:
		return t.setShardReplicaStateLocked(*op.SetShardReplicaState)
	case consensus.OpStartShardTransfer:
		return t.startShardTransferLocked(*op.StartShardTransfer)
	case consensus.OpFinishShardTransfer:
		return t.finishShardTransferLocked(*op.FinishShardTransfer)
	case consensus.OpAbortShardTransfer:
		return t.abortShardTransferLocked(*op.AbortShardTransfer)
	case consensus.OpAddPeer:
		t.peers[op.AddPeer.Peer.ID] = op.AddPeer.Peer.URI
		return nil
	default:
		return vecerr.NewServiceError("catalog: unexpected meta-op kind")
	}
}

func (t *TableOfContent) createCollectionLocked(op consensus.CreateCollectionOp) error {
	if _, exists := t.collections[op.Name]; exists {
		return vecerr.NewBadInputf("catalog: collection %q already exists", op.Name)
	}
	if err := op.Config.Validate(); err != nil {
		return err
	}
	entry := &collectionEntry{config: op.Config, shards: make(map[types.ShardID]*replicaset.Set)}
	if len(op.Distribution) > 0 {
		for shardID := range op.Distribution {
			entry.shards[shardID] = replicaset.New(shardID)
		}
	} else {
		for s := uint32(0); s < op.Config.ShardNumber; s++ {
			entry.shards[types.ShardID(s)] = replicaset.New(types.ShardID(s))
		}
	}
	t.collections[op.Name] = entry
	return nil
}

// deleteCollectionLocked removes the catalog entry and any alias pointing
// at it, then — once the removal itself has been recorded — tears down
// its on-disk directory. Any segment handles the collection layer holds
// open are closed by that layer before this op is proposed, so there is
// nothing left to flush here (before_drop is a no-op in this slice of the
// system). A teardown failure after catalog removal has already committed
// is a service error, matching delete_collection's contract.
func (t *TableOfContent) deleteCollectionLocked(op consensus.DeleteCollectionOp) error {
	delete(t.collections, op.Name)
	for alias, target := range t.aliases {
		if target == op.Name {
			delete(t.aliases, alias)
		}
	}
	if t.storageRoot == "" {
		return nil
	}
	return removeCollectionDir(t.storageRoot, op.Name)
}

func (t *TableOfContent) updateCollectionLocked(op consensus.UpdateCollectionOp) error {
	entry, ok := t.collections[op.Name]
	if !ok {
		return vecerr.NewBadInputf("catalog: collection %q does not exist", op.Name)
	}
	merged := entry.config.Merge(op.Diff)
	if err := merged.Validate(); err != nil {
		return err
	}
	entry.config = merged
	return nil
}

// createAliasLocked validates in the order toc.rs's update_aliases does:
// the target collection must exist, then the alias name must not already
// name a live collection.
func (t *TableOfContent) createAliasLocked(op consensus.CreateAliasOp) error {
	if _, ok := t.collections[op.Collection]; !ok {
		return vecerr.NewBadInputf("catalog: collection %q does not exist", op.Collection)
	}
	if _, ok := t.collections[op.Alias]; ok {
		return vecerr.NewBadInputf("catalog: alias %q collides with an existing collection name", op.Alias)
	}
	t.aliases[op.Alias] = op.Collection
	return nil
}

// updateAliasesLocked applies every step of batch in order while already
// holding t.mu for the whole dispatch (PerformCollectionMetaOp's single
// Lock), so the batch commits as one atomic step: no reader can observe
// state between two of its ops. A step failing mid-batch leaves earlier
// steps in this call applied and aborts the rest, matching a single
// consensus entry partially failing the way any other op would.
func (t *TableOfContent) updateAliasesLocked(batch consensus.UpdateAliasesOp) error {
	for _, aliasOp := range batch.Ops {
		var err error
		switch aliasOp.Kind {
		case consensus.AliasOpCreate:
			err = t.createAliasLocked(consensus.CreateAliasOp{Alias: aliasOp.Alias, Collection: aliasOp.Collection})
		case consensus.AliasOpDelete:
			if _, ok := t.aliases[aliasOp.Alias]; !ok {
				err = vecerr.NewBadInputf("catalog: alias %q does not exist", aliasOp.Alias)
			} else {
				delete(t.aliases, aliasOp.Alias)
			}
		case consensus.AliasOpRename:
			err = t.renameAliasLocked(consensus.RenameAliasOp{OldAlias: aliasOp.Alias, NewAlias: aliasOp.NewAlias})
		default:
			err = vecerr.NewServiceError("catalog: unexpected alias op kind")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *TableOfContent) renameAliasLocked(op consensus.RenameAliasOp) error {
	target, ok := t.aliases[op.OldAlias]
	if !ok {
		return vecerr.NewBadInputf("catalog: alias %q does not exist", op.OldAlias)
	}
	if _, ok := t.collections[op.NewAlias]; ok {
		return vecerr.NewBadInputf("catalog: alias %q collides with an existing collection name", op.NewAlias)
	}
	delete(t.aliases, op.OldAlias)
	t.aliases[op.NewAlias] = target
	return nil
}

func (t *TableOfContent) setShardReplicaStateLocked(op consensus.SetShardReplicaStateOp) error {
	shard, err := t.shardOf(op.Collection, op.ShardID)
	if err != nil {
		return err
	}
	shard.SetReplicaState(op.Peer, op.State)
	return nil
}

func (t *TableOfContent) shardOf(collection string, shardID types.ShardID) (*replicaset.Set, error) {
	entry, ok := t.collections[collection]
	if !ok {
		return nil, vecerr.NewBadInputf("catalog: collection %q does not exist", collection)
	}
	shard, ok := entry.shards[shardID]
	if !ok {
		return nil, vecerr.NewBadInputf("catalog: shard %d does not exist in %q", shardID, collection)
	}
	return shard, nil
}

func (t *TableOfContent) allPeersSet() map[types.PeerID]struct{} {
	out := make(map[types.PeerID]struct{}, len(t.peers)+1)
	out[t.thisPeer] = struct{}{}
	for p := range t.peers {
		out[p] = struct{}{}
	}
	return out
}

// startShardTransferLocked resolves the transfer's shard by scanning
// collections for one holding a replica (in any state) on transfer.From,
// since the consensus operation itself carries only the bare Transfer;
// StartTransfer then rejects the transfer if that replica is not Active.
func (t *TableOfContent) startShardTransferLocked(transfer types.Transfer) error {
	shard, err := t.findShardForTransferLocked(transfer)
	if err != nil {
		return err
	}
	if err := shard.StartTransfer(transfer, t.allPeersSet()); err != nil {
		return err
	}
	shard.SetReplicaState(transfer.To, types.ReplicaPartial)
	return nil
}

func (t *TableOfContent) finishShardTransferLocked(key types.TransferKey) error {
	for _, entry := range t.collections {
		for _, shard := range entry.shards {
			if shard.ShardID != key.ShardID {
				continue
			}
			if _, ok := shard.Transfers[key]; ok {
				shard.FinishTransfer(key)
				return nil
			}
		}
	}
	return vecerr.NewBadInputf("catalog: no live transfer matching %+v", key)
}

func (t *TableOfContent) abortShardTransferLocked(op consensus.AbortShardTransferOp) error {
	for _, entry := range t.collections {
		for _, shard := range entry.shards {
			if shard.ShardID != op.Key.ShardID {
				continue
			}
			if _, ok := shard.Transfers[op.Key]; ok {
				shard.AbortTransfer(op.Key)
				shard.SetReplicaState(op.Key.To, types.ReplicaDead)
				return nil
			}
		}
	}
	return vecerr.NewBadInputf("catalog: no live transfer matching %+v", op.Key)
}

func (t *TableOfContent) findShardForTransferLocked(transfer types.Transfer) (*replicaset.Set, error) {
	for _, entry := range t.collections {
		if shard, ok := entry.shards[transfer.ShardID]; ok {
			if _, isReplica := shard.Replicas[transfer.From]; isReplica {
				return shard, nil
			}
		}
	}
	return nil, vecerr.NewBadInputf("catalog: no shard %d with replica on peer %d", transfer.ShardID, transfer.From)
}

// RemovePeer drops peer from every collection's replica map, refusing if
// doing so would leave any shard with zero replicas anywhere.
func (t *TableOfContent) RemovePeer(peer types.PeerID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, entry := range t.collections {
		for shardID, shard := range entry.shards {
			if len(shard.Replicas) == 1 {
				if _, ok := shard.Replicas[peer]; ok {
					return vecerr.NewBadInputf(
						"catalog: cannot remove peer %d: it is the only replica of shard %d of collection %q",
						peer, shardID, name)
				}
			}
		}
	}

	for _, entry := range t.collections {
		for _, shard := range entry.shards {
			shard.RemovePeer(peer)
		}
	}
	delete(t.peers, peer)
	return nil
}

// CollectionsSnapshot serializes the whole catalog for raft log
// compaction and new-node join.
func (t *TableOfContent) CollectionsSnapshot() (types.CollectionsSnapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := types.CollectionsSnapshot{
		Collections: make(map[string]types.CollectionState, len(t.collections)),
		Aliases:     make(map[string]string, len(t.aliases)),
	}
	for name, entry := range t.collections {
		shards := make(map[types.ShardID]types.ShardState, len(entry.shards))
		for id, shard := range entry.shards {
			shards[id] = shard.State()
		}
		snap.Collections[name] = types.CollectionState{Config: entry.config, Shards: shards}
	}
	for alias, target := range t.aliases {
		snap.Aliases[alias] = target
	}
	return snap, nil
}

// ApplyCollectionsSnapshot installs snap wholesale, replacing all
// collection and alias state.
func (t *TableOfContent) ApplyCollectionsSnapshot(snap types.CollectionsSnapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	collections := make(map[string]*collectionEntry, len(snap.Collections))
	for name, state := range snap.Collections {
		entry := &collectionEntry{config: state.Config, shards: make(map[types.ShardID]*replicaset.Set, len(state.Shards))}
		for id, shardState := range state.Shards {
			shard := replicaset.New(id)
			shard.ApplyState(shardState)
			entry.shards[id] = shard
		}
		collections[name] = entry
	}
	t.collections = collections

	aliases := make(map[string]string, len(snap.Aliases))
	for alias, target := range snap.Aliases {
		aliases[alias] = target
	}
	t.aliases = aliases
	return nil
}
