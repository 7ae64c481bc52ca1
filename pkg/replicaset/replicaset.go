// Package replicaset implements the per-shard replica-state machine and
// shard-transfer validation. Grounded on
// original_source/lib/storage/src/content_manager/toc.rs's handle_transfer
// and its replica-set transition table.
package replicaset

import (
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// Set owns the replica map for one shard and its in-flight transfers.
// Mutation is single-threaded per shard (the catalog's mutex serializes
// callers); Set itself does no locking.
type Set struct {
	ShardID   types.ShardID
	Replicas  map[types.PeerID]types.ReplicaState
	Transfers map[types.TransferKey]types.Transfer
}

// New builds an empty replica set for shardID.
func New(shardID types.ShardID) *Set {
	return &Set{
		ShardID:   shardID,
		Replicas:  make(map[types.PeerID]types.ReplicaState),
		Transfers: make(map[types.TransferKey]types.Transfer),
	}
}

// State returns a point-in-time copy of the shard state for (de)serializing
// into a collection snapshot.
func (s *Set) State() types.ShardState {
	out := make(map[types.PeerID]types.ReplicaState, len(s.Replicas))
	for p, st := range s.Replicas {
		out[p] = st
	}
	return types.ShardState{Replicas: out}
}

// ApplyState overwrites the replica map wholesale (used by snapshot
// install/reconcile).
func (s *Set) ApplyState(state types.ShardState) {
	s.Replicas = make(map[types.PeerID]types.ReplicaState, len(state.Replicas))
	for p, st := range state.Replicas {
		s.Replicas[p] = st
	}
}

// SetReplicaState is the single mutation point for a replica's role. The
// transition table is enforced by callers (catalog/consensus
// apply), not here — Set is a plain state container so the narrow
// CollectionContainer boundary stays the only place that decides
// whether a transition is legal in context.
func (s *Set) SetReplicaState(peer types.PeerID, state types.ReplicaState) {
	if state == "" {
		delete(s.Replicas, peer)
		return
	}
	s.Replicas[peer] = state
}

// RemovePeer drops peer's replica entirely.
func (s *Set) RemovePeer(peer types.PeerID) {
	delete(s.Replicas, peer)
}

// ValidateTransfer implements toc.rs's validate_transfer: `from` must be
// a current Active replica; `to` must be a known peer; the transfer key
// must not duplicate a live transfer.
func ValidateTransfer(transfer types.Transfer, allPeers map[types.PeerID]struct{}, shardReplicas map[types.PeerID]types.ReplicaState, currentTransfers map[types.TransferKey]types.Transfer) error {
	fromState, ok := shardReplicas[transfer.From]
	if !ok || fromState != types.ReplicaActive {
		return vecerr.NewBadInputf("replicaset: transfer source peer %d is not an active replica of shard %d", transfer.From, transfer.ShardID)
	}
	if _, ok := allPeers[transfer.To]; !ok {
		return vecerr.NewBadInputf("replicaset: transfer target peer %d is not a known cluster peer", transfer.To)
	}
	if _, exists := currentTransfers[transfer.Key()]; exists {
		return vecerr.NewBadInputf("replicaset: transfer %+v duplicates a live transfer", transfer.Key())
	}
	return nil
}

// OnFinish and OnFailure are the two futures a transfer carries so the
// transport layer never directly touches consensus: the catalog
// supplies closures that propose Finish(transfer) / Abort(transfer,
// reason) respectively.
type OnFinish func()
type OnFailure func(reason string)

// StartTransfer validates and records transfer as in-flight. peer-state
// transitions into Partial for the recipient happen at the catalog layer
// once consensus confirms (Dead -> Partial per the transition table);
// StartTransfer only owns bookkeeping of the transfer tuple itself.
func (s *Set) StartTransfer(transfer types.Transfer, allPeers map[types.PeerID]struct{}) error {
	if err := ValidateTransfer(transfer, allPeers, s.Replicas, s.Transfers); err != nil {
		return err
	}
	s.Transfers[transfer.Key()] = transfer
	return nil
}

// FinishTransfer removes the bookkeeping entry and promotes the recipient
// to Active (Partial -> Active per the transition table).
func (s *Set) FinishTransfer(key types.TransferKey) {
	delete(s.Transfers, key)
	s.Replicas[key.To] = types.ReplicaActive
}

// AbortTransfer removes the bookkeeping entry without touching replica
// state; the caller decides whether the recipient reverts to Dead.
func (s *Set) AbortTransfer(key types.TransferKey) {
	delete(s.Transfers, key)
}
