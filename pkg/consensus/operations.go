package consensus

import (
	"github.com/cuemby/vecton/pkg/types"
)

// OpKind tags which variant of ConsensusOperation a log entry carries.
// Only cluster metadata crosses consensus; point/payload writes are
// replicated shard-to-shard outside raft (pkg/updates, pkg/collection).
type OpKind int

const (
	OpCreateCollection OpKind = iota
	OpUpdateCollection
	OpDeleteCollection
	OpCreateAlias
	OpDeleteAlias
	OpRenameAlias
	OpUpdateAliases
	OpSetShardReplicaState
	OpStartShardTransfer
	OpFinishShardTransfer
	OpAbortShardTransfer
	OpAddPeer
	OpRemovePeer
	OpNop
)

// ConsensusOperation is the closed tagged variant replicated through
// raft.Raft.Apply; exactly one of the pointer fields is set per Kind.
type ConsensusOperation struct {
	Kind OpKind

	CreateCollection *CreateCollectionOp
	UpdateCollection *UpdateCollectionOp
	DeleteCollection *DeleteCollectionOp

	CreateAlias   *CreateAliasOp
	DeleteAlias   *DeleteAliasOp
	RenameAlias   *RenameAliasOp
	UpdateAliases *UpdateAliasesOp

	SetShardReplicaState *SetShardReplicaStateOp
	StartShardTransfer   *types.Transfer
	FinishShardTransfer  *types.TransferKey
	AbortShardTransfer   *AbortShardTransferOp

	AddPeer    *AddPeerOp
	RemovePeer *RemovePeerOp

	// Nop carries a confirmation token: propose_consensus_op_with_await
	// appends a Nop entry after the real operation and waits for it to
	// commit, which is the only way to learn that the real entry reached
	// a quorum (raft.Apply's future only proves local durability).
	Nop *NopOp
}

// CreateCollectionOp carries the placement decision (Distribution) made
// by the proposer alongside the resolved config, so every peer creates
// the identical set of shards instead of recomputing it locally against a
// peer set that might have already drifted. Applying it uses only the
// Distribution's shard ids; its per-shard peer lists add no replica
// entries (those come from later SetShardReplicaState operations).
type CreateCollectionOp struct {
	Name         string
	Config       types.Config
	Distribution map[types.ShardID][]types.PeerID
}

type UpdateCollectionOp struct {
	Name string
	Diff types.ConfigDiff
}

type DeleteCollectionOp struct {
	Name string
}

type CreateAliasOp struct {
	Alias      string
	Collection string
}

type DeleteAliasOp struct {
	Alias string
}

type RenameAliasOp struct {
	OldAlias string
	NewAlias string
}

// AliasOpKind tags one step of a batched UpdateAliasesOp.
type AliasOpKind int

const (
	AliasOpCreate AliasOpKind = iota
	AliasOpDelete
	AliasOpRename
)

// AliasOp is one step of a batch: Alias/Collection/NewAlias are
// interpreted per Kind the same way CreateAliasOp/DeleteAliasOp/
// RenameAliasOp are individually.
type AliasOp struct {
	Kind       AliasOpKind
	Alias      string
	Collection string
	NewAlias   string
}

// UpdateAliasesOp batches an ordered list of alias changes into a single
// consensus entry, so they apply under one lock acquisition and no reader
// can observe a half-applied batch.
type UpdateAliasesOp struct {
	Ops []AliasOp
}

type SetShardReplicaStateOp struct {
	Collection string
	ShardID    types.ShardID
	Peer       types.PeerID
	State      types.ReplicaState
}

type AbortShardTransferOp struct {
	Key    types.TransferKey
	Reason string
}

type AddPeerOp struct {
	Peer types.Peer
}

type RemovePeerOp struct {
	Peer types.PeerID
}

// NopOp carries the confirmation token proposed after a real operation.
type NopOp struct {
	Token string
}
