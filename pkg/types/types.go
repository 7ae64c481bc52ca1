// Package types defines vecton's domain model: peers, collections,
// aliases, shards, replicas and shard transfers.
package types

import (
	"time"

	"github.com/cuemby/vecton/pkg/vecerr"
)

// PeerID identifies a cluster member. Raft voter/learner ids are the same
// space.
type PeerID uint64

// Peer is a cluster member reachable at a URI.
type Peer struct {
	ID      PeerID
	URI     string
	Learner bool
}

// Distance is the vector similarity metric configured per collection.
type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceEuclidean Distance = "euclidean"
	DistanceDot       Distance = "dot"
)

// WALConfig mirrors the segment WAL knobs a collection carries; the WAL's
// own byte format is out of scope, only the tuning surface lives here.
type WALConfig struct {
	CapacityMB        uint64
	SegmentsAhead     uint32
}

// OptimizersConfig is the tuning surface for background segment
// optimization; optimizer internals are out of scope.
type OptimizersConfig struct {
	DeletedThreshold  float64
	VacuumMinVectors  uint64
	DefaultSegmentsNo uint32
}

// HNSWConfig is the tuning surface for the HNSW index; index internals are
// out of scope.
type HNSWConfig struct {
	M               uint32
	EFConstruct     uint32
	FullScanThreshold uint64
}

// Config is a collection's resolved configuration (diffs merged over
// defaults, applied when a collection is created).
type Config struct {
	VectorDim             uint64
	Distance              Distance
	ShardNumber           uint32
	ReplicationFactor     uint32
	WriteConsistencyFactor uint32
	OnDiskPayload         bool
	HNSW                  HNSWConfig
	WAL                   WALConfig
	Optimizers            OptimizersConfig
}

// ConfigDiff carries optional overrides merged onto Defaults() by
// create_collection / update_collection.
type ConfigDiff struct {
	VectorDim              *uint64
	Distance               *Distance
	ShardNumber            *uint32
	ReplicationFactor      *uint32
	WriteConsistencyFactor *uint32
	OnDiskPayload          *bool
	HNSW                   *HNSWConfig
	WAL                    *WALConfig
	Optimizers             *OptimizersConfig
}

// DefaultConfig returns the baseline configuration diffs are merged over.
func DefaultConfig() Config {
	return Config{
		VectorDim:              0,
		Distance:               DistanceCosine,
		ShardNumber:            1,
		ReplicationFactor:      1,
		WriteConsistencyFactor: 1,
		OnDiskPayload:          false,
		HNSW: HNSWConfig{
			M:                 16,
			EFConstruct:       100,
			FullScanThreshold: 10000,
		},
		WAL: WALConfig{
			CapacityMB:    32,
			SegmentsAhead: 0,
		},
		Optimizers: OptimizersConfig{
			DeletedThreshold:  0.2,
			VacuumMinVectors:  1000,
			DefaultSegmentsNo: 0,
		},
	}
}

// Merge applies non-nil diff fields onto a copy of c.
func (c Config) Merge(d ConfigDiff) Config {
	out := c
	if d.VectorDim != nil {
		out.VectorDim = *d.VectorDim
	}
	if d.Distance != nil {
		out.Distance = *d.Distance
	}
	if d.ShardNumber != nil {
		out.ShardNumber = *d.ShardNumber
	}
	if d.ReplicationFactor != nil {
		out.ReplicationFactor = *d.ReplicationFactor
	}
	if d.WriteConsistencyFactor != nil {
		out.WriteConsistencyFactor = *d.WriteConsistencyFactor
	}
	if d.OnDiskPayload != nil {
		out.OnDiskPayload = *d.OnDiskPayload
	}
	if d.HNSW != nil {
		out.HNSW = *d.HNSW
	}
	if d.WAL != nil {
		out.WAL = *d.WAL
	}
	if d.Optimizers != nil {
		out.Optimizers = *d.Optimizers
	}
	return out
}

// Validate enforces basic config invariants: shard count >= 1, replication
// factor >= 1, write-consistency factor <= replication factor.
func (c Config) Validate() error {
	if c.ShardNumber == 0 {
		return vecerr.NewBadInput("shard_number must be >= 1")
	}
	if c.ReplicationFactor == 0 {
		return vecerr.NewBadInput("replication_factor must be >= 1")
	}
	if c.WriteConsistencyFactor > c.ReplicationFactor {
		return vecerr.NewBadInput("write_consistency_factor must be <= replication_factor")
	}
	return nil
}

// ShardID identifies a shard within a collection.
type ShardID uint32

// ReplicaState is the role of one shard copy on one peer.
type ReplicaState string

const (
	ReplicaActive       ReplicaState = "active"
	ReplicaDead         ReplicaState = "dead"
	ReplicaPartial      ReplicaState = "partial"
	ReplicaInitializing ReplicaState = "initializing"
	ReplicaListener     ReplicaState = "listener"
)

// TransferMethod selects how a shard replica is copied.
type TransferMethod string

const (
	TransferStreamRecords TransferMethod = "stream_records"
	TransferSnapshot      TransferMethod = "snapshot"
)

// TransferKey identifies a shard transfer uniquely.
type TransferKey struct {
	ShardID ShardID
	From    PeerID
	To      PeerID
}

// Transfer is one shard-copy operation in flight.
type Transfer struct {
	ShardID ShardID
	From    PeerID
	To      PeerID
	Method  TransferMethod
}

// Key returns the transfer's identity tuple.
func (t Transfer) Key() TransferKey {
	return TransferKey{ShardID: t.ShardID, From: t.From, To: t.To}
}

// ShardState is a shard's replica map, keyed by peer: at most one
// replica per (shard, peer).
type ShardState struct {
	Replicas map[PeerID]ReplicaState
}

// ActivePeers returns the set of peers currently holding an Active replica.
func (s ShardState) ActivePeers() []PeerID {
	out := make([]PeerID, 0, len(s.Replicas))
	for p, st := range s.Replicas {
		if st == ReplicaActive {
			out = append(out, p)
		}
	}
	return out
}

// Available reports whether the shard has at least one Active replica.
func (s ShardState) Available() bool {
	for _, st := range s.Replicas {
		if st == ReplicaActive {
			return true
		}
	}
	return false
}

// CollectionState is the per-collection state reconciled by snapshot
// install/apply_collections_snapshot.
type CollectionState struct {
	Config Config
	Shards map[ShardID]ShardState
}

// CollectionsSnapshot is the catalog-wide state exchanged at consensus
// snapshot boundaries.
type CollectionsSnapshot struct {
	Collections map[string]CollectionState
	Aliases     map[string]string
}

// CreatedAt/UpdatedAt bookkeeping shared by catalog entities.
type Timestamps struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}
