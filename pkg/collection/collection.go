// Package collection implements the collection/shard facade: the single
// entry point update operations pass through before reaching a shard's
// segment storage. Grounded on
// original_source/lib/storage/src/content_manager/toc.rs's dispatch
// between update_from_client (write-gate checked, split across shards)
// and update_from_peer (gate bypassed, already scoped to one shard), and
// on original_source/lib/collection/src/collection/mod.rs for the
// shard-fan-out shape. Replica-to-replica network forwarding is not
// implemented here; ShardWriter below is the seam a transport layer
// would fill in.
package collection

import (
	"github.com/cuemby/vecton/pkg/catalog"
	"github.com/cuemby/vecton/pkg/hashring"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/updates"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// ShardWriter applies one operation to every local replica of a shard.
// The real system would forward to remote replicas too; this seam only
// covers the replica(s) this process holds.
type ShardWriter interface {
	ApplyToShard(shardID types.ShardID, op updates.CollectionUpdateOperations) error
}

// Facade is the per-collection entry point every write and targeted
// point operation passes through.
type Facade struct {
	name   string
	toc    *catalog.TableOfContent
	writer ShardWriter
}

// New builds a facade for an existing catalog collection.
func New(name string, toc *catalog.TableOfContent, writer ShardWriter) *Facade {
	return &Facade{name: name, toc: toc, writer: writer}
}

// UpdateFromClient is the externally-triggered write path:
// the write gate applies, and the operation is split across shards by
// point id / fanned out to all shards for filter-scoped operations.
func (f *Facade) UpdateFromClient(op updates.CollectionUpdateOperations) error {
	if op.IsWriteOperation() {
		if err := f.toc.CheckWriteLock(); err != nil {
			return err
		}
	}
	ring, err := f.ringLocked()
	if err != nil {
		return err
	}
	split, err := updates.SplitByShard(op, ring)
	if err != nil {
		return err
	}
	return f.dispatch(split)
}

// UpdateFromPeer is the internally-triggered write path used during shard
// transfer replay: the write gate is bypassed (the operation is p2p, not
// client-originated) and it is never re-split — shardID is already fixed
// by the caller.
func (f *Facade) UpdateFromPeer(shardID types.ShardID, op updates.CollectionUpdateOperations) error {
	return f.writer.ApplyToShard(shardID, op)
}

func (f *Facade) dispatch(split updates.OperationToShard) error {
	if split.ToAll {
		shardIDs, err := f.toc.ShardIDs(f.name)
		if err != nil {
			return err
		}
		for _, id := range shardIDs {
			if err := f.writer.ApplyToShard(id, *split.Single); err != nil {
				return err
			}
		}
		return nil
	}
	for shardID, sub := range split.ByShard {
		if err := f.writer.ApplyToShard(shardID, sub); err != nil {
			return err
		}
	}
	return nil
}

func (f *Facade) ringLocked() (*hashring.Ring, error) {
	shardIDs, err := f.toc.ShardIDs(f.name)
	if err != nil {
		return nil, err
	}
	if len(shardIDs) == 0 {
		return nil, vecerr.NewServiceErrorf("collection: %q has no shards", f.name)
	}
	return hashring.New(shardIDs), nil
}
