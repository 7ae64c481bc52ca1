// Package catalog implements the Table of Contents: the
// single process-wide registry of collections, aliases, peer addresses
// and the cluster write-lock, driven by committed consensus operations
// and consulted by the collection facade on every request. Grounded on
// original_source/lib/storage/src/content_manager/toc.rs, generalized
// from async/tokio to plain mutex-guarded Go since no HTTP/gRPC front end
// is needed here.
package catalog

import (
	"sort"
	"sync"

	"github.com/cuemby/vecton/pkg/log"
	"github.com/cuemby/vecton/pkg/replicaset"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// defaultWriteLockMessage is returned by CheckWriteLock when the gate is
// engaged with no explicit message set, matching toc.rs's
// DEFAULT_WRITE_LOCK_ERROR_MESSAGE.
const defaultWriteLockMessage = "Write operations are forbidden"

// collectionEntry is one catalog row: resolved config plus one
// replicaset.Set per shard.
type collectionEntry struct {
	config types.Config
	shards map[types.ShardID]*replicaset.Set
}

// TableOfContent is the catalog. It satisfies consensus.CollectionContainer
// so the consensus state machine can drive it without depending on any of
// the catalog's own types.
type TableOfContent struct {
	mu          sync.RWMutex
	collections map[string]*collectionEntry
	aliases     map[string]string // alias -> collection name
	peers       map[types.PeerID]string

	thisPeer types.PeerID

	writeLocked bool
	lockMessage string

	// storageRoot is the on-disk directory collection shard/segment data
	// is materialized under and torn down from. Empty (the default) skips
	// all filesystem work, which is how every in-memory test in this
	// package runs.
	storageRoot string
}

// New builds an empty catalog for thisPeer.
func New(thisPeer types.PeerID) *TableOfContent {
	return &TableOfContent{
		collections: make(map[string]*collectionEntry),
		aliases:     make(map[string]string),
		peers:       make(map[types.PeerID]string),
		thisPeer:    thisPeer,
	}
}

// SetStorageRoot points the catalog at the directory create_collection
// and delete_collection materialize and tear down shard data under.
// Called once at startup; left unset in tests that only exercise catalog
// state transitions.
func (t *TableOfContent) SetStorageRoot(root string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.storageRoot = root
}

// --- write gate -------------------------------------

// SetLocks engages or releases the cluster write gate. An empty message
// resets to the default when locked is true.
func (t *TableOfContent) SetLocks(locked bool, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLocked = locked
	t.lockMessage = message
}

// IsWriteLocked reports the current gate state.
func (t *TableOfContent) IsWriteLocked() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.writeLocked
}

// CheckWriteLock returns a Locked error when the gate is engaged, falling
// back to the default message if none was set.
func (t *TableOfContent) CheckWriteLock() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.writeLocked {
		return nil
	}
	msg := t.lockMessage
	if msg == "" {
		msg = defaultWriteLockMessage
	}
	return vecerr.NewLocked(msg)
}

// --- collection lookup --------------------------------------------------

// resolveLocked follows one alias hop.
func (t *TableOfContent) resolveLocked(nameOrAlias string) (string, *collectionEntry, error) {
	name := nameOrAlias
	if target, ok := t.aliases[nameOrAlias]; ok {
		name = target
	}
	entry, ok := t.collections[name]
	if !ok {
		return "", nil, vecerr.NewBadInputf("catalog: collection %q does not exist", nameOrAlias)
	}
	return name, entry, nil
}

// CollectionConfig returns the resolved config for name or an alias of it.
func (t *TableOfContent) CollectionConfig(nameOrAlias string) (types.Config, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, entry, err := t.resolveLocked(nameOrAlias)
	if err != nil {
		return types.Config{}, err
	}
	return entry.config, nil
}

// ShardState returns a copy of one shard's replica state.
func (t *TableOfContent) ShardState(nameOrAlias string, shard types.ShardID) (types.ShardState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, entry, err := t.resolveLocked(nameOrAlias)
	if err != nil {
		return types.ShardState{}, err
	}
	s, ok := entry.shards[shard]
	if !ok {
		return types.ShardState{}, vecerr.NewBadInputf("catalog: shard %d does not exist", shard)
	}
	return s.State(), nil
}

// ShardIDs returns every shard id of a collection, sorted.
func (t *TableOfContent) ShardIDs(nameOrAlias string) ([]types.ShardID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, entry, err := t.resolveLocked(nameOrAlias)
	if err != nil {
		return nil, err
	}
	out := make([]types.ShardID, 0, len(entry.shards))
	for id := range entry.shards {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// AllCollections lists every collection name (not aliases).
func (t *TableOfContent) AllCollections() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.collections))
	for name := range t.collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Peers lists every known peer other than this one, sorted.
func (t *TableOfContent) Peers() []types.PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.PeerID, 0, len(t.peers))
	for p := range t.peers {
		if p == t.thisPeer {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ThisPeer returns this node's own peer id.
func (t *TableOfContent) ThisPeer() types.PeerID {
	return t.thisPeer
}

// --- shard distribution suggestions -----------------------

// SuggestShardDistribution assigns shardNumber shards round-robin across
// the known peer set (including this peer), matching toc.rs's
// suggest_shard_distribution for the common case of no explicit
// placement request.
func (t *TableOfContent) SuggestShardDistribution(shardNumber uint32, replicationFactor uint32) map[types.ShardID][]types.PeerID {
	t.mu.RLock()
	peers := make([]types.PeerID, 0, len(t.peers)+1)
	seen := map[types.PeerID]struct{}{t.thisPeer: {}}
	peers = append(peers, t.thisPeer)
	for p := range t.peers {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		peers = append(peers, p)
	}
	t.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	if len(peers) == 0 {
		return map[types.ShardID][]types.PeerID{}
	}

	out := make(map[types.ShardID][]types.PeerID, shardNumber)
	cursor := 0
	for s := uint32(0); s < shardNumber; s++ {
		replicas := make([]types.PeerID, 0, replicationFactor)
		for r := uint32(0); r < replicationFactor && r < uint32(len(peers)); r++ {
			replicas = append(replicas, peers[cursor%len(peers)])
			cursor++
		}
		out[types.ShardID(s)] = replicas
	}
	return out
}

// SuggestShardReplicaChanges warns (does not fail) when newReplFactor
// exceeds the known peer count, matching toc.rs's
// suggest_shard_replica_changes diagnostic.
func (t *TableOfContent) SuggestShardReplicaChanges(newReplFactor uint32) {
	t.mu.RLock()
	nPeers := len(t.peers) + 1
	t.mu.RUnlock()
	if int(newReplFactor) > nPeers {
		log.Warn("catalog: replication factor requested higher than known peer count; collection will be under-replicated until more peers join")
	}
}
