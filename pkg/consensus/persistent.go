// Package consensus implements the replicated consensus log: persistent
// node state, a bbolt-backed write-ahead log, and a hashicorp/raft finite
// state machine wired on top of both. The bootstrap/join/apply shape
// follows a manager package built the same way around hashicorp/raft;
// the persisted-state and WAL semantics follow
// original_source/lib/storage/src/content_manager/consensus/persistent.rs
// and consensus_state.rs.
package consensus

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// AppliedProgress tracks the last consensus entry applied to the state
// machine across restarts, so a node never re-applies or skips entries
// after a crash.
type AppliedProgress struct {
	Next uint64
	Last uint64
}

// PersistentState is the on-disk node identity and progress record,
// CBOR-encoded at dataDir/consensus_state.cbor. It is distinct from the
// raft-boltdb hard state: this file tracks vecton-level bookkeeping
// (peer address book, applied progress, last snapshot) that outlives any
// one raft.Storage implementation.
type PersistentState struct {
	ThisPeerID         types.PeerID
	PeerAddressByID    map[types.PeerID]string
	AppliedProgress    AppliedProgress
	LatestSnapshotTerm uint64
	LatestSnapshotIdx  uint64

	mu   sync.Mutex
	path string
}

// Load reads the persistent state file under dataDir, creating a fresh
// one (keyed by thisPeer) if none exists yet.
func Load(dataDir string, thisPeer types.PeerID) (*PersistentState, error) {
	path := filepath.Join(dataDir, "consensus_state.cbor")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		ps := &PersistentState{
			ThisPeerID:      thisPeer,
			PeerAddressByID: make(map[types.PeerID]string),
			path:            path,
		}
		if err := ps.save(); err != nil {
			return nil, err
		}
		return ps, nil
	}
	if err != nil {
		return nil, vecerr.NewServiceErrorf("consensus: read persistent state: %v", err)
	}

	var ps PersistentState
	if err := cbor.Unmarshal(raw, &ps); err != nil {
		return nil, vecerr.NewServiceErrorf("consensus: decode persistent state: %v", err)
	}
	ps.path = path
	if ps.PeerAddressByID == nil {
		ps.PeerAddressByID = make(map[types.PeerID]string)
	}
	return &ps, nil
}

// ApplyStateUpdate mutates the state under lock via f, persists the result
// to a temp file and renames it over the real path, and only swaps the
// in-memory copy once the write has landed. A failed write leaves the
// prior on-disk and in-memory state intact.
func (p *PersistentState) ApplyStateUpdate(f func(*PersistentState)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *p
	clone.PeerAddressByID = make(map[types.PeerID]string, len(p.PeerAddressByID))
	for id, addr := range p.PeerAddressByID {
		clone.PeerAddressByID[id] = addr
	}
	f(&clone)

	if err := clone.save(); err != nil {
		return err
	}
	p.PeerAddressByID = clone.PeerAddressByID
	p.AppliedProgress = clone.AppliedProgress
	p.LatestSnapshotTerm = clone.LatestSnapshotTerm
	p.LatestSnapshotIdx = clone.LatestSnapshotIdx
	p.ThisPeerID = clone.ThisPeerID
	return nil
}

func (p *PersistentState) save() error {
	raw, err := cbor.Marshal(p)
	if err != nil {
		return vecerr.NewServiceErrorf("consensus: encode persistent state: %v", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return vecerr.NewServiceErrorf("consensus: write persistent state: %v", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return vecerr.NewServiceErrorf("consensus: rename persistent state: %v", err)
	}
	return nil
}

// PeerAddress looks up a peer's transport address from the address book.
func (p *PersistentState) PeerAddress(id types.PeerID) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr, ok := p.PeerAddressByID[id]
	return addr, ok
}

// SetPeerAddress records or updates a peer's transport address.
func (p *PersistentState) SetPeerAddress(id types.PeerID, addr string) error {
	return p.ApplyStateUpdate(func(c *PersistentState) {
		c.PeerAddressByID[id] = addr
	})
}

// RemovePeerAddress drops a peer from the address book.
func (p *PersistentState) RemovePeerAddress(id types.PeerID) error {
	return p.ApplyStateUpdate(func(c *PersistentState) {
		delete(c.PeerAddressByID, id)
	})
}

// RecordApplied advances the applied-progress cursor after a log entry is
// durably applied to the state machine.
func (p *PersistentState) RecordApplied(index uint64) error {
	return p.ApplyStateUpdate(func(c *PersistentState) {
		c.AppliedProgress.Last = index
		c.AppliedProgress.Next = index + 1
	})
}

// RecordSnapshot records the (term, index) of the most recently installed
// or taken snapshot.
func (p *PersistentState) RecordSnapshot(term, index uint64) error {
	return p.ApplyStateUpdate(func(c *PersistentState) {
		c.LatestSnapshotTerm = term
		c.LatestSnapshotIdx = index
	})
}

