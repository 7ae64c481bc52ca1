package consensus

import (
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/raft"

	"github.com/cuemby/vecton/pkg/log"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// CollectionContainer is the narrow surface the state machine drives,
// named and shaped after toc.rs's trait of the same name: everything but
// peer removal is a single opaque meta-op dispatch, so the FSM never
// reaches into catalog internals and the catalog/consensus import cycle
// toc.rs/consensus_state.rs otherwise have never forms here. Implemented
// by pkg/catalog.TableOfContent.
type CollectionContainer interface {
	// PerformCollectionMetaOp applies every ConsensusOperation variant
	// except peer removal, which needs the cross-collection safety check
	// below and so gets its own method.
	PerformCollectionMetaOp(op ConsensusOperation) error

	// RemovePeer drops peer from every collection's replica map, refusing
	// if doing so would leave any shard with zero replicas.
	RemovePeer(peer types.PeerID) error

	// CollectionsSnapshot/ApplyCollectionsSnapshot serialize and install
	// the whole catalog for raft log compaction and new-node join.
	CollectionsSnapshot() (types.CollectionsSnapshot, error)
	ApplyCollectionsSnapshot(types.CollectionsSnapshot) error
}

// applyResult is what FSM.Apply returns through raft's future; Driver
// unwraps it so Propose callers see a plain error.
type applyResult struct {
	err   error
	token string
}

// FSM drives a CollectionContainer from committed raft log entries. A
// ServiceError from the applier halts the machine: Apply refuses every
// later entry without touching the catalog, so the peer stops advancing
// until an operator restarts it. raft itself has no notion of halting, so
// the halt is enforced entirely at this layer — every Apply call after
// the first ServiceError returns the same halted error through the apply
// future, and no further catalog mutation ever runs.
type FSM struct {
	mu      sync.RWMutex
	catalog CollectionContainer
	persist *PersistentState

	tokenMu     sync.Mutex
	lastToken   string
	tokenWakeup chan struct{}

	halted atomic.Bool
}

// NewFSM builds an FSM over catalog, persisting applied-progress to persist.
func NewFSM(catalog CollectionContainer, persist *PersistentState) *FSM {
	return &FSM{
		catalog:     catalog,
		persist:     persist,
		tokenWakeup: make(chan struct{}),
	}
}

// Apply is called by raft once an entry commits.
func (f *FSM) Apply(entry *raft.Log) any {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.halted.Load() {
		return applyResult{err: vecerr.NewServiceError("consensus: state machine halted after a prior service error; restart required")}
	}

	var op ConsensusOperation
	if err := cbor.Unmarshal(entry.Data, &op); err != nil {
		err := vecerr.NewServiceErrorf("consensus: decode log entry %d: %v", entry.Index, err)
		f.halt(entry.Index, err)
		return applyResult{err: err}
	}

	err := f.applyOne(op)
	if err != nil && vecerr.IsService(err) {
		f.halt(entry.Index, err)
		return applyResult{err: err}
	}

	if f.persist != nil {
		if perr := f.persist.RecordApplied(entry.Index); perr != nil {
			log.Error("consensus: failed to record applied progress: " + perr.Error())
		}
	}

	if op.Kind == OpNop && op.Nop != nil {
		f.publishToken(op.Nop.Token)
	}

	return applyResult{err: err}
}

// halt stops the state machine from applying any further entry, logging
// once loudly since this silences every subsequent proposer until an
// operator intervenes.
func (f *FSM) halt(index uint64, err error) {
	f.halted.Store(true)
	log.Error("consensus: halting apply at entry " + strconv.FormatUint(index, 10) + " after service error: " + err.Error())
}

// Halted reports whether a service error has stopped this state machine
// from applying further entries.
func (f *FSM) Halted() bool { return f.halted.Load() }

func (f *FSM) applyOne(op ConsensusOperation) error {
	switch op.Kind {
	case OpNop:
		return nil
	case OpRemovePeer:
		return f.catalog.RemovePeer(op.RemovePeer.Peer)
	default:
		return f.catalog.PerformCollectionMetaOp(op)
	}
}

// publishToken records the most recently committed Nop token and wakes
// every goroutine blocked in awaitToken.
func (f *FSM) publishToken(token string) {
	f.tokenMu.Lock()
	f.lastToken = token
	close(f.tokenWakeup)
	f.tokenWakeup = make(chan struct{})
	f.tokenMu.Unlock()
}

// awaitToken blocks until a Nop carrying token has committed, or ctx-less
// callers pass nothing: it is only ever called right after a matching
// Nop was itself proposed, so it cannot starve.
func (f *FSM) awaitToken(token string) {
	for {
		f.tokenMu.Lock()
		if f.lastToken == token {
			f.tokenMu.Unlock()
			return
		}
		wake := f.tokenWakeup
		f.tokenMu.Unlock()
		<-wake
	}
}

// Snapshot captures catalog state for raft log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap, err := f.catalog.CollectionsSnapshot()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{data: snap}, nil
}

// Restore installs a snapshot taken by Snapshot (or sent by a peer).
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return vecerr.NewServiceErrorf("consensus: read snapshot: %v", err)
	}
	var snap types.CollectionsSnapshot
	if err := cbor.Unmarshal(raw, &snap); err != nil {
		return vecerr.NewServiceErrorf("consensus: decode snapshot: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catalog.ApplyCollectionsSnapshot(snap)
}

type fsmSnapshot struct {
	data types.CollectionsSnapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	raw, err := cbor.Marshal(s.data)
	if err != nil {
		sink.Cancel()
		return vecerr.NewServiceErrorf("consensus: encode snapshot: %v", err)
	}
	if _, err := sink.Write(raw); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
