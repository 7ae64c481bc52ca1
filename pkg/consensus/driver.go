package consensus

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/vecton/pkg/log"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// DefaultMetaOpWait is the default timeout propose_consensus_op_with_await
// allows the Nop confirmation entry to reach a quorum, matching the
// constant used by the confirmation-token design this mirrors.
const DefaultMetaOpWait = 10 * time.Second

// Driver owns one node's raft.Raft instance and dispatches
// ConsensusOperation proposals to it. Bootstrap/AddVoter/Apply follow the
// same shape as a hashicorp/raft manager built around a JSON Command
// envelope, generalized here to the typed ConsensusOperation variants of
// this package and to CBOR for the wire encoding.
type Driver struct {
	peerID   types.PeerID
	bindAddr string
	dataDir  string

	raft *raft.Raft
	fsm  *FSM
	wal  *WAL

	pendingProposals atomic.Int64

	peerFailuresMu sync.Mutex
	peerFailures   map[types.PeerID]*peerFailureState
}

// peerFailureState tracks consecutive message-send failures to one peer,
// following consensus_state.rs's record_message_send_failure /
// record_message_send_success bookkeeping.
type peerFailureState struct {
	count       uint64
	firstError  string
	latestError string
}

// Open creates the on-disk raft stores and a non-bootstrapped raft.Raft
// instance bound to bindAddr. The first node of a new cluster follows with
// Bootstrap; every subsequent node is added by the leader's AddVoter.
func Open(peerID types.PeerID, bindAddr, dataDir string, catalog CollectionContainer, persist *PersistentState) (*Driver, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, vecerr.NewServiceErrorf("consensus: create data dir: %v", err)
	}
	logOpen(dataDir)

	fsm := NewFSM(catalog, persist)

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(fmt.Sprintf("%d", peerID))

	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, vecerr.NewServiceErrorf("consensus: resolve bind address: %v", err)
	}
	transport, err := raft.NewTCPTransport(bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, vecerr.NewServiceErrorf("consensus: create transport: %v", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(dataDir, 2, os.Stderr)
	if err != nil {
		return nil, vecerr.NewServiceErrorf("consensus: create snapshot store: %v", err)
	}

	wal, err := OpenWAL(dataDir)
	if err != nil {
		return nil, err
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft-stable.db"))
	if err != nil {
		return nil, vecerr.NewServiceErrorf("consensus: create stable store: %v", err)
	}

	r, err := raft.NewRaft(config, fsm, wal, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, vecerr.NewServiceErrorf("consensus: create raft: %v", err)
	}

	return &Driver{
		peerID:       peerID,
		bindAddr:     bindAddr,
		dataDir:      dataDir,
		raft:         r,
		fsm:          fsm,
		wal:          wal,
		peerFailures: make(map[types.PeerID]*peerFailureState),
	}, nil
}

// Bootstrap forms a brand new single-node cluster with this peer as the
// only voter.
func (d *Driver) Bootstrap() error {
	config := raft.Configuration{
		Servers: []raft.Server{{
			ID:      raft.ServerID(fmt.Sprintf("%d", d.peerID)),
			Address: raft.ServerAddress(d.bindAddr),
		}},
	}
	future := d.raft.BootstrapCluster(config)
	if err := future.Error(); err != nil {
		return vecerr.NewServiceErrorf("consensus: bootstrap cluster: %v", err)
	}
	return nil
}

// AddVoter adds peer as a full voting member, called on the current
// leader once the new peer's process is reachable.
func (d *Driver) AddVoter(peer types.PeerID, addr string) error {
	if !d.IsLeader() {
		return vecerr.NewUserError("not_leader", "AddVoter must run on the raft leader")
	}
	future := d.raft.AddVoter(raft.ServerID(fmt.Sprintf("%d", peer)), raft.ServerAddress(addr), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return vecerr.NewServiceErrorf("consensus: add voter %d: %v", peer, err)
	}
	return nil
}

// RemoveServer evicts peer from the raft configuration only. It proposes
// no RemovePeerOp: the catalog's replica state and address book drop the
// peer only when a RemovePeerOp is proposed and applied separately.
func (d *Driver) RemoveServer(peer types.PeerID) error {
	if !d.IsLeader() {
		return vecerr.NewUserError("not_leader", "RemoveServer must run on the raft leader")
	}
	future := d.raft.RemoveServer(raft.ServerID(fmt.Sprintf("%d", peer)), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return vecerr.NewServiceErrorf("consensus: remove server %d: %v", peer, err)
	}
	return nil
}

// IsLeader reports whether this node currently holds raft leadership.
func (d *Driver) IsLeader() bool { return d.raft.State() == raft.Leader }

// LeaderAddr returns the transport address of the current leader, or "".
func (d *Driver) LeaderAddr() string { return string(d.raft.Leader()) }

// Propose serializes op and submits it to the raft log. The returned
// error reflects only local commit of the raft entry (and any ServiceError
// the FSM produced while applying it) — it says nothing about whether a
// quorum has seen it; use ProposeWithAwait for that.
func (d *Driver) Propose(op ConsensusOperation, timeout time.Duration) error {
	if d.fsm.Halted() {
		return vecerr.NewServiceError("consensus: state machine halted after a prior service error; restart required")
	}
	raw, err := cbor.Marshal(op)
	if err != nil {
		return vecerr.NewServiceErrorf("consensus: encode operation: %v", err)
	}
	d.pendingProposals.Add(1)
	defer d.pendingProposals.Add(-1)
	future := d.raft.Apply(raw, timeout)
	if err := future.Error(); err != nil {
		return vecerr.NewServiceErrorf("consensus: apply operation: %v", err)
	}
	if res, ok := future.Response().(applyResult); ok && res.err != nil {
		return res.err
	}
	return nil
}

// ProposeWithAwait submits op and then a following Nop carrying a random
// token, blocking until the Nop itself has been applied locally. Because
// raft applies entries strictly in order, the Nop committing proves op
// already reached this node's state machine with the same quorum
// guarantee raft gives the Nop, turning a local-apply acknowledgement
// into a quorum acknowledgement without a second consensus round trip.
func (d *Driver) ProposeWithAwait(op ConsensusOperation, timeout time.Duration) error {
	if err := d.Propose(op, timeout); err != nil {
		return err
	}
	token := uuid.NewString()
	nop := ConsensusOperation{Kind: OpNop, Nop: &NopOp{Token: token}}
	if err := d.Propose(nop, timeout); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		d.fsm.awaitToken(token)
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return vecerr.NewServiceError("consensus: timed out waiting for confirmation token")
	}
}

// Stats reports a snapshot of raft health for telemetry.
type Stats struct {
	State        string
	LastLogIndex uint64
	AppliedIndex uint64
	Leader       string
	NumPeers     int
	Halted       bool
}

// Stats returns current raft health.
func (d *Driver) Stats() Stats {
	s := Stats{
		State:        d.raft.State().String(),
		LastLogIndex: d.raft.LastIndex(),
		AppliedIndex: d.raft.AppliedIndex(),
		Leader:       string(d.raft.Leader()),
		Halted:       d.fsm.Halted(),
	}
	if cf := d.raft.GetConfiguration(); cf.Error() == nil {
		s.NumPeers = len(cf.Configuration().Servers)
	}
	return s
}

// PeerFailureInfo summarizes message-send failures to one peer since its
// last successful send.
type PeerFailureInfo struct {
	PeerID     types.PeerID
	Count      uint64
	FirstError string
	LastError  string
}

// RecordMessageSendFailure notes a failed send to peer, keeping the first
// error observed since the last success alongside the latest one.
func (d *Driver) RecordMessageSendFailure(peer types.PeerID, err error) {
	d.peerFailuresMu.Lock()
	defer d.peerFailuresMu.Unlock()
	st, ok := d.peerFailures[peer]
	if !ok {
		st = &peerFailureState{}
		d.peerFailures[peer] = st
	}
	st.count++
	st.latestError = err.Error()
	if st.firstError == "" {
		st.firstError = err.Error()
	}
}

// RecordMessageSendSuccess clears peer's failure streak.
func (d *Driver) RecordMessageSendSuccess(peer types.PeerID) {
	d.peerFailuresMu.Lock()
	defer d.peerFailuresMu.Unlock()
	delete(d.peerFailures, peer)
}

// ClusterStatus is a point-in-time view of this node's consensus health:
// hard state, known peers, in-flight proposals, and per-peer send-failure
// streaks, mirroring consensus_state.rs's ClusterInfo.
type ClusterStatus struct {
	ThisPeer         types.PeerID
	RaftState        string
	Leader           string
	LastLogIndex     uint64
	AppliedIndex     uint64
	NumPeers         int
	PendingProposals int64
	PeerFailures     []PeerFailureInfo
	Halted           bool
}

// ClusterStatus snapshots the driver's current consensus health.
func (d *Driver) ClusterStatus() ClusterStatus {
	stats := d.Stats()

	d.peerFailuresMu.Lock()
	failures := make([]PeerFailureInfo, 0, len(d.peerFailures))
	for peer, st := range d.peerFailures {
		failures = append(failures, PeerFailureInfo{
			PeerID:     peer,
			Count:      st.count,
			FirstError: st.firstError,
			LastError:  st.latestError,
		})
	}
	d.peerFailuresMu.Unlock()

	return ClusterStatus{
		ThisPeer:         d.peerID,
		RaftState:        stats.State,
		Leader:           stats.Leader,
		LastLogIndex:     stats.LastLogIndex,
		AppliedIndex:     stats.AppliedIndex,
		NumPeers:         stats.NumPeers,
		PendingProposals: d.pendingProposals.Load(),
		PeerFailures:     failures,
		Halted:           stats.Halted,
	}
}

// Shutdown stops the raft instance and closes the WAL backing its log store.
func (d *Driver) Shutdown() error {
	future := d.raft.Shutdown()
	if err := future.Error(); err != nil {
		return vecerr.NewServiceErrorf("consensus: shutdown: %v", err)
	}
	if err := d.wal.Close(); err != nil {
		return vecerr.NewServiceErrorf("consensus: close wal: %v", err)
	}
	return nil
}

func logOpen(dataDir string) {
	log.Info("consensus: opening raft node at " + dataDir)
}
