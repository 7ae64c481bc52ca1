// Package scheduler periodically reconciles each collection's actual
// shard replica placement against its desired distribution, proposing
// shard transfers through consensus to close the gap. Grounded on the
// original per-service reconcile-loop shape (ticker-driven, diff desired
// vs actual, act on the delta) adapted from service/container placement
// to shard/replica placement.
package scheduler

import (
	"strconv"
	"time"

	"github.com/cuemby/vecton/pkg/catalog"
	"github.com/cuemby/vecton/pkg/consensus"
	"github.com/cuemby/vecton/pkg/log"
	"github.com/cuemby/vecton/pkg/metrics"
	"github.com/cuemby/vecton/pkg/types"
)

// Interval is the default reconcile cadence.
const Interval = 5 * time.Second

// Rebalancer owns the periodic shard-placement reconcile loop. It only
// runs meaningfully on the raft leader; proposals from a follower are
// rejected by consensus, so Start is safe to call on every node.
type Rebalancer struct {
	toc    *catalog.TableOfContent
	driver *consensus.Driver
	stopCh chan struct{}
}

// New builds a Rebalancer over toc, proposing transfers through driver.
func New(toc *catalog.TableOfContent, driver *consensus.Driver) *Rebalancer {
	return &Rebalancer{toc: toc, driver: driver, stopCh: make(chan struct{})}
}

// Start begins the reconcile loop in a new goroutine.
func (r *Rebalancer) Start() {
	go r.run()
}

// Stop ends the reconcile loop.
func (r *Rebalancer) Stop() {
	close(r.stopCh)
}

func (r *Rebalancer) run() {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !r.driver.IsLeader() {
				continue
			}
			if err := r.reconcile(); err != nil {
				log.Error("scheduler: reconcile cycle failed: " + err.Error())
			}
		case <-r.stopCh:
			return
		}
	}
}

// reconcile walks every collection once and starts a transfer for each
// shard that is short of its configured replication factor.
func (r *Rebalancer) reconcile() error {
	for _, name := range r.toc.AllCollections() {
		cfg, err := r.toc.CollectionConfig(name)
		if err != nil {
			continue
		}
		shardIDs, err := r.toc.ShardIDs(name)
		if err != nil {
			continue
		}
		for _, shardID := range shardIDs {
			if err := r.reconcileShard(name, shardID, cfg.ReplicationFactor); err != nil {
				log.Error("scheduler: reconcile shard failed: " + err.Error())
			}
		}
	}
	return nil
}

func (r *Rebalancer) reconcileShard(collection string, shardID types.ShardID, replicationFactor uint32) error {
	state, err := r.toc.ShardState(collection, shardID)
	if err != nil {
		return err
	}
	activePeers := state.ActivePeers()
	if uint32(len(activePeers)) >= replicationFactor {
		return nil
	}

	from := r.pickSource(activePeers)
	if from == 0 && len(activePeers) == 0 {
		return nil // no live replica to copy from; cannot self-heal
	}
	to := r.pickTarget(state)
	if to == 0 {
		return nil // no peer without a replica is available
	}

	transfer := types.Transfer{ShardID: shardID, From: from, To: to, Method: types.TransferStreamRecords}
	if err := r.toc.HandleTransferStart(r.driver, transfer, r.runTransport); err != nil {
		return err
	}

	metrics.ShardTransfersStarted.Inc()
	log.Info("scheduler: started transfer of shard " + strconv.FormatUint(uint64(shardID), 10) + " of " + collection)
	return nil
}

// runTransport is handle_transfer's transport step. No peer-to-peer data
// channel is wired up here (raft's own NetworkTransport only carries
// consensus traffic, see the consensus package); completing immediately
// means a started transfer's Finish proposal follows right behind its
// Start, which is still the correct sequence once real shard streaming
// replaces this stub.
func (r *Rebalancer) runTransport() error {
	return nil
}

func (r *Rebalancer) pickSource(activePeers []types.PeerID) types.PeerID {
	if len(activePeers) == 0 {
		return 0
	}
	return activePeers[0]
}

func (r *Rebalancer) pickTarget(state types.ShardState) types.PeerID {
	candidates := append([]types.PeerID{r.toc.ThisPeer()}, r.toc.Peers()...)
	for _, p := range candidates {
		if _, hasReplica := state.Replicas[p]; !hasReplica {
			return p
		}
	}
	return 0
}
