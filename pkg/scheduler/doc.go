/*
Package scheduler implements the shard-replica rebalancer.

The rebalancer periodically compares each collection's configured
replication factor against the number of Active replicas each shard
actually has, and closes the gap by proposing shard transfers through
consensus. It runs as a background ticker on every node but only acts
while that node holds raft leadership, since only the leader's proposals
are guaranteed to be durably ordered.

# Architecture

	┌─────────────────────────────────────────────────────────┐
	│                  Rebalancer Loop                         │
	│                 (every 5 seconds)                        │
	└───────────────────────┬───────────────────────────────────┘
	                        │
	                        ▼ (skip unless leader)
	┌─────────────────────────────────────────────────────────┐
	│  For each collection, for each shard:                     │
	│    active := len(ShardState.ActivePeers())                │
	│    if active >= ReplicationFactor: continue                │
	│    from := pickSource(activePeers)                         │
	│    to   := pickTarget(shardState)                          │
	│    propose StartShardTransferOp{shardID, from, to}         │
	└─────────────────────────────────────────────────────────┘

# Core Components

Rebalancer is the scheduling engine:

	r := scheduler.New(toc, driver)
	r.Start()
	defer r.Stop()

It holds no state besides the catalog and consensus driver references: the
current replica placement is always read fresh from the catalog, so a
crash loses nothing a restart won't immediately recompute.

# Node Selection

pickSource chooses an existing Active replica to copy from. pickTarget
scans this peer first, then the catalog's known peers in sorted order,
and picks the first one without an existing replica entry for that
shard. Neither function consults load or capacity; shard transfers are
rare enough relative to request traffic that a simple first-fit is
sufficient.

# Integration Points

  - pkg/catalog: source of collection configs and shard replica state;
    HandleTransferStart proposes each transfer
  - pkg/consensus: Driver.IsLeader gates action; the driver is handed to
    HandleTransferStart, which proposes through it
  - pkg/metrics: ShardTransfersStarted is incremented on every proposal

# See Also

  - pkg/consensus - the replicated log the rebalancer proposes through
  - pkg/catalog - the replica placement state being reconciled
*/
package scheduler
