/*
Package metrics provides Prometheus metrics collection and exposition for vecton.

The metrics package defines and registers all vecton metrics using the Prometheus
client library, providing observability into raft health, catalog size, shard
transfer activity, and update-operation throughput. Metrics are exposed via an
HTTP endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Raft: Leader status, log index, peers      │          │
	│  │  Consensus: apply / commit duration          │          │
	│  │  Catalog: collection count, write lock       │          │
	│  │  Transfers: started, outcome, duration       │          │
	│  │  Update ops: count and duration by kind      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Raft Metrics:

vecton_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is Raft leader (1=leader, 0=follower)

vecton_raft_peers_total:
  - Type: Gauge
  - Description: Total Raft peers in the cluster

vecton_raft_log_index / vecton_raft_applied_index:
  - Type: Gauge
  - Description: Current and last-applied Raft log index

vecton_consensus_apply_duration_seconds:
  - Type: Histogram
  - Description: Time for the state machine to apply one committed entry

vecton_consensus_commit_duration_seconds:
  - Type: Histogram
  - Description: Time for a proposed operation to commit to the raft log

Catalog Metrics:

vecton_collections_total:
  - Type: Gauge
  - Description: Total number of collections in the catalog

vecton_write_lock_engaged:
  - Type: Gauge
  - Description: Whether the cluster write lock is engaged

Shard Transfer Metrics:

vecton_shard_transfers_started_total:
  - Type: Counter
  - Description: Total shard transfers started by the rebalancer

vecton_shard_transfers_total{outcome}:
  - Type: Counter
  - Description: Total shard transfers by outcome (finished, aborted)

vecton_shard_transfer_duration_seconds:
  - Type: Histogram
  - Description: Time to complete a shard transfer

Update Operation Metrics:

vecton_update_operations_total{kind, outcome}:
  - Type: Counter
  - Description: Total update operations by kind and outcome

vecton_update_operation_duration_seconds{kind}:
  - Type: Histogram
  - Description: Time to apply an update operation to a shard

# Usage

	import "github.com/cuemby/vecton/pkg/metrics"

	timer := metrics.NewTimer()
	// ... apply an update operation ...
	timer.ObserveDurationVec(metrics.UpdateOperationDuration, "point_upsert")
	metrics.UpdateOperationsTotal.WithLabelValues("point_upsert", "ok").Inc()

	// Expose metrics endpoint
	http.Handle("/metrics", metrics.Handler())
	http.ListenAndServe(":9090", nil)

# Integration Points

This package integrates with:

  - pkg/consensus: Collector samples the raft gauges from Driver.Stats
  - pkg/catalog: Collector samples the collection count and write-lock gauges
  - pkg/scheduler: records shard transfers started

The consensus apply/commit duration, shard-transfer total/duration and
update-operation metrics are registered, but no package in this
repository records them.

# Design Patterns

Package Init Registration:
  - All metrics registered in init(); MustRegister panics on duplicate registration.

Timer Pattern:
  - Create a timer at operation start, observe duration into a histogram (vec) at the end.

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
