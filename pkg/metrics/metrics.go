package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecton_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecton_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecton_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecton_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	ConsensusHalted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecton_consensus_halted",
			Help: "Whether the state machine has halted after a service error (1 = halted, 0 = applying)",
		},
	)

	ConsensusApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vecton_consensus_apply_duration_seconds",
			Help:    "Time taken for the state machine to apply one committed log entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	ConsensusCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vecton_consensus_commit_duration_seconds",
			Help:    "Time taken for a proposed operation to commit to the raft log",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Catalog metrics
	CollectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecton_collections_total",
			Help: "Total number of collections in the catalog",
		},
	)

	WriteLockEngaged = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecton_write_lock_engaged",
			Help: "Whether the cluster write lock is currently engaged (1 = locked, 0 = unlocked)",
		},
	)

	// Shard transfer metrics
	ShardTransfersStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vecton_shard_transfers_started_total",
			Help: "Total number of shard transfers started",
		},
	)

	ShardTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecton_shard_transfers_total",
			Help: "Total number of shard transfers by outcome",
		},
		[]string{"outcome"},
	)

	ShardTransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vecton_shard_transfer_duration_seconds",
			Help:    "Time taken to complete a shard transfer in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Update-operation metrics
	UpdateOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecton_update_operations_total",
			Help: "Total number of update operations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	UpdateOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vecton_update_operation_duration_seconds",
			Help:    "Time taken to apply an update operation to a shard",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(ConsensusHalted)
	prometheus.MustRegister(ConsensusApplyDuration)
	prometheus.MustRegister(ConsensusCommitDuration)
	prometheus.MustRegister(CollectionsTotal)
	prometheus.MustRegister(WriteLockEngaged)
	prometheus.MustRegister(ShardTransfersStarted)
	prometheus.MustRegister(ShardTransfersTotal)
	prometheus.MustRegister(ShardTransferDuration)
	prometheus.MustRegister(UpdateOperationsTotal)
	prometheus.MustRegister(UpdateOperationDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
