package metrics

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vecton/pkg/catalog"
	"github.com/cuemby/vecton/pkg/consensus"
	"github.com/cuemby/vecton/pkg/types"
)

// freeAddr finds a loopback address the raft transport can bind to.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// newBootstrappedDriver spins up a single-node raft cluster rooted at a
// temp directory, giving the collector a real Driver whose Stats/IsLeader
// paths are safe to call.
func newBootstrappedDriver(t *testing.T) *consensus.Driver {
	t.Helper()
	dataDir := t.TempDir()
	addr := freeAddr(t)

	persist, err := consensus.Load(dataDir, types.PeerID(1))
	require.NoError(t, err)

	toc := catalog.New(types.PeerID(1))
	d, err := consensus.Open(types.PeerID(1), addr, dataDir, toc, persist)
	require.NoError(t, err)
	require.NoError(t, d.Bootstrap())

	require.Eventually(t, d.IsLeader, 2*time.Second, 10*time.Millisecond, "single node must become leader")
	return d
}

func TestCollectCatalogMetrics(t *testing.T) {
	toc := catalog.New(types.PeerID(1))
	d := newBootstrappedDriver(t)
	defer d.Shutdown()

	c := NewCollector(toc, d)
	c.collect()

	require.Equal(t, float64(0), testutil.ToFloat64(CollectionsTotal))

	toc.SetLocks(true, "maintenance")
	c.collect()
	require.Equal(t, float64(1), testutil.ToFloat64(WriteLockEngaged))

	toc.SetLocks(false, "")
	c.collect()
	require.Equal(t, float64(0), testutil.ToFloat64(WriteLockEngaged))
}

func TestCollectRaftMetricsReflectsLeadership(t *testing.T) {
	toc := catalog.New(types.PeerID(1))
	d := newBootstrappedDriver(t)
	defer d.Shutdown()

	c := NewCollector(toc, d)
	c.collect()

	require.Equal(t, float64(1), testutil.ToFloat64(RaftLeader))
	require.Equal(t, float64(1), testutil.ToFloat64(RaftPeers))
}

func TestStartAndStopDoesNotPanic(t *testing.T) {
	toc := catalog.New(types.PeerID(1))
	d := newBootstrappedDriver(t)
	defer d.Shutdown()

	c := NewCollector(toc, d)
	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}
