package metrics

import (
	"time"

	"github.com/cuemby/vecton/pkg/catalog"
	"github.com/cuemby/vecton/pkg/consensus"
)

// Collector periodically samples raft and catalog state into the gauges
// registered in metrics.go, mirroring a ticker-driven sampling loop
// pulled from a live driver/catalog pair instead of a polled manager.
type Collector struct {
	toc    *catalog.TableOfContent
	driver *consensus.Driver
	stopCh chan struct{}
}

// NewCollector builds a Collector sampling toc and driver.
func NewCollector(toc *catalog.TableOfContent, driver *consensus.Driver) *Collector {
	return &Collector{
		toc:    toc,
		driver: driver,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectCatalogMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectCatalogMetrics() {
	CollectionsTotal.Set(float64(len(c.toc.AllCollections())))
	if c.toc.IsWriteLocked() {
		WriteLockEngaged.Set(1)
	} else {
		WriteLockEngaged.Set(0)
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.driver.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.driver.Stats()
	RaftLogIndex.Set(float64(stats.LastLogIndex))
	RaftAppliedIndex.Set(float64(stats.AppliedIndex))
	RaftPeers.Set(float64(stats.NumPeers))
	if stats.Halted {
		ConsensusHalted.Set(1)
	} else {
		ConsensusHalted.Set(0)
	}
}
