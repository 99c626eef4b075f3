package analysis

import (
	"context"
	"sync/atomic"
)

type record struct{ log, line string }

// Collector hands harvested lines to a HarvestStats without blocking the
// writer. Lines that do not fit in the queue are counted and dropped.
type Collector struct {
	stats   *HarvestStats
	queue   chan record
	dropped atomic.Uint64
}

// NewCollector returns a collector with room for size pending lines.
func NewCollector(stats *HarvestStats, size int) *Collector {
	if size <= 0 {
		size = 256
	}
	return &Collector{stats: stats, queue: make(chan record, size)}
}

// Observe queues one line. It never blocks and matches harvestlog.Observer.
func (c *Collector) Observe(logName, line string) {
	select {
	case c.queue <- record{logName, line}:
	default:
		c.dropped.Add(1)
	}
}

// Run drains the queue into the stats until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-c.queue:
			c.stats.Record(r.log, r.line)
		}
	}
}

// Dropped returns how many lines were discarded.
func (c *Collector) Dropped() uint64 { return c.dropped.Load() }

// Stats returns the aggregate the collector feeds.
func (c *Collector) Stats() *HarvestStats { return c.stats }
