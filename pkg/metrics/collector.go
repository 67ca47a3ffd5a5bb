package metrics

import (
	"time"

	"github.com/cuemby/brokerfleet/pkg/types"
)

// RolloutSnapshot is a point-in-time view of the live plan
type RolloutSnapshot struct {
	PlanStatus  types.Status
	Interrupted bool
	Units       map[types.Status]int
}

// SnapshotFunc returns the current rollout snapshot, or false when no plan is live
type SnapshotFunc func() (RolloutSnapshot, bool)

var allStatuses = []types.Status{types.StatusPending, types.StatusInProgress, types.StatusComplete}

// Collector periodically copies rollout state into gauges
type Collector struct {
	snapshot SnapshotFunc
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(snapshot SnapshotFunc) *Collector {
	return &Collector{
		snapshot: snapshot,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
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
	snap, ok := c.snapshot()
	if !ok {
		UnitsTotal.Reset()
		PlanStatus.Reset()
		PlanInterrupted.Set(0)
		return
	}

	for _, s := range allStatuses {
		UnitsTotal.WithLabelValues(string(s)).Set(float64(snap.Units[s]))

		v := 0.0
		if snap.PlanStatus == s {
			v = 1
		}
		PlanStatus.WithLabelValues(string(s)).Set(v)
	}

	if snap.Interrupted {
		PlanInterrupted.Set(1)
	} else {
		PlanInterrupted.Set(0)
	}
}
