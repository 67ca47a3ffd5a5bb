package reconciler

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cuemby/brokerfleet/pkg/log"
	"github.com/cuemby/brokerfleet/pkg/metrics"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultBatchSize bounds the task ids sent in one Reconcile call
const DefaultBatchSize = 50

// TaskLister lists the task records the reconciler asks about
type TaskLister interface {
	ListTaskInfos() ([]*types.TaskInfo, error)
}

// Cluster answers reconciliation requests by re-sending task statuses
type Cluster interface {
	Reconcile(taskIDs []string)
}

// Reconciler asks the cluster to re-report every recorded task. The answers
// carry REASON_RECONCILIATION, refresh persisted statuses and never move a unit.
type Reconciler struct {
	tasks     TaskLister
	cluster   Cluster
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithBatchSize overrides DefaultBatchSize
func WithBatchSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewReconciler(tasks TaskLister, cluster Cluster, interval time.Duration, opts ...Option) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	r := &Reconciler{
		tasks:     tasks,
		cluster:   cluster,
		interval:  interval,
		batchSize: DefaultBatchSize,
		logger:    log.WithComponent("reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reconciles once, then every interval until ctx is done.
// A failed pass is logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Reconcile(); err != nil {
			r.logger.Error().Err(err).Msg("Reconciliation failed")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// Reconcile runs one pass over the store, in task id order
func (r *Reconciler) Reconcile() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.ReconciliationCyclesTotal.Inc()

	infos, err := r.tasks.ListTaskInfos()
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
	}
	slices.Sort(ids)

	for batch := range slices.Chunk(ids, r.batchSize) {
		r.cluster.Reconcile(batch)
	}
	if len(ids) > 0 {
		r.logger.Debug().Int("tasks", len(ids)).Msg("Requested reconciliation")
	}
	return nil
}
