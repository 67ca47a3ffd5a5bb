package deploy

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cuemby/brokerfleet/pkg/events"
	"github.com/cuemby/brokerfleet/pkg/log"
	"github.com/cuemby/brokerfleet/pkg/metrics"
	"github.com/cuemby/brokerfleet/pkg/plan"
	"github.com/cuemby/brokerfleet/pkg/storage"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/rs/zerolog"
)

// TargetKey is the config-bucket key the adopted target is recorded under
const TargetKey = "target_config_name"

// ConfigStore records the adopted rollout target
type ConfigStore interface {
	PutConfig(key, value string) error
	GetConfig(key string) (string, error)
}

// Deployer owns the plan currently being executed and replaces it when a
// new target configuration is adopted
type Deployer struct {
	deps        plan.Deps
	store       ConfigStore
	brokerCount int
	strategy    plan.Strategy
	logger      zerolog.Logger

	// adoptMu serializes Adopt; readers go through current without locking
	adoptMu sync.Mutex
	current atomic.Pointer[plan.Plan]
}

// NewDeployer creates a deployer with no plan
func NewDeployer(deps plan.Deps, store ConfigStore, brokerCount int, strategy plan.Strategy) *Deployer {
	if deps.Publisher == nil {
		deps.Publisher = events.Discard
	}
	return &Deployer{
		deps:        deps,
		store:       store,
		brokerCount: brokerCount,
		strategy:    strategy,
		logger:      log.WithComponent("deployer"),
	}
}

// Plan returns the active plan, or nil before the first Adopt
func (d *Deployer) Plan() *plan.Plan {
	return d.current.Load()
}

// Adopt builds a plan rolling every broker onto target and makes it active.
// Adopting the target of the active plan again is a no-op.
func (d *Deployer) Adopt(target string) (*plan.Plan, error) {
	d.adoptMu.Lock()
	defer d.adoptMu.Unlock()

	if p := d.current.Load(); p != nil && phaseTarget(p) == target {
		return p, nil
	}

	p, err := plan.Build(plan.Config{
		TargetConfigName: target,
		BrokerCount:      d.brokerCount,
		Strategy:         d.strategy,
	}, d.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build plan for %s: %w", target, err)
	}

	if err := d.store.PutConfig(TargetKey, target); err != nil {
		return nil, fmt.Errorf("failed to record target %s: %w", target, err)
	}

	d.current.Store(p)
	d.logger.Info().
		Str("plan_id", p.ID()).
		Str("target", target).
		Str("status", string(p.Status())).
		Msg("Adopted plan")
	d.deps.Publisher.Publish(&events.Event{
		Type:     events.EventPlanAdopted,
		Message:  "rolling brokers to " + target,
		Metadata: map[string]string{"plan_id": p.ID(), "target": target},
	})
	return p, nil
}

// Resume adopts the target recorded by a previous run, if any
func (d *Deployer) Resume() (*plan.Plan, bool, error) {
	target, err := d.store.GetConfig(TargetKey)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && target == "") {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	p, err := d.Adopt(target)
	return p, err == nil, err
}

func phaseTarget(p *plan.Plan) string {
	for _, ph := range p.Phases() {
		if units := ph.Units(); len(units) > 0 {
			return units[0].TargetConfigName()
		}
	}
	return ""
}

// Snapshot feeds the metrics collector
func (d *Deployer) Snapshot() (metrics.RolloutSnapshot, bool) {
	p := d.current.Load()
	if p == nil {
		return metrics.RolloutSnapshot{}, false
	}
	return p.Snapshot(), true
}

// DeploymentStatus summarizes the active rollout
type DeploymentStatus struct {
	PlanID      string
	Target      string
	Strategy    string
	Status      types.Status
	Interrupted bool
	TotalUnits  int
	Units       map[types.Status]int // Status -> Count
}

// GetDeploymentStatus returns the status of the active rollout
func (d *Deployer) GetDeploymentStatus() (*DeploymentStatus, error) {
	p := d.current.Load()
	if p == nil {
		return nil, errors.New("no rollout adopted")
	}

	snap := p.Snapshot()
	status := &DeploymentStatus{
		PlanID:      p.ID(),
		Target:      phaseTarget(p),
		Strategy:    "auto",
		Status:      snap.PlanStatus,
		Interrupted: snap.Interrupted,
		Units:       snap.Units,
	}
	if d.strategy != nil {
		status.Strategy = d.strategy.Name()
	}
	for _, n := range snap.Units {
		status.TotalUnits += n
	}
	return status, nil
}
