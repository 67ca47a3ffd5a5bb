package plan

import (
	"errors"
	"fmt"

	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/google/uuid"
)

var (
	// ErrPhaseNotFound is returned when a phase id does not belong to the plan
	ErrPhaseNotFound = errors.New("phase not found")
	// ErrUnitNotFound is returned when a unit id does not belong to the phase
	ErrUnitNotFound = errors.New("unit not found")
)

// Phase is one ordered rollout wave. Membership is fixed at construction.
type Phase struct {
	id       string
	name     string
	units    []*Unit
	strategy Strategy
}

// NewPhase creates a phase over units. A nil strategy means AutoStrategy.
func NewPhase(name string, units []*Unit, strategy Strategy) *Phase {
	if strategy == nil {
		strategy = AutoStrategy{}
	}
	return &Phase{
		id:       uuid.New().String(),
		name:     name,
		units:    units,
		strategy: strategy,
	}
}

// ID returns the phase's random UUID
func (p *Phase) ID() string { return p.id }

// Name returns "Update to: <target>"
func (p *Phase) Name() string { return p.name }

// Strategy returns the decision-point policy of the phase
func (p *Phase) Strategy() Strategy { return p.strategy }

// Units returns the phase members in rollout order
func (p *Phase) Units() []*Unit {
	out := make([]*Unit, len(p.units))
	copy(out, p.units)
	return out
}

// Status aggregates member statuses
func (p *Phase) Status() types.Status {
	statuses := make([]types.Status, len(p.units))
	for i, u := range p.units {
		statuses[i] = u.Status()
	}
	return Aggregate(statuses...)
}

// IsComplete reports whether every unit is complete
func (p *Phase) IsComplete() bool {
	return p.Status() == types.StatusComplete
}

// Unit looks a member up by id
func (p *Phase) Unit(id string) (*Unit, error) {
	for _, u := range p.units {
		if u.ID() == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s in phase %s", ErrUnitNotFound, id, p.name)
}

// CurrentUnit returns the first member that is not complete, or nil
func (p *Phase) CurrentUnit() *Unit {
	for _, u := range p.units {
		if !u.IsComplete() {
			return u
		}
	}
	return nil
}

// HasDecisionPoint reports whether u needs operator confirmation before it proceeds
func (p *Phase) HasDecisionPoint(u *Unit) bool {
	return p.strategy.HasDecisionPoint(p, u)
}

// Restart restarts the member with the given id
func (p *Phase) Restart(unitID string) error {
	u, err := p.Unit(unitID)
	if err != nil {
		return err
	}
	u.Restart()
	return nil
}

// ForceComplete force-completes the member with the given id
func (p *Phase) ForceComplete(unitID string) error {
	u, err := p.Unit(unitID)
	if err != nil {
		return err
	}
	return u.ForceComplete()
}

// Update forwards a status event to every member
func (p *Phase) Update(status *types.TaskStatus) {
	for _, u := range p.units {
		u.Update(status)
	}
}
