package plan

import (
	"fmt"
	"sync"

	"github.com/cuemby/brokerfleet/pkg/events"
	"github.com/cuemby/brokerfleet/pkg/log"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Plan is an ordered sequence of phases plus the operator pause flag.
// Topology is immutable; only the pause and approval state is guarded by mu.
type Plan struct {
	id        string
	phases    []*Phase
	publisher events.Publisher
	logger    zerolog.Logger

	mu          sync.RWMutex
	interrupted bool
	approved    map[string]bool
}

// NewPlan creates a plan over phases. A nil publisher discards events.
func NewPlan(phases []*Phase, publisher events.Publisher) *Plan {
	if publisher == nil {
		publisher = events.Discard
	}
	id := uuid.New().String()
	return &Plan{
		id:        id,
		phases:    phases,
		publisher: publisher,
		logger:    log.WithPlanID(id).With().Str("component", "plan").Logger(),
		approved:  make(map[string]bool),
	}
}

// ID returns the plan's UUID
func (p *Plan) ID() string { return p.id }

// Phases returns the phases in rollout order
func (p *Plan) Phases() []*Phase {
	out := make([]*Phase, len(p.phases))
	copy(out, p.phases)
	return out
}

// Phase looks a phase up by id
func (p *Plan) Phase(id string) (*Phase, error) {
	for _, ph := range p.phases {
		if ph.ID() == id {
			return ph, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPhaseNotFound, id)
}

// Status aggregates phase statuses
func (p *Plan) Status() types.Status {
	statuses := make([]types.Status, len(p.phases))
	for i, ph := range p.phases {
		statuses[i] = ph.Status()
	}
	return Aggregate(statuses...)
}

// IsComplete reports whether every phase is complete
func (p *Plan) IsComplete() bool {
	return p.Status() == types.StatusComplete
}

// CurrentPhase returns the first phase that is not complete, or nil
func (p *Plan) CurrentPhase() *Phase {
	for _, ph := range p.phases {
		if !ph.IsComplete() {
			return ph
		}
	}
	return nil
}

// CurrentUnit returns the first incomplete unit of the current phase, or nil.
// It is recomputed on every call.
func (p *Plan) CurrentUnit() *Unit {
	ph := p.CurrentPhase()
	if ph == nil {
		return nil
	}
	return ph.CurrentUnit()
}

// IsInterrupted reports whether the operator paused the plan
func (p *Plan) IsInterrupted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interrupted
}

// Interrupt pauses the plan. Unit and phase statuses are untouched.
func (p *Plan) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interrupted {
		return
	}
	p.interrupted = true
	p.logger.Info().Msg("Plan interrupted")
	p.publisher.Publish(&events.Event{
		Type:     events.EventPlanInterrupted,
		Message:  "plan interrupted",
		Metadata: map[string]string{"plan_id": p.id},
	})
}

// Proceed resumes the plan and clears the decision point of the current unit
func (p *Plan) Proceed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u := p.CurrentUnit(); u != nil {
		p.approved[u.ID()] = true
	}

	if !p.interrupted {
		return
	}
	p.interrupted = false
	p.logger.Info().Msg("Plan proceeding")
	p.publisher.Publish(&events.Event{
		Type:     events.EventPlanProceeded,
		Message:  "plan proceeding",
		Metadata: map[string]string{"plan_id": p.id},
	})
}

// NextUnit returns the unit the driver may act on, or nil when the plan is
// paused, complete, or waiting at a decision point. Reaching an unapproved
// decision point pauses the plan until the operator proceeds.
func (p *Plan) NextUnit() *Unit {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interrupted {
		return nil
	}

	ph := p.CurrentPhase()
	if ph == nil {
		return nil
	}
	u := ph.CurrentUnit()
	if u == nil {
		return nil
	}

	if u.IsPending() && ph.HasDecisionPoint(u) && !p.approved[u.ID()] {
		p.interrupted = true
		p.logger.Info().Str("unit", u.Name()).Msg("Reached decision point, waiting for operator")
		p.publisher.Publish(&events.Event{
			Type:     events.EventPlanDecisionPoint,
			Message:  u.Name() + " is waiting for confirmation",
			Metadata: map[string]string{"plan_id": p.id, "unit_id": u.ID(), "phase_id": ph.ID()},
		})
		return nil
	}

	return u
}

// Restart restarts one unit. Unknown ids leave the plan untouched.
func (p *Plan) Restart(phaseID, unitID string) error {
	ph, err := p.Phase(phaseID)
	if err != nil {
		return err
	}
	return ph.Restart(unitID)
}

// ForceComplete force-completes one unit. Unknown ids leave the plan untouched.
func (p *Plan) ForceComplete(phaseID, unitID string) error {
	ph, err := p.Phase(phaseID)
	if err != nil {
		return err
	}
	return ph.ForceComplete(unitID)
}

// Update routes a status event to every unit of every phase
func (p *Plan) Update(status *types.TaskStatus) {
	for _, ph := range p.phases {
		ph.Update(status)
	}
}
