package plan

import (
	"errors"
	"fmt"

	"github.com/cuemby/brokerfleet/pkg/metrics"
	"github.com/cuemby/brokerfleet/pkg/types"
)

// ErrUnknownCommand is returned for a cmd outside the recognized set of its scope
var ErrUnknownCommand = errors.New("unrecognized cmd")

// Command is an operator command
type Command string

const (
	CmdRestart       Command = "restart"
	CmdForceComplete Command = "forceComplete"
	CmdContinue      Command = "continue"
	CmdInterrupt     Command = "interrupt"
)

// Scope says what a command targets
type Scope int

const (
	ScopeUnit Scope = iota
	ScopePlan
)

func (s Scope) String() string {
	if s == ScopePlan {
		return "plan"
	}
	return "unit"
}

// ParseCommand validates raw against the commands recognized at scope
func ParseCommand(scope Scope, raw string) (Command, error) {
	cmd := Command(raw)
	switch scope {
	case ScopeUnit:
		if cmd == CmdRestart || cmd == CmdForceComplete {
			return cmd, nil
		}
	case ScopePlan:
		if cmd == CmdContinue || cmd == CmdInterrupt {
			return cmd, nil
		}
	}
	metrics.CommandsTotal.WithLabelValues("unknown", "rejected").Inc()
	return "", fmt.Errorf("%w: %q at %s scope", ErrUnknownCommand, raw, scope)
}

// ExecuteUnitCommand runs a unit-scoped command
func (p *Plan) ExecuteUnitCommand(cmd Command, phaseID, unitID string) error {
	var err error
	switch cmd {
	case CmdRestart:
		err = p.Restart(phaseID, unitID)
	case CmdForceComplete:
		err = p.ForceComplete(phaseID, unitID)
	default:
		err = fmt.Errorf("%w: %q at unit scope", ErrUnknownCommand, cmd)
	}
	recordCommand(cmd, err)
	return err
}

// ExecutePlanCommand runs a plan-scoped command
func (p *Plan) ExecutePlanCommand(cmd Command) error {
	var err error
	switch cmd {
	case CmdContinue:
		p.Proceed()
	case CmdInterrupt:
		p.Interrupt()
	default:
		err = fmt.Errorf("%w: %q at plan scope", ErrUnknownCommand, cmd)
	}
	recordCommand(cmd, err)
	return err
}

func recordCommand(cmd Command, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.CommandsTotal.WithLabelValues(string(cmd), result).Inc()
}

// PlanView summarizes the plan for the status endpoint
type PlanView struct {
	PhaseCount int          `json:"phase_count"`
	Status     types.Status `json:"status"`
}

// PhaseView describes the current phase
type PhaseView struct {
	Name       string       `json:"name"`
	ID         string       `json:"id"`
	BlockCount int          `json:"block_count"`
	Status     types.Status `json:"status"`
}

// UnitView describes the current unit
type UnitView struct {
	Name    string       `json:"name"`
	ID      string       `json:"id"`
	Status  types.Status `json:"status"`
	Message string       `json:"message"`
}

// StatusView is the cursor projection; absent parts are nil
type StatusView struct {
	Plan  *PlanView
	Phase *PhaseView
	Unit  *UnitView
}

// View projects the plan and its cursor
func (p *Plan) View() StatusView {
	view := StatusView{
		Plan: &PlanView{PhaseCount: len(p.phases), Status: p.Status()},
	}

	ph := p.CurrentPhase()
	if ph == nil {
		return view
	}
	view.Phase = &PhaseView{
		Name:       ph.Name(),
		ID:         ph.ID(),
		BlockCount: len(ph.units),
		Status:     ph.Status(),
	}

	u := ph.CurrentUnit()
	if u == nil {
		return view
	}
	view.Unit = &UnitView{
		Name:    u.Name(),
		ID:      u.ID(),
		Status:  u.Status(),
		Message: u.Message(),
	}
	return view
}

// UnitSummary is one unit in the full summary
type UnitSummary struct {
	Name   string       `json:"name" yaml:"name"`
	ID     string       `json:"id" yaml:"id"`
	Status types.Status `json:"status" yaml:"status"`
	Decide bool         `json:"decide" yaml:"decide"`
}

// PhaseSummary is one phase in the full summary
type PhaseSummary struct {
	Name   string        `json:"name" yaml:"name"`
	ID     string        `json:"id" yaml:"id"`
	Status types.Status  `json:"status" yaml:"status"`
	Blocks []UnitSummary `json:"blocks" yaml:"blocks"`
}

// Summary walks every phase and unit
type Summary struct {
	Status types.Status   `json:"status" yaml:"status"`
	Phases []PhaseSummary `json:"phases" yaml:"phases"`
}

// Summary projects every phase and unit, including decision-point flags
func (p *Plan) Summary() Summary {
	s := Summary{Status: p.Status(), Phases: make([]PhaseSummary, 0, len(p.phases))}
	for _, ph := range p.phases {
		ps := PhaseSummary{
			Name:   ph.Name(),
			ID:     ph.ID(),
			Status: ph.Status(),
			Blocks: make([]UnitSummary, 0, len(ph.units)),
		}
		for _, u := range ph.units {
			ps.Blocks = append(ps.Blocks, UnitSummary{
				Name:   u.Name(),
				ID:     u.ID(),
				Status: u.Status(),
				Decide: ph.HasDecisionPoint(u),
			})
		}
		s.Phases = append(s.Phases, ps)
	}
	return s
}

// Snapshot reduces the plan to the counts the metrics collector exports
func (p *Plan) Snapshot() metrics.RolloutSnapshot {
	snap := metrics.RolloutSnapshot{
		PlanStatus:  p.Status(),
		Interrupted: p.IsInterrupted(),
		Units:       make(map[types.Status]int),
	}
	for _, ph := range p.phases {
		for _, u := range ph.units {
			snap.Units[u.Status()]++
		}
	}
	return snap
}
