package plan

import (
	"errors"
	"fmt"
)

// Config describes the rollout a plan must carry out
type Config struct {
	TargetConfigName string
	BrokerCount      int
	Strategy         Strategy
}

// PhaseName returns the name of the broker update phase for a target
func PhaseName(targetConfigName string) string {
	return "Update to: " + targetConfigName
}

// Build creates a plan with one update phase covering brokers 0..BrokerCount-1
func Build(cfg Config, deps Deps) (*Plan, error) {
	if cfg.TargetConfigName == "" {
		return nil, errors.New("target config name is required")
	}
	if cfg.BrokerCount <= 0 {
		return nil, fmt.Errorf("broker count must be positive, got %d", cfg.BrokerCount)
	}
	if deps.State == nil || deps.Provider == nil || deps.Driver == nil {
		return nil, errors.New("task state, requirement provider and driver are required")
	}

	units := make([]*Unit, 0, cfg.BrokerCount)
	for id := 0; id < cfg.BrokerCount; id++ {
		units = append(units, NewUnit(id, cfg.TargetConfigName, deps))
	}

	phase := NewPhase(PhaseName(cfg.TargetConfigName), units, cfg.Strategy)
	return NewPlan([]*Phase{phase}, deps.Publisher), nil
}
