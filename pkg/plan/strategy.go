package plan

import "fmt"

// Strategy decides where a phase stops for operator confirmation
type Strategy interface {
	Name() string
	HasDecisionPoint(phase *Phase, unit *Unit) bool
}

// AutoStrategy rolls every unit as soon as resources are available
type AutoStrategy struct{}

// Name returns "auto"
func (AutoStrategy) Name() string { return "auto" }

// HasDecisionPoint is always false
func (AutoStrategy) HasDecisionPoint(*Phase, *Unit) bool { return false }

// StageStrategy requires an operator "continue" before each unit starts
type StageStrategy struct{}

// Name returns "stage"
func (StageStrategy) Name() string { return "stage" }

// HasDecisionPoint is true for every unit
func (StageStrategy) HasDecisionPoint(*Phase, *Unit) bool { return true }

// ParseStrategy maps a configured strategy name onto a Strategy
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "auto":
		return AutoStrategy{}, nil
	case "stage":
		return StageStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown update strategy %q (want auto or stage)", name)
	}
}
