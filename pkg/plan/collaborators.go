package plan

import (
	"github.com/cuemby/brokerfleet/pkg/events"
	"github.com/cuemby/brokerfleet/pkg/types"
)

// TaskState answers questions about what is currently deployed for a broker.
// Both lookups return a nil record and a nil error when nothing is known.
type TaskState interface {
	TaskInfoForBroker(brokerID int) (*types.TaskInfo, error)
	TaskStatusForBroker(brokerID int) (*types.TaskStatus, error)
}

// RequirementProvider builds the resource requirements a unit hands to offer matching
type RequirementProvider interface {
	NewRequirement(targetConfigName string, brokerID int) (*types.OfferRequirement, error)
	UpdateRequirement(targetConfigName string, current *types.TaskInfo) (*types.OfferRequirement, error)
}

// Driver issues fire-and-forget actions against the cluster scheduler.
// Implementations must not call back into the unit synchronously.
type Driver interface {
	// RestartTasks kills the tasks so their slots can be relaunched in place
	RestartTasks(tasks []*types.TaskInfo)
	// RescheduleTasks kills the tasks and releases their reservations
	RescheduleTasks(tasks []*types.TaskInfo)
}

// Deps bundles the collaborators injected into every unit of a plan
type Deps struct {
	State     TaskState
	Provider  RequirementProvider
	Driver    Driver
	Publisher events.Publisher
}

func (d Deps) publisher() events.Publisher {
	if d.Publisher == nil {
		return events.Discard
	}
	return d.Publisher
}
