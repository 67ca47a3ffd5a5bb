package plan

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cuemby/brokerfleet/pkg/events"
	"github.com/cuemby/brokerfleet/pkg/log"
	"github.com/cuemby/brokerfleet/pkg/metrics"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrTaskNotFound is returned when a command needs the broker's task and none is deployed
var ErrTaskNotFound = errors.New("no task deployed for broker")

// Unit converges one broker slot onto the target configuration.
//
// Start and OfferAccepted are driven by the scheduling loop, Update by the
// status-event stream. All of them, plus the operator commands, serialize on mu.
type Unit struct {
	id               string
	brokerID         int
	targetConfigName string

	state     TaskState
	provider  RequirementProvider
	driver    Driver
	publisher events.Publisher
	logger    zerolog.Logger

	mu             sync.Mutex
	status         types.Status
	pendingTaskIDs map[string]struct{}
}

// NewUnit creates the unit for brokerID and derives its initial status from
// the currently deployed task record.
func NewUnit(brokerID int, targetConfigName string, deps Deps) *Unit {
	u := &Unit{
		id:               uuid.New().String(),
		brokerID:         brokerID,
		targetConfigName: targetConfigName,
		state:            deps.State,
		provider:         deps.Provider,
		driver:           deps.Driver,
		publisher:        deps.publisher(),
		logger:           log.WithBrokerID(brokerID).With().Str("component", "unit").Logger(),
		status:           types.StatusPending,
		pendingTaskIDs:   make(map[string]struct{}),
	}

	info, err := u.state.TaskInfoForBroker(brokerID)
	if err != nil {
		u.logger.Error().Err(err).Msg("Failed to retrieve TaskInfo, starting as PENDING")
		info = nil
	}

	if info != nil {
		u.pendingTaskIDs[info.ID] = struct{}{}
		u.logger.Info().
			Str("target_config", targetConfigName).
			Str("current_config", info.ConfigName).
			Msg("Setting initial status")
		if info.ConfigName == targetConfigName {
			u.status = types.StatusComplete
			u.pendingTaskIDs = make(map[string]struct{})
		}
	}

	u.logger.Info().Str("status", string(u.status)).Msg("Status initialized")
	return u
}

// ID returns the unit's stable identifier
func (u *Unit) ID() string {
	return u.id
}

// BrokerID returns the broker slot this unit manages
func (u *Unit) BrokerID() int {
	return u.brokerID
}

// TargetConfigName returns the configuration the unit converges to
func (u *Unit) TargetConfigName() string {
	return u.targetConfigName
}

// Name returns "broker-<id>"
func (u *Unit) Name() string {
	return types.BrokerName(u.brokerID)
}

// Message returns a human-readable status line
func (u *Unit) Message() string {
	return "Broker-" + strconv.Itoa(u.brokerID) + " is " + string(u.Status())
}

// Status returns the current status
func (u *Unit) Status() types.Status {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// IsPending reports whether the unit waits for a launch
func (u *Unit) IsPending() bool { return u.Status() == types.StatusPending }

// IsInProgress reports whether the unit has an accepted launch outstanding
func (u *Unit) IsInProgress() bool { return u.Status() == types.StatusInProgress }

// IsComplete reports whether the broker runs the target config
func (u *Unit) IsComplete() bool { return u.Status() == types.StatusComplete }

// PendingTaskIDs returns a sorted snapshot of the task ids the unit waits on
func (u *Unit) PendingTaskIDs() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pendingLocked()
}

func (u *Unit) pendingLocked() []string {
	ids := make([]string, 0, len(u.pendingTaskIDs))
	for id := range u.pendingTaskIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start returns the resource requirement needed to move the broker onto the
// target configuration, or false when there is nothing to do this cycle.
func (u *Unit) Start() (*types.OfferRequirement, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.logger.Info().Str("status", string(u.status)).Msg("Starting unit")

	if u.status != types.StatusPending {
		u.logger.Warn().Str("status", string(u.status)).Msg("Unit is not pending, start() should not be called")
		return nil, false
	}

	info, err := u.state.TaskInfoForBroker(u.brokerID)
	if err != nil {
		u.logger.Error().Err(err).Msg("Failed to retrieve TaskInfo")
		return nil, false
	}

	status, err := u.state.TaskStatusForBroker(u.brokerID)
	if err != nil {
		u.logger.Error().Err(err).Msg("Failed to retrieve TaskStatus")
		return nil, false
	}

	// A live task still holds the slot's resources; it has to stop before
	// anything new can be requested for this broker.
	if status != nil && status.State.IsLive() {
		if info == nil {
			u.logger.Warn().Str("task_status", status.String()).Msg("Live task has no TaskInfo, waiting")
			return nil, false
		}
		u.logger.Info().Str("task_status", status.String()).Msg("Adding task to restart list")
		u.driver.RestartTasks([]*types.TaskInfo{info})
		return nil, false
	}

	var req *types.OfferRequirement
	if info == nil {
		req, err = u.provider.NewRequirement(u.targetConfigName, u.brokerID)
	} else {
		req, err = u.provider.UpdateRequirement(u.targetConfigName, info)
	}
	if err != nil {
		u.logger.Error().Err(err).Msg("Error getting offer requirement")
		return nil, false
	}

	pending := make(map[string]struct{}, len(req.Tasks))
	for _, id := range req.TaskIDs() {
		pending[id] = struct{}{}
	}
	u.pendingTaskIDs = pending

	return req, true
}

// OfferAccepted records whether the requirement returned by Start was launched
func (u *Unit) OfferAccepted(accepted bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if accepted {
		u.setStatus(types.StatusInProgress)
	} else {
		u.setStatus(types.StatusPending)
	}
}

// Update applies a task status event. Every unit sees every event and keeps
// only the ones about its own pending tasks.
func (u *Unit) Update(status *types.TaskStatus) {
	u.mu.Lock()
	defer u.mu.Unlock()

	logger := u.logger.With().Str("task_status", status.String()).Logger()

	if status.IsReconciliation() {
		logger.Debug().Msg("Ignoring TaskStatus (reason is reconciliation)")
		metrics.StatusUpdatesTotal.WithLabelValues("reconciliation").Inc()
		return
	}

	if u.status == types.StatusPending {
		logger.Debug().Msg("Ignoring TaskStatus (unit is pending)")
		metrics.StatusUpdatesTotal.WithLabelValues("unit_pending").Inc()
		return
	}

	if _, ok := u.pendingTaskIDs[status.TaskID]; !ok {
		logger.Debug().Msg("Ignoring TaskStatus (task not pending)")
		metrics.StatusUpdatesTotal.WithLabelValues("unknown_task").Inc()
		return
	}

	switch {
	case status.State == types.TaskStateRunning:
		delete(u.pendingTaskIDs, status.TaskID)
		metrics.StatusUpdatesTotal.WithLabelValues("running").Inc()
		logger.Info().Strs("pending_tasks", u.pendingLocked()).Msg("Updated pending tasks")
	case u.status == types.StatusInProgress && status.NeedsRecovery():
		metrics.StatusUpdatesTotal.WithLabelValues("recovery").Inc()
		logger.Info().Msg("Received TaskStatus indicating recovery needed while in progress")
		u.setStatus(types.StatusPending)
		return
	default:
		metrics.StatusUpdatesTotal.WithLabelValues("no_effect").Inc()
		logger.Warn().Msg("TaskStatus with no effect encountered")
	}

	if len(u.pendingTaskIDs) == 0 {
		u.setStatus(types.StatusComplete)
	}
}

// Restart sends the unit back to PENDING regardless of its status.
// Pending task ids are left alone; the next Start recomputes them.
func (u *Unit) Restart() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.logger.Info().Str("status", string(u.status)).Msg("Restarting unit")
	u.setStatus(types.StatusPending)
	u.publisher.Publish(&events.Event{
		Type:     events.EventUnitRestarted,
		Message:  u.Name() + " restarted",
		Metadata: u.metadata(),
	})
}

// ForceComplete asks the driver to reschedule whatever task occupies the
// broker's slot. It never changes the unit's status itself.
func (u *Unit) ForceComplete() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	info, err := u.state.TaskInfoForBroker(u.brokerID)
	if err != nil {
		u.logger.Error().Err(err).Msg("Failed to force completion")
		return fmt.Errorf("failed to resolve task for %s: %w", u.Name(), err)
	}
	if info == nil {
		u.logger.Error().Msg("Failed to force completion, no task deployed")
		return fmt.Errorf("%s: %w", u.Name(), ErrTaskNotFound)
	}

	u.logger.Info().Str("task_id", info.ID).Msg("Rescheduling task to force completion")
	u.driver.RescheduleTasks([]*types.TaskInfo{info})
	u.publisher.Publish(&events.Event{
		Type:     events.EventUnitForceComplete,
		Message:  u.Name() + " rescheduled task " + info.ID,
		Metadata: u.metadata(),
	})
	return nil
}

// setStatus must be called with mu held
func (u *Unit) setStatus(next types.Status) {
	prev := u.status
	u.status = next

	if next == types.StatusComplete {
		u.pendingTaskIDs = make(map[string]struct{})
	}

	if prev == next {
		u.logger.Debug().Str("status", string(next)).Msg("Status unchanged")
		return
	}

	u.logger.Info().Str("from", string(prev)).Str("to", string(next)).Msg("Changed status")
	metrics.UnitTransitionsTotal.WithLabelValues(string(next)).Inc()

	md := u.metadata()
	md["from"] = string(prev)
	md["to"] = string(next)
	u.publisher.Publish(&events.Event{
		Type:     events.EventUnitStatusChanged,
		Message:  u.Name() + " changed status from " + string(prev) + " to " + string(next),
		Metadata: md,
	})
}

func (u *Unit) metadata() map[string]string {
	return map[string]string{
		"unit_id":   u.id,
		"broker_id": strconv.Itoa(u.brokerID),
		"target":    u.targetConfigName,
	}
}
