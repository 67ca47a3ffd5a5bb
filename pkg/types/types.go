package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the rollout status shared by units, phases and plans
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusComplete   Status = "COMPLETE"
)

// TaskState mirrors the task states reported by the underlying cluster scheduler
type TaskState string

const (
	TaskStateStaging  TaskState = "TASK_STAGING"
	TaskStateStarting TaskState = "TASK_STARTING"
	TaskStateRunning  TaskState = "TASK_RUNNING"
	TaskStateKilling  TaskState = "TASK_KILLING"
	TaskStateFinished TaskState = "TASK_FINISHED"
	TaskStateFailed   TaskState = "TASK_FAILED"
	TaskStateKilled   TaskState = "TASK_KILLED"
	TaskStateLost     TaskState = "TASK_LOST"
	TaskStateError    TaskState = "TASK_ERROR"
)

// IsTerminal reports whether the task will never run again
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateFinished, TaskStateFailed, TaskStateKilled, TaskStateLost, TaskStateError:
		return true
	default:
		return false
	}
}

// IsLive reports whether the task currently holds its resources on an agent
func (s TaskState) IsLive() bool {
	return s == TaskStateRunning || s == TaskStateStaging
}

// TaskReason qualifies why a status was sent
type TaskReason string

const (
	ReasonNone           TaskReason = ""
	ReasonReconciliation TaskReason = "REASON_RECONCILIATION"
	ReasonAgentRemoved   TaskReason = "REASON_AGENT_REMOVED"
	ReasonKilled         TaskReason = "REASON_TASK_KILLED"
	ReasonLaunchFailed   TaskReason = "REASON_LAUNCH_FAILED"
)

// Resources describes a quantity of cluster resources
type Resources struct {
	CPUs   float64 `json:"cpus"`
	MemMB  int64   `json:"mem_mb"`
	DiskMB int64   `json:"disk_mb"`
	Ports  []int   `json:"ports,omitempty"`
}

// Fits reports whether r can be carved out of available
func (r Resources) Fits(available Resources) bool {
	return r.CPUs <= available.CPUs && r.MemMB <= available.MemMB && r.DiskMB <= available.DiskMB
}

// Sub returns r minus other, used to track an agent's remaining capacity
func (r Resources) Sub(other Resources) Resources {
	return Resources{
		CPUs:   r.CPUs - other.CPUs,
		MemMB:  r.MemMB - other.MemMB,
		DiskMB: r.DiskMB - other.DiskMB,
	}
}

// Add returns r plus other
func (r Resources) Add(other Resources) Resources {
	return Resources{
		CPUs:   r.CPUs + other.CPUs,
		MemMB:  r.MemMB + other.MemMB,
		DiskMB: r.DiskMB + other.DiskMB,
	}
}

// TaskInfo is the persisted launch record of a broker task
type TaskInfo struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	BrokerID   int               `json:"broker_id"`
	ConfigName string            `json:"config_name"`
	AgentID    string            `json:"agent_id,omitempty"`
	Resources  Resources         `json:"resources"`
	Labels     map[string]string `json:"labels,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// TaskStatus is a single status event for one task
type TaskStatus struct {
	TaskID    string     `json:"task_id"`
	State     TaskState  `json:"state"`
	Reason    TaskReason `json:"reason,omitempty"`
	Message   string     `json:"message,omitempty"`
	AgentID   string     `json:"agent_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// NeedsRecovery reports whether the task ended and its broker slot must be relaunched.
// A clean stop is indistinguishable from a crash here, so every terminal state counts.
func (s *TaskStatus) NeedsRecovery() bool {
	return s.State.IsTerminal()
}

// IsReconciliation reports whether the status is a periodic snapshot rather than progress
func (s *TaskStatus) IsReconciliation() bool {
	return s.Reason == ReasonReconciliation
}

func (s *TaskStatus) String() string {
	if s.Reason != ReasonNone {
		return fmt.Sprintf("%s %s (%s)", s.TaskID, s.State, s.Reason)
	}
	return fmt.Sprintf("%s %s", s.TaskID, s.State)
}

// OfferRequirement is a declarative request for resources to launch or replace tasks
type OfferRequirement struct {
	Tasks []*TaskInfo `json:"tasks"`

	// AgentID pins the requirement to one agent (in-place updates keep their data)
	AgentID string `json:"agent_id,omitempty"`
}

// TaskIDs returns the ids of the tasks this requirement will create
func (r *OfferRequirement) TaskIDs() []string {
	ids := make([]string, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

// Resources returns the summed resources of every task in the requirement
func (r *OfferRequirement) Resources() Resources {
	var total Resources
	for _, t := range r.Tasks {
		total = total.Add(t.Resources)
	}
	return total
}

// Offer is a bundle of resources one agent makes available
type Offer struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Hostname  string    `json:"hostname"`
	Resources Resources `json:"resources"`
}

const brokerNamePrefix = "broker-"

// BrokerName returns the task name of a broker slot
func BrokerName(brokerID int) string {
	return brokerNamePrefix + strconv.Itoa(brokerID)
}

// BrokerIDFromName parses a name produced by BrokerName
func BrokerIDFromName(name string) (int, error) {
	if !strings.HasPrefix(name, brokerNamePrefix) {
		return 0, fmt.Errorf("not a broker task name: %q", name)
	}
	id, err := strconv.Atoi(strings.TrimPrefix(name, brokerNamePrefix))
	if err != nil {
		return 0, fmt.Errorf("invalid broker id in %q: %w", name, err)
	}
	return id, nil
}

// BrokerIDFromTaskID extracts the broker id from a "<name>__<uuid>" task id
func BrokerIDFromTaskID(taskID string) (int, error) {
	name, _, ok := strings.Cut(taskID, "__")
	if !ok {
		return 0, fmt.Errorf("malformed task id: %q", taskID)
	}
	return BrokerIDFromName(name)
}
