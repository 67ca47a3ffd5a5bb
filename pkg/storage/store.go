package storage

import (
	"errors"

	"github.com/cuemby/brokerfleet/pkg/types"
)

var (
	// ErrNotFound is returned when a keyed record does not exist
	ErrNotFound = errors.New("not found")
	// ErrStaleStatus is returned when a status belongs to a task that no longer
	// occupies its broker slot
	ErrStaleStatus = errors.New("status for superseded task")
)

// Store defines the interface for persisted rollout state.
// TaskInfoForBroker and TaskStatusForBroker return nil, nil for unknown brokers.
type Store interface {
	// Task records, one per broker slot
	SaveTaskInfo(info *types.TaskInfo) error
	TaskInfoForBroker(brokerID int) (*types.TaskInfo, error)
	ListTaskInfos() ([]*types.TaskInfo, error)

	// Latest status of each slot's task
	SaveTaskStatus(status *types.TaskStatus) error
	TaskStatusForBroker(brokerID int) (*types.TaskStatus, error)
	ListTaskStatuses() ([]*types.TaskStatus, error)

	DeleteBroker(brokerID int) error

	// Rollout metadata
	PutConfig(key, value string) error
	GetConfig(key string) (string, error)

	// Utility
	Close() error
}
