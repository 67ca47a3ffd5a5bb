package plan

import "github.com/cuemby/brokerfleet/pkg/types"

// Aggregate folds member statuses into one: COMPLETE when every member is
// complete, PENDING when every member is pending, IN_PROGRESS otherwise.
// An empty set has nothing left to do and is COMPLETE.
func Aggregate(statuses ...types.Status) types.Status {
	allComplete, allPending := true, true
	for _, s := range statuses {
		if s != types.StatusComplete {
			allComplete = false
		}
		if s != types.StatusPending {
			allPending = false
		}
	}

	switch {
	case allComplete:
		return types.StatusComplete
	case allPending:
		return types.StatusPending
	default:
		return types.StatusInProgress
	}
}
