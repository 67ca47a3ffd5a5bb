/*
Package types defines the domain model shared by every brokerfleet package.

The model has two halves. The rollout half is Status, the three-valued
lifecycle (PENDING, IN_PROGRESS, COMPLETE) used by units, phases and plans.
The cluster half is the vocabulary of the underlying resource scheduler:

  - TaskInfo: persisted launch record of one broker task, including the
    configuration name it was launched with
  - TaskStatus: one asynchronous status event (state + reason)
  - TaskState: TASK_STAGING, TASK_RUNNING, TASK_LOST, ...
  - TaskReason: why a status was sent; REASON_RECONCILIATION marks periodic
    snapshots that carry no progress information
  - Offer / Resources: capacity an agent makes available
  - OfferRequirement: resources a unit asks for, naming the task ids it will
    create

# Naming

Broker tasks are named "broker-<id>" and their ids have the form
"broker-<id>__<uuid>", so the broker slot can be recovered from either:

	types.BrokerName(3)                              // "broker-3"
	types.BrokerIDFromTaskID("broker-3__9f1c...")    // 3

# Task state helpers

TaskState.IsTerminal and TaskStatus.NeedsRecovery treat every terminal state
the same way. A broker that exits cleanly while its replacement is in flight
has to be relaunched just like one that crashed.
*/
package types
