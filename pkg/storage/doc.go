/*
Package storage persists rollout state in a BoltDB file.

Three buckets live in brokerfleet.db under the data directory:

	task_infos      broker id -> TaskInfo (JSON), the task occupying the slot
	task_statuses   broker id -> TaskStatus (JSON), latest status of that task
	config          string keys, e.g. the adopted target config name

BoltStore satisfies the task-state lookups used by plan units. A lookup for
a broker that has never been launched returns a nil record and a nil error.

Statuses are keyed by the broker encoded in the task id ("broker-<id>__<uuid>").
A status for a task that has since been replaced in its slot is rejected with
ErrStaleStatus so a late kill of the old task cannot mask the new one.
*/
package storage
