/*
Package reconciler keeps persisted task statuses honest.

Run reconciles on start and then every interval until its context ends.
Each pass lists the task records in the store and asks the cluster to
re-report them, in id order and in batches of at most DefaultBatchSize. The cluster answers
on its normal status stream with Reason set to REASON_RECONCILIATION. The
scheduler persists these like any other status, while plan units ignore
them, so a reconciliation pass can refresh what the store believes without
ever advancing or regressing a rollout.

Tasks the cluster no longer knows are reported as TASK_LOST.
*/
package reconciler
