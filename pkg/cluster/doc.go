// Package cluster provides Simulator, an in-memory stand-in for the
// resource manager brokers run on. It makes per-agent offers, launches and
// kills tasks, and streams task statuses, including reconciliation snapshots.
package cluster
