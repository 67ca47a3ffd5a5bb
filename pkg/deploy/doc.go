/*
Package deploy decides which rollout plan is active.

A Deployer builds a plan from a target configuration name and swaps it in
atomically. The scheduler, API server and metrics collector all read the
active plan through Deployer.Plan, so adopting a new target redirects every
one of them at once. Units of the new plan derive their starting status from
the persisted task records, so brokers already on the target are COMPLETE
immediately.

The adopted target is written to the store and picked up again by Resume
after a restart.
*/
package deploy
