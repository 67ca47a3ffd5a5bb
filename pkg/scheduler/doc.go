/*
Package scheduler executes the active rollout plan against the cluster.

Every interval the scheduler:

 1. kills tasks units asked to restart or reschedule
 2. asks the plan for the next unit it may act on
 3. lets a pending unit compute its offer requirement
 4. matches the requirement against agent offers (first fit)
 5. persists the new task records and launches them
 6. reports the outcome back to the unit

Task statuses arriving from the cluster are persisted and routed to the plan
by HandleStatus. While a unit's launch is being decided, statuses for that
broker wait, so a unit is always told its offer was accepted before it sees
the launched task run. Statuses for other brokers are not held up.

Scheduler implements plan.Driver. Kill requests are only queued by the
driver methods and carried out on the next cycle, which keeps units from
re-entering the scheduler while they hold their own lock.
*/
package scheduler
