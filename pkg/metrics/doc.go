/*
Package metrics defines brokerfleet's Prometheus metrics, the periodic
rollout collector and the component health registry.

All collectors are registered with the default registry at init and exposed
by Handler, which pkg/api mounts at /metrics.

# Metrics

Rollout state (gauges, refreshed by Collector):

	brokerfleet_units_total{status}          units per status in the live plan
	brokerfleet_plan_status{status}          1 for the plan's current status
	brokerfleet_plan_interrupted             1 while the plan is interrupted

Unit behaviour (counters):

	brokerfleet_unit_transitions_total{to}
	brokerfleet_status_updates_total{outcome}   running, recovery, no_effect,
	                                            unit_pending, unknown_task,
	                                            reconciliation
	brokerfleet_commands_total{cmd,result}

Scheduling and cluster:

	brokerfleet_scheduling_latency_seconds      one scheduling cycle
	brokerfleet_offers_total{outcome}           accepted or declined offers
	brokerfleet_tasks_launched_total
	brokerfleet_tasks_killed_total{reason}      restart or reschedule
	brokerfleet_reconciliation_duration_seconds
	brokerfleet_reconciliation_cycles_total
	brokerfleet_events_dropped_total{stage}     queue or subscriber

API:

	brokerfleet_api_requests_total{route,status}
	brokerfleet_api_request_duration_seconds{route}

The route label is the matched ServeMux pattern, e.g. "GET /v1/plan/status",
which keeps label cardinality bounded regardless of phase or unit ids.

# Collector

The collector does not import the plan package. It polls a SnapshotFunc,
normally deploy.Deployer.Snapshot, every 15 seconds and copies the result
into the rollout gauges. While no plan is adopted the gauges are cleared.

	collector := metrics.NewCollector(deployer.Snapshot)
	collector.Start()
	defer collector.Stop()

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

# Health

RegisterComponent and UpdateComponent record named components. GetHealth is
healthy while every registered component is; GetReadiness additionally
requires the critical components (store, scheduler and api) to be present.
Both are served from the default Registry; tests build their own with
NewRegistry.
*/
package metrics
