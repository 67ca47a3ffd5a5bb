package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Rollout metrics
	UnitsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brokerfleet_units_total",
			Help: "Number of broker units in the live plan by status",
		},
		[]string{"status"},
	)

	PlanStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brokerfleet_plan_status",
			Help: "Status of the live plan (1 for the current status, 0 otherwise)",
		},
		[]string{"status"},
	)

	PlanInterrupted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brokerfleet_plan_interrupted",
			Help: "Whether the live plan is interrupted (1 = paused, 0 = proceeding)",
		},
	)

	UnitTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerfleet_unit_transitions_total",
			Help: "Total number of unit status transitions by target status",
		},
		[]string{"to"},
	)

	StatusUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerfleet_status_updates_total",
			Help: "Task status events seen by units by outcome",
		},
		[]string{"outcome"},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerfleet_commands_total",
			Help: "Operator commands by command and result",
		},
		[]string{"cmd", "result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerfleet_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brokerfleet_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brokerfleet_scheduling_latency_seconds",
			Help:    "Time taken by one scheduling cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	OffersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerfleet_offers_total",
			Help: "Resource offers by outcome (accepted, declined)",
		},
		[]string{"outcome"},
	)

	TasksLaunched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brokerfleet_tasks_launched_total",
			Help: "Total number of broker tasks launched",
		},
	)

	TasksKilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerfleet_tasks_killed_total",
			Help: "Total number of broker tasks killed by reason (restart, reschedule)",
		},
		[]string{"reason"},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brokerfleet_reconciliation_duration_seconds",
			Help:    "Time taken by one reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brokerfleet_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles",
		},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerfleet_events_dropped_total",
			Help: "Rollout events dropped because a queue was full",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(UnitsTotal)
	prometheus.MustRegister(PlanStatus)
	prometheus.MustRegister(PlanInterrupted)
	prometheus.MustRegister(UnitTransitionsTotal)
	prometheus.MustRegister(StatusUpdatesTotal)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(OffersTotal)
	prometheus.MustRegister(TasksLaunched)
	prometheus.MustRegister(TasksKilled)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(EventsDroppedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
