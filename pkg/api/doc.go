/*
Package api serves the plan management API over HTTP/JSON, together with
the health, readiness and Prometheus endpoints.

# Routes

	GET  /v1/plan/status                   plan, current phase, current block
	GET  /v1/plan/summary                  every phase and block, with decide flags
	GET  /v1/plan/phases                   {"phases": [{phaseId: name}, ...]}
	GET  /v1/plan/phases/{phaseId}         {"blocks": [{unitId: {name, status}}, ...]}
	PUT  /v1/plan/phases/{phaseId}/{unitId}?cmd=restart|forceComplete
	PUT  /v1/plan?cmd=continue|interrupt
	GET  /health                           200 with the server version
	GET  /health/components                registered components, 503 if any is unhealthy
	GET  /ready                            503 until the store answers and a plan is adopted
	GET  /ready/components                 503 until store, scheduler and api have registered
	GET  /live                             always 200 while the process runs
	GET  /metrics                          Prometheus exposition

"Block" is the wire name for a unit. In the status response a missing part
is an empty object rather than null: a complete plan reports {} for both
phase and block.

# Commands

Accepted commands return 200 with {"Result": "Received cmd: 'restart'"} at
unit scope and {"Result": "Received cmd: continue"} at plan scope. A cmd
outside the set recognized for its scope, an unknown phase or unit, or a
command that fails (forceComplete with no deployed task) returns 500 with
{"error": "..."} and changes nothing.

While the PlanSource has no plan, status answers 200 with empty parts and
summary answers {}. Every other plan endpoint answers 503.

# Middleware

Handler wraps the mux in Instrument, which counts requests and records
latency labelled by the matched route pattern. WithReadOnly adds ReadOnly,
which rejects every method other than GET, HEAD and OPTIONS with 403.

	srv := api.NewServer(deployer, store, api.WithVersion(version))
	go srv.Start("127.0.0.1:8080")
	defer srv.Stop(ctx)
*/
package api
