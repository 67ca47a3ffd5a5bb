/*
Package log provides structured logging for brokerfleet using zerolog.

A single package-level zerolog.Logger is configured once by Init and shared
by every component. Components derive child loggers that carry identifying
fields, so each line can be filtered by the part of the rollout it concerns:

	logger := log.WithComponent("scheduler")
	logger.Info().Str("task_id", id).Msg("Launched task")

# Configuration

	log.Init(log.Config{
		Level:      log.ParseLevel("debug"),
		JSONOutput: true,
	})

Level is one of debug, info, warn or error. ParseLevel maps anything else to
info, which is also the default. JSONOutput selects one JSON object per line;
otherwise zerolog's ConsoleWriter prints human-readable lines with RFC3339
timestamps. Output defaults to stdout.

# Field conventions

	component   scheduler, reconciler, deployer, api, config, serve
	broker_id   numeric broker slot, from WithBrokerID
	plan_id     rollout plan UUID, from WithPlanID
	task_id     "broker-<id>__<uuid>", from WithTaskID
	status      unit status (PENDING, IN_PROGRESS, COMPLETE)

Units log every status change at info with the old and new status. Statuses
a unit ignores are logged at debug, so a rollout at info level reads as a
list of transitions.

Init swaps the global logger, so components should be constructed after
it runs. New builds a standalone logger from the same Config, which tests use
to capture output without touching the global.
*/
package log
