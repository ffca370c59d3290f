/*
Package log wraps zerolog for the agent.

The global Logger is configured once by Init from the CLI flags:

	log.Init(log.Config{
		Level:      log.ParseLevel("debug"),
		JSONOutput: true,
	})

Console output is the default; JSON output suits journald or a log shipper.

Components take a child logger at construction time:

	logger := log.WithComponent("upgrade")
	logger = log.WithTenant(logger, "node-a")
	logger.Info().Str("to", "1.8.0").Msg("Upgrading node")

Workflow loops use WithWorkflow, which tags lines with component=scheduler
and the workflow name. Mining passwords are never passed to a logger;
gateway commands log their argv without stdin.
*/
package log
