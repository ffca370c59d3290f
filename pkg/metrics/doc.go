/*
Package metrics exposes Prometheus metrics and health endpoints for the agent.

Metrics are package-level collectors registered on the default registry in
init. Workflows update them directly:

	timer := metrics.NewTimer()
	err := workflow.Run(ctx)
	timer.ObserveDurationVec(metrics.CycleDuration, "upgrade")
	metrics.CyclesTotal.WithLabelValues("upgrade", metrics.OutcomeSucceeded).Inc()

Component health is tracked with UpdateComponent. /health is unhealthy while
any component is unhealthy (for example after a failed rollback). /ready
waits for the config, store and scheduler components. /live always answers
200 while the process runs.

NewServeMux wires all four paths; the agent only serves it when a metrics
address is configured.
*/
package metrics
