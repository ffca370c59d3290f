/*
Package scheduler drives the agent's periodic workflows.

Each workflow gets a Loop. A Loop sleeps a random duration between its
minimum and maximum jitter (10s and 100s by default), then:

 1. tries the shared Lock without blocking; if another workflow holds it the
    wake-up is skipped and nothing else is touched,
 2. asks its frequency.Controller whether a call is allowed,
 3. runs the workflow, reports the outcome to the controller and persists the
    controller state.

A failed cycle is never retried in place; the controller's backoff decides
when the next attempt is admitted. Errors never stop the loop. Stop cancels
the context passed to a running workflow and waits for the loop to exit.
*/
package scheduler
