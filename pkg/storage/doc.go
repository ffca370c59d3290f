/*
Package storage persists agent state in a single BoltDB file (agent.db).

Two buckets are used:

  - frequency: one JSON-encoded frequency.State per workflow name, so a
    restart does not reset backoff or re-run a workflow that just succeeded.
  - events: the agent event log, keyed by a big-endian sequence number.
    AppendEvent prunes the oldest entries beyond the configured retention.

BoltStore implements both Store and events.Sink, so the event Recorder can
write to it directly.
*/
package storage
