/*
Package events provides an in-memory event broker for the agent's workflow
history.

Workflows publish what they did (an upgrade started, a rollback, a claim, a
sweep) and the scheduler publishes the outcome of every admitted cycle. A
Recorder subscribes to the broker, logs each event at debug level and
appends it to a Sink, normally the bolt store, so that `topio-agent history`
can show what happened while nobody was watching.

# Event Types

  - cycle.succeeded, cycle.failed: one admitted workflow cycle finished
  - upgrade.started, upgrade.completed: forward upgrade to a newer release
  - upgrade.rolled_back: forward upgrade failed, previous version restored
  - rollback.failed: restoring the previous version failed as well; the node
    needs an operator
  - upgrade.state: state machine transition
  - reward.claimed, balance.swept: reward workflow actions

# Delivery

Publish hands the event to a buffered channel (100 events); the broadcast
loop copies it to every subscriber's buffered channel (50 events) and drops
it for subscribers that are full. Publishing never blocks once the broker
is stopped.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	rec := events.NewRecorder(broker, store)
	rec.Start()
	defer rec.Stop()

	events.Emit(broker, events.EventRewardClaimed, "claimed", map[string]string{
		"address": "T80000...",
	})

Emit accepts a nil Publisher, which keeps workflow code free of nil checks
in tests.
*/
package events
