package events

import (
	"github.com/cuemby/topio-agent/pkg/log"
)

// Sink persists events
type Sink interface {
	AppendEvent(event *Event) error
}

// Recorder drains a subscription into a Sink and logs every event
type Recorder struct {
	broker *Broker
	sink   Sink
	sub    Subscriber
	doneCh chan struct{}
}

// NewRecorder subscribes to broker
func NewRecorder(broker *Broker, sink Sink) *Recorder {
	return &Recorder{
		broker: broker,
		sink:   sink,
		sub:    broker.Subscribe(),
		doneCh: make(chan struct{}),
	}
}

// Start begins recording
func (r *Recorder) Start() {
	go r.run()
}

// Stop unsubscribes and waits for queued events to be written
func (r *Recorder) Stop() {
	r.broker.Unsubscribe(r.sub)
	<-r.doneCh
}

func (r *Recorder) run() {
	defer close(r.doneCh)
	logger := log.WithComponent("events")

	for event := range r.sub {
		logger.Debug().
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Fields(toFields(event.Metadata)).
			Msg(event.Message)

		if r.sink == nil {
			continue
		}
		if err := r.sink.AppendEvent(event); err != nil {
			logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to persist event")
		}
	}
}

func toFields(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
