package storage

import (
	"errors"

	"github.com/cuemby/topio-agent/pkg/events"
	"github.com/cuemby/topio-agent/pkg/frequency"
)

// ErrNotFound is returned when a key has no stored value
var ErrNotFound = errors.New("not found")

// Store persists agent state across restarts
type Store interface {
	// Frequency controller state, keyed by workflow name
	SaveFrequencyState(workflow string, state frequency.State) error
	LoadFrequencyState(workflow string) (frequency.State, error)

	// Event log
	AppendEvent(event *events.Event) error
	ListEvents(limit int) ([]*events.Event, error)

	Close() error
}
