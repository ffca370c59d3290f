package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cuemby/topio-agent/pkg/events"
	"github.com/cuemby/topio-agent/pkg/frequency"
	"github.com/cuemby/topio-agent/pkg/log"
	"github.com/cuemby/topio-agent/pkg/metrics"
	"github.com/cuemby/topio-agent/pkg/storage"
	"github.com/rs/zerolog"
)

const (
	DefaultMinJitter = 10 * time.Second
	DefaultMaxJitter = 100 * time.Second
)

// Outcome is what one wake-up of a loop did
type Outcome string

const (
	OutcomeLockBusy  Outcome = metrics.OutcomeLockBusy
	OutcomeNotDue    Outcome = metrics.OutcomeNotDue
	OutcomeSucceeded Outcome = metrics.OutcomeSucceeded
	OutcomeFailed    Outcome = metrics.OutcomeFailed
)

// Workflow is one periodic task
type Workflow interface {
	Run(ctx context.Context) error
}

// WorkflowFunc adapts a function to Workflow
type WorkflowFunc func(ctx context.Context) error

func (f WorkflowFunc) Run(ctx context.Context) error { return f(ctx) }

// StateStore persists frequency controller state between restarts
type StateStore interface {
	SaveFrequencyState(workflow string, state frequency.State) error
	LoadFrequencyState(workflow string) (frequency.State, error)
}

// Loop wakes up at jittered intervals and runs its workflow when the shared
// lock is free and the frequency controller admits a call
type Loop struct {
	name       string
	workflow   Workflow
	controller *frequency.Controller
	lock       *Lock

	minJitter time.Duration
	maxJitter time.Duration
	rngMu     sync.Mutex
	rng       *rand.Rand

	store     StateStore
	publisher events.Publisher
	logger    zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a Loop
type Option func(*Loop)

// WithJitter sets the sleep range between wake-ups
func WithJitter(min, max time.Duration) Option {
	return func(l *Loop) {
		l.minJitter = min
		l.maxJitter = max
	}
}

// WithRand injects the random source used for jitter
func WithRand(rng *rand.Rand) Option {
	return func(l *Loop) { l.rng = rng }
}

// WithStateStore restores controller state from s and saves it after every cycle
func WithStateStore(s StateStore) Option {
	return func(l *Loop) { l.store = s }
}

// WithPublisher publishes cycle outcomes on p
func WithPublisher(p events.Publisher) Option {
	return func(l *Loop) { l.publisher = p }
}

// NewLoop creates a loop for workflow name
func NewLoop(name string, workflow Workflow, controller *frequency.Controller, lock *Lock, opts ...Option) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		name:       name,
		workflow:   workflow,
		controller: controller,
		lock:       lock,
		minJitter:  DefaultMinJitter,
		maxJitter:  DefaultMaxJitter,
		logger:     log.WithWorkflow(name),
		ctx:        ctx,
		cancel:     cancel,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	l.restore()
	return l
}

// Name returns the workflow name
func (l *Loop) Name() string {
	return l.name
}

// Controller returns the loop's frequency controller
func (l *Loop) Controller() *frequency.Controller {
	return l.controller
}

func (l *Loop) restore() {
	if l.store == nil {
		return
	}
	state, err := l.store.LoadFrequencyState(l.name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return
	case err != nil:
		l.logger.Warn().Err(err).Msg("Failed to load frequency state, starting fresh")
		return
	}
	l.controller.Restore(state)
	l.logger.Debug().
		Uint32("consecutive_failures", state.ConsecutiveFailures).
		Time("next_allowed", l.controller.NextAllowed()).
		Msg("Restored frequency state")
}

// Start begins the loop
func (l *Loop) Start() {
	l.started = true
	go l.run()
}

// Stop cancels any running cycle and waits for the loop to exit
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel()
	})
	if l.started {
		<-l.doneCh
	}
}

func (l *Loop) run() {
	defer close(l.doneCh)
	l.logger.Info().Msg("Workflow loop started")

	for {
		timer := time.NewTimer(l.jitter())
		select {
		case <-timer.C:
			if l.ctx.Err() != nil {
				l.logger.Info().Msg("Workflow loop stopped")
				return
			}
			l.RunOnce(l.ctx)
		case <-l.stopCh:
			timer.Stop()
			l.logger.Info().Msg("Workflow loop stopped")
			return
		}
	}
}

// jitter returns a duration in [minJitter, maxJitter)
func (l *Loop) jitter() time.Duration {
	span := int64(l.maxJitter - l.minJitter)
	if span <= 0 {
		return l.minJitter
	}
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	return l.minJitter + time.Duration(l.rng.Int64N(span))
}

// RunOnce performs a single wake-up. When the lock is busy nothing else
// happens; in particular the workflow is not consulted.
func (l *Loop) RunOnce(ctx context.Context) Outcome {
	if !l.lock.TryAcquire() {
		l.logger.Info().Msg("Lock busy, skipping")
		l.count(OutcomeLockBusy)
		return OutcomeLockBusy
	}
	defer l.lock.Release()

	if !l.controller.CallIfAllowed() {
		l.logger.Debug().
			Time("next_allowed", l.controller.NextAllowed()).
			Msg("Not yet due")
		l.count(OutcomeNotDue)
		return OutcomeNotDue
	}

	timer := metrics.NewTimer()
	err := l.workflow.Run(ctx)
	timer.ObserveDurationVec(metrics.CycleDuration, l.name)

	l.controller.Report(err)
	l.persist()

	state := l.controller.State()
	metrics.ConsecutiveFailures.WithLabelValues(l.name).Set(float64(state.ConsecutiveFailures))

	meta := map[string]string{"workflow": l.name}
	if err != nil {
		l.logger.Error().Err(err).
			Uint32("consecutive_failures", state.ConsecutiveFailures).
			Dur("backoff", l.controller.Backoff()).
			Msg("Cycle failed")
		l.count(OutcomeFailed)
		meta["error"] = err.Error()
		events.Emit(l.publisher, events.EventCycleFailed, "cycle failed", meta)
		return OutcomeFailed
	}

	l.logger.Info().Dur("duration", timer.Duration()).Msg("Cycle succeeded")
	l.count(OutcomeSucceeded)
	events.Emit(l.publisher, events.EventCycleSucceeded, "cycle succeeded", meta)
	return OutcomeSucceeded
}

func (l *Loop) persist() {
	if l.store == nil {
		return
	}
	if err := l.store.SaveFrequencyState(l.name, l.controller.State()); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to save frequency state")
	}
}

func (l *Loop) count(o Outcome) {
	metrics.CyclesTotal.WithLabelValues(l.name, string(o)).Inc()
}
