package frequency

import (
	"sync"
	"time"
)

// Config holds the intervals that shape admission
type Config struct {
	// MinInterval is the floor between any two admitted attempts
	MinInterval time.Duration

	// SuccessInterval is the gap required after a success
	SuccessInterval time.Duration

	// FailureIntervalBase is the backoff after the first failure
	FailureIntervalBase time.Duration

	// MaxFailureInterval caps the backoff
	MaxFailureInterval time.Duration
}

// UpgradeConfig returns the version check profile for a frequency base in
// seconds. With the default base of 60 the check runs every 10 minutes and
// backs off to at most 2 hours.
func UpgradeConfig(base time.Duration) Config {
	return Config{
		MinInterval:         0,
		SuccessInterval:     10 * base,
		FailureIntervalBase: 10 * base,
		MaxFailureInterval:  120 * base,
	}
}

// RewardConfig returns the claim profile: every 10 hours, backing off to 3 days
// with the default base of 60 seconds.
func RewardConfig(base time.Duration) Config {
	return Config{
		MinInterval:         0,
		SuccessInterval:     10 * 60 * base,
		FailureIntervalBase: 10 * 60 * base,
		MaxFailureInterval:  72 * 60 * base,
	}
}

// State is the controller's persisted bookkeeping
type State struct {
	LastAttempt         *time.Time `json:"last_attempt,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	ConsecutiveFailures uint32     `json:"consecutive_failures"`
}

// Controller gates a periodic workflow. Callers ask CallIfAllowed and, when
// admitted, report the outcome with ReportSuccess or ReportFailure.
type Controller struct {
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a controller
func New(cfg Config, opts ...Option) *Controller {
	if cfg.MaxFailureInterval < cfg.FailureIntervalBase {
		cfg.MaxFailureInterval = cfg.FailureIntervalBase
	}
	c := &Controller{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the controller's intervals
func (c *Controller) Config() Config {
	return c.cfg
}

// CallIfAllowed admits an attempt and records it, or returns false without
// touching any state.
func (c *Controller) CallIfAllowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if c.state.LastAttempt != nil {
		since := now.Sub(*c.state.LastAttempt)
		if since < c.cfg.MinInterval {
			return false
		}
		if c.state.ConsecutiveFailures > 0 && since < c.backoff() {
			return false
		}
	}

	if c.state.ConsecutiveFailures == 0 && c.state.LastSuccess != nil {
		if now.Sub(*c.state.LastSuccess) < c.cfg.SuccessInterval {
			return false
		}
	}

	c.state.LastAttempt = &now
	return true
}

// ReportSuccess records a successful attempt and resets the backoff
func (c *Controller) ReportSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.state.LastSuccess = &now
	c.state.ConsecutiveFailures = 0
}

// ReportFailure records a failed attempt
func (c *Controller) ReportFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.ConsecutiveFailures < ^uint32(0) {
		c.state.ConsecutiveFailures++
	}
}

// Report records the outcome of an admitted attempt
func (c *Controller) Report(err error) {
	if err != nil {
		c.ReportFailure()
		return
	}
	c.ReportSuccess()
}

// Backoff returns the wait currently required after the last attempt when
// the previous attempt failed. With no failures it returns the base.
func (c *Controller) Backoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff()
}

func (c *Controller) backoff() time.Duration {
	base := c.cfg.FailureIntervalBase
	if c.state.ConsecutiveFailures <= 1 || base <= 0 {
		return base
	}

	d := base
	for i := uint32(1); i < c.state.ConsecutiveFailures; i++ {
		if d >= c.cfg.MaxFailureInterval/2 {
			return c.cfg.MaxFailureInterval
		}
		d *= 2
	}
	if d > c.cfg.MaxFailureInterval {
		return c.cfg.MaxFailureInterval
	}
	return d
}

// NextAllowed returns the earliest time CallIfAllowed can succeed, or the
// zero time when it would succeed now.
func (c *Controller) NextAllowed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next time.Time
	if c.state.LastAttempt != nil {
		wait := c.cfg.MinInterval
		if c.state.ConsecutiveFailures > 0 {
			if b := c.backoff(); b > wait {
				wait = b
			}
		}
		next = c.state.LastAttempt.Add(wait)
	}
	if c.state.ConsecutiveFailures == 0 && c.state.LastSuccess != nil {
		if t := c.state.LastSuccess.Add(c.cfg.SuccessInterval); t.After(next) {
			next = t
		}
	}
	if !next.After(c.now()) {
		return time.Time{}
	}
	return next
}

// State returns a copy of the controller's bookkeeping
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state)
}

// Restore replaces the bookkeeping, typically with a persisted State
func (c *Controller) Restore(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = copyState(s)
}

func copyState(s State) State {
	out := State{ConsecutiveFailures: s.ConsecutiveFailures}
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		out.LastAttempt = &t
	}
	if s.LastSuccess != nil {
		t := *s.LastSuccess
		out.LastSuccess = &t
	}
	return out
}
