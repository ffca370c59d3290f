package frequency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestController(cfg Config) (*Controller, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(cfg, WithClock(clock.Now)), clock
}

func TestCallIfAllowed_FirstCallAdmitted(t *testing.T) {
	c, clock := newTestController(Config{
		MinInterval:         time.Minute,
		SuccessInterval:     time.Hour,
		FailureIntervalBase: time.Minute,
		MaxFailureInterval:  time.Hour,
	})

	assert.True(t, c.CallIfAllowed())
	state := c.State()
	require.NotNil(t, state.LastAttempt)
	assert.Equal(t, clock.Now(), *state.LastAttempt)
	assert.Nil(t, state.LastSuccess)
}

func TestCallIfAllowed_MinIntervalAlwaysApplies(t *testing.T) {
	cfg := Config{
		MinInterval:         10 * time.Minute,
		SuccessInterval:     0,
		FailureIntervalBase: 0,
		MaxFailureInterval:  0,
	}

	tests := []struct {
		name   string
		report func(c *Controller)
	}{
		{name: "no report", report: func(c *Controller) {}},
		{name: "success", report: func(c *Controller) { c.ReportSuccess() }},
		{name: "failure", report: func(c *Controller) { c.ReportFailure() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock := newTestController(cfg)
			require.True(t, c.CallIfAllowed())
			tt.report(c)

			clock.Advance(9 * time.Minute)
			assert.False(t, c.CallIfAllowed())

			clock.Advance(time.Minute)
			assert.True(t, c.CallIfAllowed())
		})
	}
}

func TestCallIfAllowed_RejectionHasNoSideEffects(t *testing.T) {
	c, clock := newTestController(Config{MinInterval: time.Hour})
	require.True(t, c.CallIfAllowed())
	before := c.State()

	clock.Advance(time.Minute)
	assert.False(t, c.CallIfAllowed())
	assert.Equal(t, before, c.State())
}

func TestCallIfAllowed_SuccessInterval(t *testing.T) {
	c, clock := newTestController(UpgradeConfig(time.Second))

	require.True(t, c.CallIfAllowed())
	c.ReportSuccess()

	clock.Advance(9 * time.Second)
	assert.False(t, c.CallIfAllowed())

	clock.Advance(time.Second)
	assert.True(t, c.CallIfAllowed())
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	c, _ := newTestController(Config{
		FailureIntervalBase: 10 * time.Second,
		MaxFailureInterval:  100 * time.Second,
	})

	assert.Equal(t, 10*time.Second, c.Backoff())

	want := []time.Duration{10, 20, 40, 80, 100, 100, 100}
	prev := time.Duration(0)
	for i, w := range want {
		c.ReportFailure()
		got := c.Backoff()
		assert.Equal(t, w*time.Second, got, "after %d failures", i+1)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, 100*time.Second)
		prev = got
	}
}

func TestBackoff_ManyFailuresStayCapped(t *testing.T) {
	c, _ := newTestController(Config{
		FailureIntervalBase: time.Second,
		MaxFailureInterval:  time.Hour,
	})
	c.Restore(State{ConsecutiveFailures: 1 << 20})
	assert.Equal(t, time.Hour, c.Backoff())
}

func TestBackoff_ResetBySuccess(t *testing.T) {
	c, _ := newTestController(Config{
		FailureIntervalBase: 10 * time.Second,
		MaxFailureInterval:  time.Hour,
	})
	for i := 0; i < 5; i++ {
		c.ReportFailure()
	}
	require.Equal(t, 160*time.Second, c.Backoff())

	c.ReportSuccess()
	assert.Equal(t, 10*time.Second, c.Backoff())
	assert.Equal(t, uint32(0), c.State().ConsecutiveFailures)
}

func TestCallIfAllowed_FailureBackoffGatesRetries(t *testing.T) {
	c, clock := newTestController(Config{
		SuccessInterval:     time.Hour,
		FailureIntervalBase: time.Minute,
		MaxFailureInterval:  10 * time.Minute,
	})

	require.True(t, c.CallIfAllowed())
	c.ReportFailure()

	clock.Advance(59 * time.Second)
	assert.False(t, c.CallIfAllowed())
	clock.Advance(time.Second)
	require.True(t, c.CallIfAllowed())
	c.ReportFailure()

	// second failure doubles the wait
	clock.Advance(time.Minute)
	assert.False(t, c.CallIfAllowed())
	clock.Advance(time.Minute)
	require.True(t, c.CallIfAllowed())

	// a success switches back to the success interval
	c.ReportSuccess()
	clock.Advance(30 * time.Minute)
	assert.False(t, c.CallIfAllowed())
	clock.Advance(30 * time.Minute)
	assert.True(t, c.CallIfAllowed())
}

func TestReport(t *testing.T) {
	c, _ := newTestController(Config{FailureIntervalBase: time.Second, MaxFailureInterval: time.Minute})

	c.Report(assert.AnError)
	c.Report(assert.AnError)
	assert.Equal(t, uint32(2), c.State().ConsecutiveFailures)

	c.Report(nil)
	state := c.State()
	assert.Equal(t, uint32(0), state.ConsecutiveFailures)
	assert.NotNil(t, state.LastSuccess)
}

func TestNextAllowed(t *testing.T) {
	c, clock := newTestController(Config{
		MinInterval:         time.Minute,
		SuccessInterval:     time.Hour,
		FailureIntervalBase: 5 * time.Minute,
		MaxFailureInterval:  time.Hour,
	})
	assert.True(t, c.NextAllowed().IsZero())

	start := clock.Now()
	require.True(t, c.CallIfAllowed())
	c.ReportFailure()
	assert.Equal(t, start.Add(5*time.Minute), c.NextAllowed())

	c.ReportSuccess()
	assert.Equal(t, start.Add(time.Hour), c.NextAllowed())
}

func TestRestore_CopiesState(t *testing.T) {
	c, clock := newTestController(Config{SuccessInterval: time.Hour})
	ts := clock.Now()
	s := State{LastAttempt: &ts, LastSuccess: &ts}
	c.Restore(s)

	ts = ts.Add(-24 * time.Hour)
	assert.False(t, c.CallIfAllowed(), "restored state must not alias the caller's times")
}

func TestProfiles(t *testing.T) {
	up := UpgradeConfig(60 * time.Second)
	assert.Equal(t, 10*time.Minute, up.SuccessInterval)
	assert.Equal(t, 2*time.Hour, up.MaxFailureInterval)

	rw := RewardConfig(60 * time.Second)
	assert.Equal(t, 10*time.Hour, rw.SuccessInterval)
	assert.Equal(t, 72*time.Hour, rw.MaxFailureInterval)
}
