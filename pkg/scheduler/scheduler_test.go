package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/topio-agent/pkg/frequency"
	"github.com/cuemby/topio-agent/pkg/gateway/gatewaytest"
	"github.com/cuemby/topio-agent/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// gatewayWorkflow touches the node once per run
func gatewayWorkflow(gw *gatewaytest.Fake, err error) WorkflowFunc {
	return func(ctx context.Context) error {
		if _, e := gw.ProcessStatus(ctx); e != nil {
			return e
		}
		return err
	}
}

func TestRunOnceLockBusyMakesNoCalls(t *testing.T) {
	clock := newClock()
	gw := &gatewaytest.Fake{}
	lock := NewLock()
	ctrl := frequency.New(frequency.UpgradeConfig(time.Second), frequency.WithClock(clock.Now))
	l := NewLoop("upgrade", gatewayWorkflow(gw, nil), ctrl, lock)

	require.True(t, lock.TryAcquire())
	before := ctrl.State()

	for i := 0; i < 5; i++ {
		assert.Equal(t, OutcomeLockBusy, l.RunOnce(context.Background()))
		clock.Advance(time.Hour)
	}

	assert.Empty(t, gw.Calls())
	// the controller was not consulted either
	assert.Equal(t, before, ctrl.State())

	lock.Release()
	assert.Equal(t, OutcomeSucceeded, l.RunOnce(context.Background()))
	assert.Len(t, gw.Calls(), 1)
}

func TestRunOnceNotDue(t *testing.T) {
	clock := newClock()
	gw := &gatewaytest.Fake{}
	ctrl := frequency.New(frequency.UpgradeConfig(time.Second), frequency.WithClock(clock.Now))
	l := NewLoop("upgrade", gatewayWorkflow(gw, nil), ctrl, NewLock())

	assert.Equal(t, OutcomeSucceeded, l.RunOnce(context.Background()))

	clock.Advance(9 * time.Second)
	assert.Equal(t, OutcomeNotDue, l.RunOnce(context.Background()))
	assert.Len(t, gw.Calls(), 1)

	clock.Advance(time.Second)
	assert.Equal(t, OutcomeSucceeded, l.RunOnce(context.Background()))
	assert.Len(t, gw.Calls(), 2)
}

func TestRunOnceFailureBacksOff(t *testing.T) {
	clock := newClock()
	gw := &gatewaytest.Fake{}
	ctrl := frequency.New(frequency.Config{
		FailureIntervalBase: 10 * time.Second,
		MaxFailureInterval:  time.Minute,
		SuccessInterval:     10 * time.Second,
	}, frequency.WithClock(clock.Now))
	l := NewLoop("reward", gatewayWorkflow(gw, errors.New("claim failed")), ctrl, NewLock())

	assert.Equal(t, OutcomeFailed, l.RunOnce(context.Background()))
	assert.Equal(t, uint32(1), ctrl.State().ConsecutiveFailures)

	clock.Advance(10 * time.Second)
	assert.Equal(t, OutcomeFailed, l.RunOnce(context.Background()))

	// second failure doubles the wait
	clock.Advance(10 * time.Second)
	assert.Equal(t, OutcomeNotDue, l.RunOnce(context.Background()))
	clock.Advance(10 * time.Second)
	assert.Equal(t, OutcomeFailed, l.RunOnce(context.Background()))
	assert.Equal(t, uint32(3), ctrl.State().ConsecutiveFailures)
}

func TestRunOnceReleasesLock(t *testing.T) {
	lock := NewLock()
	ctrl := frequency.New(frequency.Config{})
	l := NewLoop("reward", WorkflowFunc(func(ctx context.Context) error {
		return errors.New("boom")
	}), ctrl, lock)

	l.RunOnce(context.Background())

	require.True(t, lock.TryAcquire())
	lock.Release()
}

func TestLoopsShareLock(t *testing.T) {
	lock := NewLock()
	gw := &gatewaytest.Fake{}

	var other *Loop
	var inner Outcome
	upgrade := NewLoop("upgrade", WorkflowFunc(func(ctx context.Context) error {
		// runs while upgrade holds the lock
		inner = other.RunOnce(ctx)
		return nil
	}), frequency.New(frequency.Config{}), lock)
	other = NewLoop("reward", gatewayWorkflow(gw, nil), frequency.New(frequency.Config{}), lock)

	assert.Equal(t, OutcomeSucceeded, upgrade.RunOnce(context.Background()))
	assert.Equal(t, OutcomeLockBusy, inner)
	assert.Empty(t, gw.Calls())
}

func TestStatePersistence(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	clock := newClock()
	cfg := frequency.UpgradeConfig(time.Second)
	ctrl := frequency.New(cfg, frequency.WithClock(clock.Now))
	l := NewLoop("upgrade", WorkflowFunc(func(ctx context.Context) error { return nil }),
		ctrl, NewLock(), WithStateStore(store))
	assert.Equal(t, OutcomeSucceeded, l.RunOnce(context.Background()))

	// a restarted loop picks up where the previous one left off
	clock.Advance(5 * time.Second)
	restarted := frequency.New(cfg, frequency.WithClock(clock.Now))
	l2 := NewLoop("upgrade", WorkflowFunc(func(ctx context.Context) error { return nil }),
		restarted, NewLock(), WithStateStore(store))

	require.NotNil(t, restarted.State().LastSuccess)
	assert.Equal(t, OutcomeNotDue, l2.RunOnce(context.Background()))
}

func TestJitterRange(t *testing.T) {
	l := NewLoop("upgrade", WorkflowFunc(func(ctx context.Context) error { return nil }),
		frequency.New(frequency.Config{}), NewLock(),
		WithRand(rand.New(rand.NewPCG(1, 2))))

	for i := 0; i < 1000; i++ {
		d := l.jitter()
		assert.GreaterOrEqual(t, d, DefaultMinJitter)
		assert.Less(t, d, DefaultMaxJitter)
	}

	fixed := NewLoop("reward", WorkflowFunc(func(ctx context.Context) error { return nil }),
		frequency.New(frequency.Config{}), NewLock(), WithJitter(time.Second, time.Second))
	assert.Equal(t, time.Second, fixed.jitter())
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 1)
	l := NewLoop("upgrade", WorkflowFunc(func(ctx context.Context) error {
		runs.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}), frequency.New(frequency.Config{}), NewLock(), WithJitter(time.Millisecond, 2*time.Millisecond))

	l.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("workflow never ran")
	}

	// Stop cancels the in-flight cycle and waits for the loop
	l.Stop()
	assert.Equal(t, int32(1), runs.Load())
	l.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	l := NewLoop("upgrade", WorkflowFunc(func(ctx context.Context) error { return nil }),
		frequency.New(frequency.Config{}), NewLock())
	l.Stop()
}
