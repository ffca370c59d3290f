package upgrade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/topio-agent/pkg/events"
	"github.com/cuemby/topio-agent/pkg/gateway"
	"github.com/cuemby/topio-agent/pkg/log"
	"github.com/cuemby/topio-agent/pkg/metrics"
	"github.com/cuemby/topio-agent/pkg/release"
	"github.com/cuemby/topio-agent/pkg/tenant"
	"github.com/cuemby/topio-agent/pkg/types"
	"github.com/cuemby/topio-agent/pkg/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// State is the upgrade workflow's position
type State string

const (
	StateIdle             State = "idle"
	StateChecking         State = "checking"
	StateUpToDate         State = "up_to_date"
	StateUpgradePending   State = "upgrade_pending"
	StateUpgrading        State = "upgrading"
	StateUpgradeConfirmed State = "upgrade_confirmed"
	StateRollingBack      State = "rolling_back"
)

const (
	// DefaultPollInterval is the wait before each join status poll
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxPolls bounds the not-ready answers tolerated per account
	DefaultMaxPolls = 120

	// cleanupTimeout bounds stop and status calls made after the cycle's
	// context is gone
	cleanupTimeout = 30 * time.Second
)

// Upgrader moves one tenant's node to the latest release, rolling back to the
// installed version when the new one fails to join
type Upgrader struct {
	sessions  tenant.Source
	resolver  release.Resolver
	publisher events.Publisher

	pollInterval time.Duration
	maxPolls     int
	sleep        func(ctx context.Context, d time.Duration) error
	tagPrefix    string

	mu     sync.RWMutex
	state  State
	logger zerolog.Logger
}

// Option configures an Upgrader
type Option func(*Upgrader)

// WithPublisher publishes state changes and outcomes on p
func WithPublisher(p events.Publisher) Option {
	return func(u *Upgrader) { u.publisher = p }
}

// WithPolling overrides the join poll interval and bound
func WithPolling(interval time.Duration, maxPolls int) Option {
	return func(u *Upgrader) {
		u.pollInterval = interval
		if maxPolls > 0 {
			u.maxPolls = maxPolls
		}
	}
}

// WithTagPrefix sets the prefix used to look up the rollback release tag
func WithTagPrefix(prefix string) Option {
	return func(u *Upgrader) { u.tagPrefix = prefix }
}

// WithSleep replaces the context-aware sleep used between polls
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(u *Upgrader) { u.sleep = sleep }
}

// NewUpgrader creates an Upgrader
func NewUpgrader(sessions tenant.Source, resolver release.Resolver, opts ...Option) *Upgrader {
	u := &Upgrader{
		sessions:     sessions,
		resolver:     resolver,
		pollInterval: DefaultPollInterval,
		maxPolls:     DefaultMaxPolls,
		sleep:        sleepContext,
		tagPrefix:    version.DefaultTagPrefix,
		state:        StateIdle,
		logger:       log.WithComponent("upgrade"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// State returns the current workflow state
func (u *Upgrader) State() State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

func (u *Upgrader) setState(s State, tenantID string) {
	u.mu.Lock()
	prev := u.state
	u.state = s
	u.mu.Unlock()

	if prev == s {
		return
	}
	u.logger.Debug().
		Str("tenant", tenantID).
		Str("from", string(prev)).
		Str("to", string(s)).
		Msg("Upgrade state changed")
	events.Emit(u.publisher, events.EventUpgradeStateChange, string(s), map[string]string{
		"tenant": tenantID,
		"from":   string(prev),
	})
}

// Run performs one upgrade check on a randomly selected tenant
func (u *Upgrader) Run(ctx context.Context) error {
	sess, err := u.sessions.Next()
	if err != nil {
		return err
	}
	id := sess.Tenant.ID
	logger := log.WithTenant(u.logger, id)
	defer u.setState(StateIdle, id)

	u.setState(StateChecking, id)
	latest, err := u.resolver.Resolve(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to resolve latest release: %w", err)
	}
	if latest.Version == nil {
		logger.Debug().Msg("No release published")
		u.setState(StateUpToDate, id)
		return nil
	}

	raw, err := sess.Gateway.InstalledVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read installed version: %w", err)
	}
	current, err := version.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: installed version: %w", gateway.ErrUnexpectedOutput, err)
	}
	setInstalledVersion(id, current)

	if !latest.Version.GreaterThan(current) {
		logger.Debug().
			Str("installed", current.String()).
			Str("latest", latest.Version.String()).
			Msg("Node is up to date")
		u.setState(StateUpToDate, id)
		metrics.UpdateComponent(metrics.ComponentUpgrade, true, "")
		return nil
	}

	target := *latest.Version
	meta := map[string]string{
		"tenant": id,
		"from":   current.String(),
		"to":     target.String(),
	}

	u.setState(StateUpgradePending, id)
	logger.Info().
		Str("from", current.String()).
		Str("to", target.String()).
		Msg("Upgrading node")
	events.Emit(u.publisher, events.EventUpgradeStarted, "upgrade started", meta)

	u.setState(StateUpgrading, id)
	upErr := u.apply(ctx, sess, target, latest)
	if upErr == nil {
		u.setState(StateUpgradeConfirmed, id)
		setInstalledVersion(id, target)
		metrics.UpgradesTotal.WithLabelValues("completed").Inc()
		metrics.UpdateComponent(metrics.ComponentUpgrade, true, "")
		logger.Info().Str("version", target.String()).Msg("Upgrade confirmed")
		events.Emit(u.publisher, events.EventUpgradeCompleted, "upgrade completed", meta)
		return nil
	}

	if ctx.Err() != nil {
		logger.Error().Err(upErr).Msg("Upgrade interrupted by shutdown, node state unknown")
		return fmt.Errorf("upgrade to %s interrupted: %w", target, upErr)
	}

	logger.Warn().Err(upErr).
		Str("version", current.String()).
		Msg("Upgrade failed, rolling back")
	u.setState(StateRollingBack, id)

	rbErr := u.rollback(ctx, sess, current)
	if rbErr != nil {
		err := fmt.Errorf("%w: back to %s: %w (upgrade to %s: %w)",
			ErrRollbackFailed, current, rbErr, target, upErr)
		metrics.UpgradesTotal.WithLabelValues("rollback_failed").Inc()
		metrics.UpdateComponent(metrics.ComponentUpgrade, false,
			fmt.Sprintf("rollback to %s failed for tenant %s, operator attention required", current, id))
		logger.Error().Err(err).Msg("Rollback failed, operator attention required")
		events.Emit(u.publisher, events.EventRollbackFailed, err.Error(), meta)
		return err
	}

	metrics.UpgradesTotal.WithLabelValues("rolled_back").Inc()
	metrics.UpdateComponent(metrics.ComponentUpgrade, true, "")
	logger.Info().Str("version", current.String()).Msg("Rolled back")
	events.Emit(u.publisher, events.EventUpgradeRolledBack, upErr.Error(), meta)
	return fmt.Errorf("%w: %s: %w", ErrUpgradeFailed, target, upErr)
}

func (u *Upgrader) rollback(ctx context.Context, sess *tenant.Session, current version.SemVersion) error {
	tag := current.Tag(u.tagPrefix)
	info, err := u.resolver.Resolve(ctx, tag)
	if err != nil {
		return fmt.Errorf("failed to resolve release %s: %w", tag, err)
	}
	if info.Version == nil {
		return fmt.Errorf("%w: %s", ErrNoRelease, tag)
	}
	return u.apply(ctx, sess, current, info)
}

// apply installs v and confirms that every account's node joins with it
func (u *Upgrader) apply(ctx context.Context, sess *tenant.Session, v version.SemVersion, info release.Info) error {
	url, archive, ok := info.Asset()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAsset, v)
	}
	gw := sess.Gateway
	logger := log.WithTenant(u.logger, sess.Tenant.ID).With().Str("version", v.String()).Logger()

	if exit, err := gw.Kill(ctx); err != nil {
		return fmt.Errorf("failed to kill node: %w", err)
	} else if !exit.Success() {
		logger.Debug().Int("exit_code", exit.Code).Msg("Kill matched no process")
	}

	if err := gw.FetchRelease(ctx, url, archive); err != nil {
		return err
	}
	if err := gw.InstallRelease(ctx, v.String()); err != nil {
		return err
	}

	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		u.checkStopped(cctx, sess, logger)
	}()
	for _, acct := range sess.Tenant.Accounts {
		if err := u.join(ctx, sess, acct, logger); err != nil {
			return fmt.Errorf("account %s: %w", acct.Address, err)
		}
	}
	return nil
}

// join starts the node with acct's mining key and waits until it joins
func (u *Upgrader) join(ctx context.Context, sess *tenant.Session, acct types.ManagedAccount, logger zerolog.Logger) error {
	gw := sess.Gateway
	logger = logger.With().Str("account", acct.Address).Logger()

	if err := gw.SetMiningKey(ctx, acct.MinerPubKey, sess.Password); err != nil {
		return err
	}

	exit, err := gw.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if exit, err := gw.Stop(cctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop node")
		} else if !exit.Success() {
			logger.Warn().Int("exit_code", exit.Code).Str("stderr", exit.Stderr).Msg("Node stop returned non-zero")
		}
	}()
	if !exit.Success() {
		logger.Warn().Int("exit_code", exit.Code).Str("stderr", exit.Stderr).Msg("Node start returned non-zero")
	}

	for polls := 0; ; {
		if err := u.sleep(ctx, u.pollInterval); err != nil {
			return err
		}
		if polls >= u.maxPolls {
			return fmt.Errorf("%w after %d polls", ErrJoinTimeout, polls)
		}

		status, err := gw.JoinStatus(ctx)
		if err != nil {
			return err
		}
		switch status {
		case types.JoinJoined:
			metrics.JoinPolls.Observe(float64(polls + 1))
			logger.Debug().Int("polls", polls+1).Msg("Node joined")
			return nil
		case types.JoinNotRunning:
			return ErrNodeNotRunning
		default:
			polls++
		}
	}
}

func (u *Upgrader) checkStopped(ctx context.Context, sess *tenant.Session, logger zerolog.Logger) {
	status, err := sess.Gateway.ProcessStatus(ctx)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("Failed to read process status")
	case status == types.ProcessNeedsReset:
		logger.Error().Msg("Multiple node processes left running")
	case status != types.ProcessStopped:
		logger.Warn().Str("status", string(status)).Msg("Node left running")
	}
}

func setInstalledVersion(tenantID string, v version.SemVersion) {
	metrics.InstalledVersion.DeletePartialMatch(prometheus.Labels{"tenant": tenantID})
	metrics.InstalledVersion.WithLabelValues(tenantID, v.String()).Set(1)
}

// cleanupContext keeps ctx's values but not its cancellation, so a node
// started before shutdown is still stopped
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
