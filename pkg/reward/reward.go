// Package reward claims mining rewards above a tenant's threshold and sweeps
// surplus balances to the tenant's target address.
package reward

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cuemby/topio-agent/pkg/events"
	"github.com/cuemby/topio-agent/pkg/log"
	"github.com/cuemby/topio-agent/pkg/metrics"
	"github.com/cuemby/topio-agent/pkg/tenant"
	"github.com/cuemby/topio-agent/pkg/types"
	"github.com/rs/zerolog"
)

// Claimer runs the claim and sweep cycle
type Claimer struct {
	sessions  tenant.Source
	publisher events.Publisher
	logger    zerolog.Logger
}

// Option configures a Claimer
type Option func(*Claimer)

// WithPublisher publishes claims and sweeps on p
func WithPublisher(p events.Publisher) Option {
	return func(c *Claimer) { c.publisher = p }
}

// NewClaimer creates a Claimer
func NewClaimer(sessions tenant.Source, opts ...Option) *Claimer {
	c := &Claimer{
		sessions: sessions,
		logger:   log.WithComponent("reward"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run claims for every account of one randomly selected tenant whose unclaimed
// reward exceeds the threshold, then sweeps if anything was claimed. The first
// error aborts the cycle.
func (c *Claimer) Run(ctx context.Context) error {
	sess, err := c.sessions.Next()
	if err != nil {
		return err
	}
	t := sess.Tenant
	logger := log.WithTenant(c.logger, t.ID)
	threshold := t.ClaimThresholdMicro()

	claimed := false
	for _, acct := range t.Accounts {
		snap, err := sess.Gateway.QueryReward(ctx, acct.Address)
		if err != nil {
			return fmt.Errorf("failed to query reward of %s: %w", acct.Address, err)
		}
		if !snap.UnclaimedGreaterThan(threshold) {
			logger.Debug().
				Str("account", acct.Address).
				Uint64("unclaimed", snap.Unclaimed).
				Uint64("threshold", threshold).
				Msg("Reward below threshold")
			continue
		}

		if err := c.claim(ctx, sess, acct); err != nil {
			return err
		}
		claimed = true
		metrics.ClaimsTotal.WithLabelValues(t.ID).Inc()
		logger.Info().
			Str("account", acct.Address).
			Uint64("unclaimed", snap.Unclaimed).
			Msg("Reward claimed")
		events.Emit(c.publisher, events.EventRewardClaimed, "reward claimed", map[string]string{
			"tenant":    t.ID,
			"account":   acct.Address,
			"unclaimed": strconv.FormatUint(snap.Unclaimed, 10),
		})
	}

	if !claimed {
		return nil
	}
	return c.sweep(ctx, sess, logger)
}

func (c *Claimer) claim(ctx context.Context, sess *tenant.Session, acct types.ManagedAccount) error {
	if err := sess.Gateway.SetDefaultAccount(ctx, acct.Address, sess.Password); err != nil {
		return fmt.Errorf("failed to select account %s: %w", acct.Address, err)
	}
	if err := sess.Gateway.ClaimReward(ctx); err != nil {
		return fmt.Errorf("failed to claim reward of %s: %w", acct.Address, err)
	}
	return nil
}

// sweep moves everything above SweepReserve from each non-target account to
// the sweep target
func (c *Claimer) sweep(ctx context.Context, sess *tenant.Session, logger zerolog.Logger) error {
	t := sess.Tenant
	target := t.SweepTargetAddress
	if target == "" {
		logger.Info().Msg("No sweep target configured, skipping sweep")
		return nil
	}

	for _, acct := range t.Accounts {
		if t.IsSweepTarget(acct.Address) {
			continue
		}

		balance, err := sess.Gateway.Balance(ctx, acct.Address, sess.Password)
		if err != nil {
			return fmt.Errorf("failed to read balance of %s: %w", acct.Address, err)
		}
		if balance <= types.SweepReserve {
			logger.Debug().
				Str("account", acct.Address).
				Uint64("balance", balance).
				Msg("Balance within reserve")
			continue
		}

		amount := balance - types.SweepReserve
		if err := sess.Gateway.Transfer(ctx, target, amount); err != nil {
			return fmt.Errorf("failed to sweep %s: %w", acct.Address, err)
		}
		metrics.SweptTotal.WithLabelValues(t.ID).Add(float64(amount))
		logger.Info().
			Str("account", acct.Address).
			Str("target", target).
			Uint64("amount", amount).
			Msg("Balance swept")
		events.Emit(c.publisher, events.EventBalanceSwept, "balance swept", map[string]string{
			"tenant":  t.ID,
			"account": acct.Address,
			"target":  target,
			"amount":  strconv.FormatUint(amount, 10),
		})
	}
	return nil
}
