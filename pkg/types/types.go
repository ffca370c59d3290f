package types

import (
	"fmt"
	"math"
	"strings"
)

const (
	// MicroUnitsPerUnit converts whole TOP units (claim thresholds) into the
	// micro-units reported by queryMinerReward.
	MicroUnitsPerUnit uint64 = 1_000_000

	// SweepReserve is left on every swept account to cover transfer fees
	SweepReserve uint64 = 100

	// MaxClaimThreshold is the largest threshold whose micro-unit value fits in a uint64
	MaxClaimThreshold = math.MaxUint64 / MicroUnitsPerUnit
)

// ManagedAccount is one wallet/mining identity under a tenant's control
type ManagedAccount struct {
	Address     string `yaml:"address" json:"address"`
	MinerPubKey string `yaml:"minerpubkey" json:"minerpubkey"`
}

// Tenant is a local OS user running its own topio installation
type Tenant struct {
	ID                      string           `yaml:"-" json:"-"`
	OSUser                  string           `yaml:"topio_user" json:"topio_user"`
	InstallDir              string           `yaml:"topio_package_dir" json:"topio_package_dir"`
	EncryptedMiningPassword string           `yaml:"mining_pswd_enc" json:"mining_pswd_enc"`
	MinClaimThreshold       uint64           `yaml:"minimum_claim_value" json:"minimum_claim_value"`
	SweepTargetAddress      string           `yaml:"balance_target_address" json:"balance_target_address"`
	Accounts                []ManagedAccount `yaml:"accounts" json:"accounts"`
}

// Validate checks the invariants the workflows rely on
func (t *Tenant) Validate() error {
	if t.OSUser == "" {
		return fmt.Errorf("tenant %s: topio_user is required", t.ID)
	}
	if t.InstallDir == "" {
		return fmt.Errorf("tenant %s: topio_package_dir is required", t.ID)
	}
	if t.MinClaimThreshold > MaxClaimThreshold {
		return fmt.Errorf("tenant %s: minimum_claim_value %d exceeds %d", t.ID, t.MinClaimThreshold, MaxClaimThreshold)
	}
	if len(t.Accounts) == 0 {
		return fmt.Errorf("tenant %s: at least one account is required", t.ID)
	}
	for i, ac := range t.Accounts {
		if ac.Address == "" {
			return fmt.Errorf("tenant %s: account %d has no address", t.ID, i)
		}
		if ac.MinerPubKey == "" {
			return fmt.Errorf("tenant %s: account %s has no minerpubkey", t.ID, ac.Address)
		}
	}
	return nil
}

// ClaimThresholdMicro returns the claim threshold expressed in micro-units
func (t *Tenant) ClaimThresholdMicro() uint64 {
	return t.MinClaimThreshold * MicroUnitsPerUnit
}

// IsSweepTarget reports whether address is the tenant's sweep target.
// Addresses are compared case-insensitively.
func (t *Tenant) IsSweepTarget(address string) bool {
	return strings.EqualFold(address, t.SweepTargetAddress)
}

// ProcessStatus is the number of matching node processes, bucketed
type ProcessStatus string

const (
	ProcessRunning ProcessStatus = "running"
	ProcessStopped ProcessStatus = "stopped"
	// ProcessNeedsReset means more than one matching process was found
	ProcessNeedsReset ProcessStatus = "needs_reset"
)

// ProcessStatusFromCount maps a process count onto a ProcessStatus
func ProcessStatusFromCount(n int) ProcessStatus {
	switch {
	case n <= 0:
		return ProcessStopped
	case n == 1:
		return ProcessRunning
	default:
		return ProcessNeedsReset
	}
}

// JoinStatus is the node's view of whether it joined the network
type JoinStatus string

const (
	JoinJoined     JoinStatus = "joined"
	JoinNotReady   JoinStatus = "not_ready"
	JoinNotRunning JoinStatus = "not_running"
)

// RewardSnapshot is a point-in-time read of an account's mining reward.
// All amounts are micro-units.
type RewardSnapshot struct {
	Accumulated         uint64 `json:"accumulated"`
	AccumulatedDecimals uint64 `json:"accumulated_decimals"`
	IssueTime           uint64 `json:"issue_time"`
	LastClaimTime       uint64 `json:"last_claim_time"`
	Unclaimed           uint64 `json:"unclaimed"`
	UnclaimedDecimals   uint64 `json:"unclaimed_decimals"`
}

// UnclaimedGreaterThan reports whether the unclaimed reward exceeds micro
func (r RewardSnapshot) UnclaimedGreaterThan(micro uint64) bool {
	return r.Unclaimed > micro
}

// ExitInfo is the raw outcome of a best-effort lifecycle command
type ExitInfo struct {
	Code   int
	Stdout string
	Stderr string
}

// Success reports a zero exit code
func (e ExitInfo) Success() bool {
	return e.Code == 0
}
