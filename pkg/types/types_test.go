package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTenant() Tenant {
	return Tenant{
		ID:                "node-a",
		OSUser:            "topio",
		InstallDir:        "/home/topio/topio-package",
		MinClaimThreshold: 1000,
		Accounts:          []ManagedAccount{{Address: "T80000aa", MinerPubKey: "BPk1"}},
	}
}

func TestValidate(t *testing.T) {
	tenant := validTenant()
	require.NoError(t, tenant.Validate())

	tenant.Accounts = nil
	assert.ErrorContains(t, tenant.Validate(), "at least one account")

	tenant = validTenant()
	tenant.Accounts[0].MinerPubKey = ""
	assert.ErrorContains(t, tenant.Validate(), "no minerpubkey")
}

func TestValidateClaimThresholdBound(t *testing.T) {
	tenant := validTenant()
	tenant.MinClaimThreshold = MaxClaimThreshold
	require.NoError(t, tenant.Validate())
	assert.Equal(t, MaxClaimThreshold*MicroUnitsPerUnit, tenant.ClaimThresholdMicro())
	assert.Greater(t, tenant.ClaimThresholdMicro(), tenant.MinClaimThreshold)

	tenant.MinClaimThreshold = MaxClaimThreshold + 1
	assert.ErrorContains(t, tenant.Validate(), "minimum_claim_value")
}

func TestClaimThresholdMicro(t *testing.T) {
	tenant := validTenant()
	assert.Equal(t, uint64(1_000_000_000), tenant.ClaimThresholdMicro())
}

func TestIsSweepTarget(t *testing.T) {
	tenant := Tenant{SweepTargetAddress: "T80000AbCd"}
	assert.True(t, tenant.IsSweepTarget("t80000abcd"))
	assert.False(t, tenant.IsSweepTarget("T80000ffff"))
}

func TestProcessStatusFromCount(t *testing.T) {
	assert.Equal(t, ProcessStopped, ProcessStatusFromCount(0))
	assert.Equal(t, ProcessRunning, ProcessStatusFromCount(1))
	assert.Equal(t, ProcessNeedsReset, ProcessStatusFromCount(3))
}
