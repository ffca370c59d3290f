package tenant

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/cuemby/topio-agent/pkg/gateway"
	"github.com/cuemby/topio-agent/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTenants(n int) map[string]*types.Tenant {
	out := make(map[string]*types.Tenant, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("tenant-%d", i)
		out[id] = &types.Tenant{
			ID:         id,
			OSUser:     id,
			InstallDir: "/home/" + id,
			Accounts:   []types.ManagedAccount{{Address: "T" + id, MinerPubKey: "K" + id}},
		}
	}
	return out
}

func nopOpener(t *types.Tenant) (*Session, error) {
	return &Session{Tenant: t}, nil
}

func TestPick_Uniform(t *testing.T) {
	const k = 4
	const cycles = 40000

	p := NewPicker(makeTenants(k), nopOpener, WithRand(rand.New(rand.NewPCG(1, 2))))

	counts := make(map[string]int)
	for i := 0; i < cycles; i++ {
		tn, err := p.Pick()
		require.NoError(t, err)
		counts[tn.ID]++
	}

	require.Len(t, counts, k)
	for id, c := range counts {
		freq := float64(c) / cycles
		assert.InDelta(t, 1.0/k, freq, 0.02, "tenant %s", id)
	}
}

func TestPick_DeterministicWithSeed(t *testing.T) {
	tenants := makeTenants(5)
	a := NewPicker(tenants, nopOpener, WithRand(rand.New(rand.NewPCG(7, 7))))
	b := NewPicker(tenants, nopOpener, WithRand(rand.New(rand.NewPCG(7, 7))))

	for i := 0; i < 50; i++ {
		ta, err := a.Pick()
		require.NoError(t, err)
		tb, err := b.Pick()
		require.NoError(t, err)
		assert.Equal(t, ta.ID, tb.ID)
	}
}

func TestPick_NoTenants(t *testing.T) {
	p := NewPicker(nil, nopOpener)
	_, err := p.Pick()
	assert.Error(t, err)
}

func TestNext_OpenerError(t *testing.T) {
	boom := errors.New("bad password")
	p := NewPicker(makeTenants(1), func(*types.Tenant) (*Session, error) { return nil, boom })

	_, err := p.Next()
	assert.ErrorIs(t, err, boom)
}

func TestNewOpener(t *testing.T) {
	open := NewOpener(gateway.NewExecRunner(), func(id string) (string, error) {
		return "pw-" + id, nil
	})
	tn := makeTenants(1)["tenant-0"]

	s, err := open(tn)
	require.NoError(t, err)
	assert.Equal(t, "pw-tenant-0", s.Password)
	assert.Same(t, tn, s.Tenant)
	assert.IsType(t, &gateway.TopioGateway{}, s.Gateway)
}
