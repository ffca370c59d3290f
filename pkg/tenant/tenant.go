// Package tenant selects the tenant a workflow cycle operates on.
package tenant

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/cuemby/topio-agent/pkg/gateway"
	"github.com/cuemby/topio-agent/pkg/types"
)

// Session is everything a workflow cycle needs for one tenant
type Session struct {
	Tenant   *types.Tenant
	Gateway  gateway.Gateway
	Password string
}

// Opener builds a Session for a tenant
type Opener func(t *types.Tenant) (*Session, error)

// PasswordFunc returns the decrypted mining password of a tenant
type PasswordFunc func(tenantID string) (string, error)

// NewOpener returns an Opener that drives topio through runner and decrypts
// passwords with passwords
func NewOpener(runner gateway.Runner, passwords PasswordFunc) Opener {
	return func(t *types.Tenant) (*Session, error) {
		pw, err := passwords(t.ID)
		if err != nil {
			return nil, err
		}
		return &Session{
			Tenant:   t,
			Gateway:  gateway.NewTopioGateway(runner, t.OSUser, t.InstallDir),
			Password: pw,
		}, nil
	}
}

// Picker picks tenants uniformly at random
type Picker struct {
	tenants map[string]*types.Tenant
	ids     []string
	open    Opener

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Picker
type Option func(*Picker)

// WithRand injects the random source, e.g. a seeded PCG in tests
func WithRand(rng *rand.Rand) Option {
	return func(p *Picker) {
		p.rng = rng
	}
}

// NewPicker creates a picker over tenants
func NewPicker(tenants map[string]*types.Tenant, open Opener, opts ...Option) *Picker {
	ids := make([]string, 0, len(tenants))
	for id := range tenants {
		ids = append(ids, id)
	}
	// sorted so a seeded source gives the same sequence every run
	sort.Strings(ids)

	p := &Picker{
		tenants: tenants,
		ids:     ids,
		open:    open,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pick returns one tenant chosen uniformly at random
func (p *Picker) Pick() (*types.Tenant, error) {
	if len(p.ids) == 0 {
		return nil, fmt.Errorf("no tenants configured")
	}
	p.mu.Lock()
	i := p.rng.IntN(len(p.ids))
	p.mu.Unlock()
	return p.tenants[p.ids[i]], nil
}

// Source hands out one session per workflow cycle
type Source interface {
	Next() (*Session, error)
}

var _ Source = (*Picker)(nil)

// Next picks a tenant and opens a session for it
func (p *Picker) Next() (*Session, error) {
	t, err := p.Pick()
	if err != nil {
		return nil, err
	}
	if len(t.Accounts) == 0 {
		return nil, fmt.Errorf("tenant %s has no accounts", t.ID)
	}
	s, err := p.open(t)
	if err != nil {
		return nil, fmt.Errorf("failed to open session for tenant %s: %w", t.ID, err)
	}
	return s, nil
}
