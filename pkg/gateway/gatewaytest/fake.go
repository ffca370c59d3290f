// Package gatewaytest provides an in-memory gateway.Gateway for workflow tests.
package gatewaytest

import (
	"context"
	"strconv"
	"sync"

	"github.com/cuemby/topio-agent/pkg/gateway"
	"github.com/cuemby/topio-agent/pkg/types"
)

// Call is one recorded gateway invocation
type Call struct {
	Method string
	Args   []string
}

// Fake records every call. Behaviour defaults to a healthy node whose
// process runs between Start and Stop/Kill; set the Func fields to override.
type Fake struct {
	mu      sync.Mutex
	calls   []Call
	running bool

	InstalledVersionFunc  func() (string, error)
	JoinStatusFunc        func() (types.JoinStatus, error)
	ProcessStatusFunc     func() (types.ProcessStatus, error)
	StartFunc             func() (types.ExitInfo, error)
	StopFunc              func(ctx context.Context) (types.ExitInfo, error)
	FetchReleaseFunc      func(url, archiveName string) error
	InstallReleaseFunc    func(tag string) error
	SetMiningKeyFunc      func(pubKey string) error
	SetDefaultAccountFunc func(address string) error
	QueryRewardFunc       func(address string) (types.RewardSnapshot, error)
	ClaimRewardFunc       func() error
	BalanceFunc           func(address string) (uint64, error)
	TransferFunc          func(toAddress string, amount uint64) error
}

var _ gateway.Gateway = (*Fake)(nil)

func (f *Fake) record(method string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Args: args})
}

// Calls returns every recorded call in order
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls of one method
func (f *Fake) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Running reports whether the fake node process is up
func (f *Fake) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *Fake) setRunning(v bool) {
	f.mu.Lock()
	f.running = v
	f.mu.Unlock()
}

func (f *Fake) ProcessStatus(ctx context.Context) (types.ProcessStatus, error) {
	f.record("ProcessStatus")
	if f.ProcessStatusFunc != nil {
		return f.ProcessStatusFunc()
	}
	if f.Running() {
		return types.ProcessRunning, nil
	}
	return types.ProcessStopped, nil
}

func (f *Fake) SafeboxStatus(ctx context.Context) (types.ProcessStatus, error) {
	f.record("SafeboxStatus")
	return types.ProcessRunning, nil
}

func (f *Fake) JoinStatus(ctx context.Context) (types.JoinStatus, error) {
	f.record("JoinStatus")
	if f.JoinStatusFunc != nil {
		return f.JoinStatusFunc()
	}
	if f.Running() {
		return types.JoinJoined, nil
	}
	return types.JoinNotRunning, nil
}

func (f *Fake) InstalledVersion(ctx context.Context) (string, error) {
	f.record("InstalledVersion")
	if f.InstalledVersionFunc != nil {
		return f.InstalledVersionFunc()
	}
	return "1.0.0", nil
}

// Stop fails without stopping anything when ctx is done, as a command
// spawned with a cancelled context would
func (f *Fake) Stop(ctx context.Context) (types.ExitInfo, error) {
	f.record("Stop")
	if f.StopFunc != nil {
		return f.StopFunc(ctx)
	}
	if err := ctx.Err(); err != nil {
		return types.ExitInfo{}, err
	}
	f.setRunning(false)
	return types.ExitInfo{}, nil
}

func (f *Fake) Start(ctx context.Context) (types.ExitInfo, error) {
	f.record("Start")
	if f.StartFunc != nil {
		return f.StartFunc()
	}
	f.setRunning(true)
	return types.ExitInfo{}, nil
}

func (f *Fake) Kill(ctx context.Context) (types.ExitInfo, error) {
	f.record("Kill")
	f.setRunning(false)
	return types.ExitInfo{}, nil
}

func (f *Fake) FetchRelease(ctx context.Context, url, archiveName string) error {
	f.record("FetchRelease", url, archiveName)
	if f.FetchReleaseFunc != nil {
		return f.FetchReleaseFunc(url, archiveName)
	}
	return nil
}

func (f *Fake) InstallRelease(ctx context.Context, tag string) error {
	f.record("InstallRelease", tag)
	if f.InstallReleaseFunc != nil {
		return f.InstallReleaseFunc(tag)
	}
	return nil
}

func (f *Fake) SetMiningKey(ctx context.Context, pubKey, password string) error {
	f.record("SetMiningKey", pubKey)
	if f.SetMiningKeyFunc != nil {
		return f.SetMiningKeyFunc(pubKey)
	}
	return nil
}

func (f *Fake) SetDefaultAccount(ctx context.Context, address, password string) error {
	f.record("SetDefaultAccount", address)
	if f.SetDefaultAccountFunc != nil {
		return f.SetDefaultAccountFunc(address)
	}
	return nil
}

func (f *Fake) QueryReward(ctx context.Context, address string) (types.RewardSnapshot, error) {
	f.record("QueryReward", address)
	if f.QueryRewardFunc != nil {
		return f.QueryRewardFunc(address)
	}
	return types.RewardSnapshot{}, nil
}

func (f *Fake) ClaimReward(ctx context.Context) error {
	f.record("ClaimReward")
	if f.ClaimRewardFunc != nil {
		return f.ClaimRewardFunc()
	}
	return nil
}

func (f *Fake) Balance(ctx context.Context, address, password string) (uint64, error) {
	f.record("Balance", address)
	if f.BalanceFunc != nil {
		return f.BalanceFunc(address)
	}
	return 0, nil
}

func (f *Fake) Transfer(ctx context.Context, toAddress string, amount uint64) error {
	f.record("Transfer", toAddress, strconv.FormatUint(amount, 10))
	if f.TransferFunc != nil {
		return f.TransferFunc(toAddress, amount)
	}
	return nil
}
