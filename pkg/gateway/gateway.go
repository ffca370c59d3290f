package gateway

import (
	"context"

	"github.com/cuemby/topio-agent/pkg/types"
)

// Gateway is everything the workflows may ask of one tenant's node.
// Every call spawns one or more external processes and blocks until they exit.
type Gateway interface {
	// ProcessStatus counts running node processes
	ProcessStatus(ctx context.Context) (types.ProcessStatus, error)

	// SafeboxStatus counts running safebox helper processes
	SafeboxStatus(ctx context.Context) (types.ProcessStatus, error)

	JoinStatus(ctx context.Context) (types.JoinStatus, error)
	InstalledVersion(ctx context.Context) (string, error)

	// Stop, Start and Kill are best effort; callers interpret ExitInfo
	Stop(ctx context.Context) (types.ExitInfo, error)
	Start(ctx context.Context) (types.ExitInfo, error)
	Kill(ctx context.Context) (types.ExitInfo, error)

	// FetchRelease downloads and unpacks a release archive into the install dir
	FetchRelease(ctx context.Context, url, archiveName string) error

	// InstallRelease runs the release's install script and restarts the
	// safebox helper under the tenant's own identity
	InstallRelease(ctx context.Context, tag string) error

	SetMiningKey(ctx context.Context, pubKey, password string) error
	SetDefaultAccount(ctx context.Context, address, password string) error

	QueryReward(ctx context.Context, address string) (types.RewardSnapshot, error)

	// ClaimReward claims for the current default account
	ClaimReward(ctx context.Context) error

	// Balance makes address the default account and reads its balance
	Balance(ctx context.Context, address, password string) (uint64, error)

	// Transfer sends amount from the default account to toAddress
	Transfer(ctx context.Context, toAddress string, amount uint64) error
}
