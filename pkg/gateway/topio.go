package gateway

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/topio-agent/pkg/log"
	"github.com/cuemby/topio-agent/pkg/types"
	"github.com/rs/zerolog"
)

const rootUser = "root"

// TopioGateway drives the topio CLI for one tenant
type TopioGateway struct {
	runner     Runner
	user       string
	installDir string
	binary     string
	logger     zerolog.Logger
}

// NewTopioGateway creates a gateway running topio as user inside installDir
func NewTopioGateway(runner Runner, user, installDir string) *TopioGateway {
	return &TopioGateway{
		runner:     runner,
		user:       user,
		installDir: installDir,
		binary:     "topio",
		logger:     log.WithComponent("gateway").With().Str("user", user).Logger(),
	}
}

// WithBinary overrides the topio executable name or path
func (g *TopioGateway) WithBinary(binary string) *TopioGateway {
	g.binary = binary
	return g
}

func (g *TopioGateway) topio(args ...string) Command {
	return Command{User: g.user, Dir: g.installDir, Name: g.binary, Args: args}
}

func (g *TopioGateway) run(ctx context.Context, cmd Command) (Result, error) {
	g.logger.Debug().Str("cmd", cmd.String()).Msg("Running command")
	res, err := g.runner.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		g.logger.Debug().
			Str("cmd", cmd.String()).
			Int("exit_code", res.ExitCode).
			Str("stderr", strings.TrimSpace(res.Stderr)).
			Msg("Command exited non-zero")
	}
	return res, nil
}

// mustSucceed runs cmd and turns a non-zero exit into ErrCommandFailed
func (g *TopioGateway) mustSucceed(ctx context.Context, cmd Command) (Result, error) {
	res, err := g.run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%w: %s exited %d: %s",
			ErrCommandFailed, cmd.String(), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res, nil
}

func exitInfo(res Result) types.ExitInfo {
	return types.ExitInfo{Code: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
}

// ProcessStatus counts `topio node startNode` processes
func (g *TopioGateway) ProcessStatus(ctx context.Context) (types.ProcessStatus, error) {
	return g.countStatus(ctx, "startnode")
}

// SafeboxStatus counts `topio node safebox` processes
func (g *TopioGateway) SafeboxStatus(ctx context.Context) (types.ProcessStatus, error) {
	return g.countStatus(ctx, "safebox")
}

func (g *TopioGateway) countStatus(ctx context.Context, marker string) (types.ProcessStatus, error) {
	// pgrep -x matches the process name exactly, so the agent itself is never counted
	res, err := g.run(ctx, Command{User: rootUser, Name: "pgrep", Args: []string{"-a", "-x", g.binaryName()}})
	if err != nil {
		return "", err
	}
	// pgrep exits 1 when nothing matched
	switch res.ExitCode {
	case 0, 1:
	default:
		return "", fmt.Errorf("%w: pgrep exited %d: %s", ErrUnexpectedOutput, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return types.ProcessStatusFromCount(countProcesses(res.Stdout, marker)), nil
}

func (g *TopioGateway) binaryName() string {
	return filepath.Base(g.binary)
}

// JoinStatus queries `topio node isJoined`
func (g *TopioGateway) JoinStatus(ctx context.Context) (types.JoinStatus, error) {
	res, err := g.run(ctx, g.topio("node", "isJoined"))
	if err != nil {
		return "", err
	}
	return parseJoinStatus(res.Stdout)
}

// InstalledVersion returns the version string reported by `topio -v`
func (g *TopioGateway) InstalledVersion(ctx context.Context) (string, error) {
	res, err := g.run(ctx, g.topio("-v"))
	if err != nil {
		return "", err
	}
	return parseVersionOutput(res.Stdout)
}

// Stop runs `topio node stopNode`
func (g *TopioGateway) Stop(ctx context.Context) (types.ExitInfo, error) {
	res, err := g.run(ctx, g.topio("node", "stopNode"))
	return exitInfo(res), err
}

// Start runs `topio node startNode`
func (g *TopioGateway) Start(ctx context.Context) (types.ExitInfo, error) {
	res, err := g.run(ctx, g.topio("node", "startNode"))
	return exitInfo(res), err
}

// Kill force-kills every topio process, node and safebox alike, as root
func (g *TopioGateway) Kill(ctx context.Context) (types.ExitInfo, error) {
	res, err := g.run(ctx, Command{User: rootUser, Name: "pkill", Args: []string{"-9", "-x", g.binaryName()}})
	return exitInfo(res), err
}

// FetchRelease downloads url as archiveName into the install dir and unpacks it
func (g *TopioGateway) FetchRelease(ctx context.Context, url, archiveName string) error {
	if archiveName == "" || archiveName != filepath.Base(archiveName) || strings.HasPrefix(archiveName, ".") {
		return fmt.Errorf("invalid archive name %q", archiveName)
	}

	if _, err := g.mustSucceed(ctx, Command{
		User: g.user,
		Dir:  g.installDir,
		Name: "wget",
		Args: []string{"-q", url, "-O", archiveName},
	}); err != nil {
		return fmt.Errorf("failed to download %s: %w", archiveName, err)
	}

	if _, err := g.mustSucceed(ctx, Command{
		User: g.user,
		Dir:  g.installDir,
		Name: "tar",
		Args: []string{"zxf", archiveName},
	}); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", archiveName, err)
	}
	return nil
}

// ReleaseDir is the directory a release archive unpacks into
func (g *TopioGateway) ReleaseDir(tag string) string {
	return filepath.Join(g.installDir, fmt.Sprintf("topio-%s-release", tag))
}

// InstallRelease runs install.sh as root, set_topio.sh as the tenant, then
// restarts the safebox helper as the tenant because install.sh leaves it
// running as root.
func (g *TopioGateway) InstallRelease(ctx context.Context, tag string) error {
	dir := g.ReleaseDir(tag)

	if _, err := g.mustSucceed(ctx, Command{User: rootUser, Dir: dir, Name: "bash", Args: []string{"install.sh"}}); err != nil {
		return fmt.Errorf("install.sh failed for %s: %w", tag, err)
	}

	res, err := g.run(ctx, Command{
		User: g.user,
		Dir:  dir,
		Name: "sh",
		Args: []string{"-c", ". /etc/profile && bash set_topio.sh"},
	})
	if err != nil {
		return fmt.Errorf("set_topio.sh failed for %s: %w", tag, err)
	}
	if res.ExitCode != 0 {
		g.logger.Warn().Str("tag", tag).Int("exit_code", res.ExitCode).Msg("set_topio.sh exited non-zero")
	}

	if _, err := g.Kill(ctx); err != nil {
		return fmt.Errorf("failed to stop root-owned safebox: %w", err)
	}

	if _, err := g.mustSucceed(ctx, g.topio("node", "safebox")); err != nil {
		return fmt.Errorf("failed to restart safebox: %w", err)
	}
	return nil
}

// SetMiningKey runs `topio mining setMinerKey`, feeding the password on stdin
func (g *TopioGateway) SetMiningKey(ctx context.Context, pubKey, password string) error {
	cmd := g.topio("mining", "setMinerKey", pubKey)
	cmd.Stdin = []byte(password)
	if _, err := g.mustSucceed(ctx, cmd); err != nil {
		return fmt.Errorf("failed to set miner key: %w", err)
	}
	return nil
}

// SetDefaultAccount runs `topio wallet setDefaultAccount`, feeding the password on stdin
func (g *TopioGateway) SetDefaultAccount(ctx context.Context, address, password string) error {
	cmd := g.topio("wallet", "setDefaultAccount", address)
	cmd.Stdin = []byte(password)
	if _, err := g.mustSucceed(ctx, cmd); err != nil {
		return fmt.Errorf("failed to set default account %s: %w", address, err)
	}
	return nil
}

// QueryReward runs `topio mining queryMinerReward`
func (g *TopioGateway) QueryReward(ctx context.Context, address string) (types.RewardSnapshot, error) {
	res, err := g.run(ctx, g.topio("mining", "queryMinerReward", address))
	if err != nil {
		return types.RewardSnapshot{}, err
	}
	return parseReward(res.Stdout)
}

// ClaimReward runs `topio mining claimMinerReward`
func (g *TopioGateway) ClaimReward(ctx context.Context) error {
	if _, err := g.mustSucceed(ctx, g.topio("mining", "claimMinerReward")); err != nil {
		return fmt.Errorf("failed to claim reward: %w", err)
	}
	return nil
}

// Balance reads the balance of address from `topio wallet listAccounts`
func (g *TopioGateway) Balance(ctx context.Context, address, password string) (uint64, error) {
	if err := g.SetDefaultAccount(ctx, address, password); err != nil {
		return 0, err
	}
	res, err := g.run(ctx, g.topio("wallet", "listAccounts"))
	if err != nil {
		return 0, err
	}
	return parseBalance(res.Stdout)
}

// Transfer runs `topio transfer`
func (g *TopioGateway) Transfer(ctx context.Context, toAddress string, amount uint64) error {
	if _, err := g.mustSucceed(ctx, g.topio("transfer", toAddress, strconv.FormatUint(amount, 10))); err != nil {
		return fmt.Errorf("failed to transfer %d to %s: %w", amount, toAddress, err)
	}
	return nil
}

var _ Gateway = (*TopioGateway)(nil)
