package upgrade

import "errors"

var (
	// ErrUpgradeFailed means the forward upgrade failed and the node was
	// restored to its previous version
	ErrUpgradeFailed = errors.New("upgrade failed, rolled back")

	// ErrRollbackFailed means both the upgrade and the rollback failed; the
	// node needs operator attention
	ErrRollbackFailed = errors.New("rollback failed")

	ErrJoinTimeout    = errors.New("node did not join in time")
	ErrNodeNotRunning = errors.New("node not running")
	ErrNoAsset        = errors.New("release has no downloadable asset")
	ErrNoRelease      = errors.New("release not found")
)
