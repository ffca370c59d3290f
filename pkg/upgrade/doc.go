/*
Package upgrade keeps a tenant's topio node on the latest release.

Each Run picks one tenant and walks the state machine

	idle -> checking -> up_to_date -> idle
	idle -> checking -> upgrade_pending -> upgrading -> upgrade_confirmed -> idle
	idle -> checking -> upgrade_pending -> upgrading -> rolling_back -> idle

An upgrade kills the node, downloads and installs the release, then for every
managed account sets the mining key, starts the node and polls the join
status until the node joins. The node is stopped again after each account.
If any step fails the previously installed version is reinstalled through the
same sequence. A failed rollback is reported as ErrRollbackFailed and marks the
upgrade health component unhealthy.
*/
package upgrade
