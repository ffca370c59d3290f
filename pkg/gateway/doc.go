/*
Package gateway is the agent's only way of touching the managed topio node.

Every operation spawns one or more external processes through a Runner,
waits for them to exit and converts their text output into typed values.
All string matching against topio output lives in this package; callers
only see types.ProcessStatus, types.JoinStatus, types.RewardSnapshot and
plain numbers.

# Identities

Commands run as the tenant's OS user, except the few that need root:
counting and killing processes and running a release's install.sh. The
ExecRunner elevates with `sudo -u <user> --`.

Passwords are written to the child's stdin and never appear in argv, so
they cannot leak through process listings or logs.

# Errors

  - ErrProcessSpawn: the process could not be started or waited for
  - ErrUnexpectedOutput: output matched none of the known patterns
  - ErrCommandFailed: a command whose exit code matters exited non-zero

Stop, Start and Kill are best effort and return the raw types.ExitInfo so
that callers decide what a non-zero exit means.
*/
package gateway
