package gateway

import "errors"

var (
	// ErrProcessSpawn means the OS could not start (or finish waiting for)
	// the external command
	ErrProcessSpawn = errors.New("process spawn failed")

	// ErrUnexpectedOutput means command output matched none of the known patterns
	ErrUnexpectedOutput = errors.New("unexpected output")

	// ErrCommandFailed means a command whose exit code matters exited non-zero
	ErrCommandFailed = errors.New("command failed")
)
