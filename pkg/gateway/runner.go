package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command describes one external process invocation
type Command struct {
	// User is the OS identity to run as. Empty runs as the agent's own user.
	User string

	// Dir is the working directory
	Dir string

	Name string
	Args []string

	// Stdin is written to the process's standard input and then closed.
	// Secrets travel this way so they never show up in process listings.
	Stdin []byte
}

// String renders the command for logs. Stdin is never included.
func (c Command) String() string {
	s := strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
	if c.User != "" {
		s = fmt.Sprintf("[%s] %s", c.User, s)
	}
	return s
}

// Result is the captured outcome of a finished process
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner synchronously runs a command and waits for it to exit.
// A non-zero exit is reported through Result.ExitCode, not as an error.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands on the host through sudo
type ExecRunner struct {
	// SudoPath is the privilege elevation binary (default "sudo")
	SudoPath string
}

// NewExecRunner creates a runner using sudo from PATH
func NewExecRunner() *ExecRunner {
	return &ExecRunner{SudoPath: "sudo"}
}

// Run executes the command and captures its output
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	name, args := c.Name, c.Args
	if c.User != "" {
		sudo := r.SudoPath
		if sudo == "" {
			sudo = "sudo"
		}
		args = append([]string{"-u", c.User, "--", c.Name}, c.Args...)
		name = sudo
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("%w: %s: %v", ErrProcessSpawn, c.String(), err)
	}

	return res, nil
}
