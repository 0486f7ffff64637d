// Package host executes shell commands for the task layer. The core treats
// command payloads as opaque; only the exit code decides success.
package host

import (
	"context"
	"os/exec"
	"strings"

	"github.com/acarl005/stripansi"
	"go.uber.org/zap"

	"github.com/trafficflow/tft/types"
)

// Result is the outcome of one executed command.
type Result struct {
	Out        string
	Err        string
	ReturnCode int
}

// Success reports whether the command exited zero.
func (r Result) Success() bool {
	return r.ReturnCode == 0
}

// Host runs commands somewhere: the local machine, or inside a pod via the
// kube wrapper. Implementations must be safe for concurrent use; operations
// on different threads share one Host.
type Host interface {
	Run(ctx context.Context, cmd string) Result
}

// LocalHost runs commands on the local machine through the shell.
type LocalHost struct {
	log *zap.SugaredLogger
}

// NewLocalHost returns a Host executing on the local machine.
func NewLocalHost(log *zap.SugaredLogger) *LocalHost {
	return &LocalHost{log: log}
}

// Run executes cmd via `sh -c`, bounded by ctx. Output is ANSI-stripped so
// tool output parses cleanly regardless of terminal settings.
func (h *LocalHost) Run(ctx context.Context, cmd string) Result {
	h.log.Debugw("local command", "cmd", cmd)

	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	var stdout, stderr strings.Builder
	c.Stdout = &stdout
	c.Stderr = &stderr

	rc := 0
	if err := c.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			rc = exitErr.ExitCode()
		} else {
			// The command never ran (binary missing, context canceled).
			h.log.Debugw("local command failed to start", "cmd", cmd, "err", err)
			return Result{Err: err.Error(), ReturnCode: -1}
		}
	}

	r := Result{
		Out:        stripansi.Strip(stdout.String()),
		Err:        stripansi.Strip(stderr.String()),
		ReturnCode: rc,
	}
	h.log.Debugw("local command done", "cmd", cmd, "rc", r.ReturnCode)
	return r
}

// OutputFromResult converts a command Result into a BaseOutput. When force is
// non-nil it overrides the success flag; long-running server processes are
// routinely killed by their cancel action and must not report that exit as a
// failure.
func OutputFromResult(r Result, force *bool) types.BaseOutput {
	success := r.Success()
	if force != nil {
		success = *force
	}
	msg := ""
	if !success {
		msg = strings.TrimSpace(r.Err)
		if msg == "" {
			msg = "command failed"
		}
	}
	return types.BaseOutput{Success: success, Msg: msg}
}
