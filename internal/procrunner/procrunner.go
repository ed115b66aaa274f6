// Package procrunner spawns child processes with a working directory,
// wall-clock timeout, captured stdio, and kill-on-drop — never a shell
// string, always a pre-split argv.
//
// Grounded on internal/app/runner.go's *Runner (teacher's shape: a struct
// wrapping exec.CommandContext) combined with
// original_source/src-tauri/src/repo_tools/safety.rs's safe_spawn (timeout
// race via context, piped stdio, independently capped stdout/stderr).
package procrunner

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"spectrail/internal/obslog"
	"spectrail/internal/outputbounder"
)

// DefaultTimeout is the default wall-clock cap per spawn; callers may lower
// it, never raise it implicitly.
const DefaultTimeout = 120 * time.Second

// DefaultStreamCap is the per-stream capture cap in bytes (~100 KiB).
const DefaultStreamCap = 100 * 1024

// Result is the outcome of one spawn.
type Result struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Runner spawns allow-listed commands. It carries no mutable state beyond
// its logger; it is safe for concurrent use, though the AgentLoop never
// calls it concurrently within one run (spec.md §5).
type Runner struct {
	Log zerolog.Logger
}

// New returns a Runner logging to obslog.Default.
func New() *Runner { return &Runner{Log: obslog.Default} }

// Run spawns argv[0] with argv[1:] as arguments, cwd set to dir, and waits
// up to timeout (DefaultTimeout if zero). Timeouts are reported via
// Result.TimedOut, not retried, and the child is killed on the way out
// regardless of how Run returns.
func (r *Runner) Run(ctx context.Context, dir string, argv []string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.Log.Debug().Strs("argv", argv).Str("dir", dir).Dur("timeout", timeout).Msg("spawning command")

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	timedOut := runCtx.Err() == context.DeadlineExceeded

	outBytes, _, _ := outputbounder.BoundBytes(stdout.Bytes(), DefaultStreamCap)
	errBytes, _, _ := outputbounder.BoundBytes(stderr.Bytes(), DefaultStreamCap)

	res := Result{
		Stdout:   string(outBytes),
		Stderr:   string(errBytes),
		TimedOut: timedOut,
	}

	if timedOut {
		r.Log.Warn().Str("argv0", argv[0]).Dur("timeout", timeout).Msg("command timed out, killed")
		res.Success = false
		res.ExitCode = -1
		return res, nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			r.Log.Warn().Str("argv0", argv[0]).Int("exit_code", exitErr.ExitCode()).Msg("command exited non-zero")
			res.ExitCode = exitErr.ExitCode()
			res.Success = false
			return res, nil
		}
		r.Log.Error().Err(err).Str("argv0", argv[0]).Msg("failed to spawn command")
		return res, err
	}

	r.Log.Debug().Str("argv0", argv[0]).Msg("command exited successfully")
	res.Success = true
	res.ExitCode = 0
	return res, nil
}
