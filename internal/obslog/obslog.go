// Package obslog wraps zerolog the way internal/app/logger.go wraps
// io.Writer in the teacher: one constructor, a small set of field helpers,
// a package-level default. zerolog replaces the teacher's hand-rolled JSON
// line logger because it is what the wider pack (p-agent-test-kog-demo)
// reaches for to attach structured fields (run_id, task_id, tool) to a
// request-scoped logger — exactly the shape AgentLoop and WorkflowFacade
// need per step.
package obslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing to w with Unix-seconds timestamps.
func New(w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(w).With().Timestamp().Logger()
}

// Default is the process-wide logger, writing to stderr.
var Default = New(os.Stderr)

// ForRun returns a child logger with run_id and task_id attached, used by
// WorkflowFacade to build the logger it hands to AgentLoop, so every log
// line from one run is correlatable. ProcessRunner logs against Default
// directly since it is shared across runs and knows no run_id of its own.
func ForRun(log zerolog.Logger, runID, taskID string) zerolog.Logger {
	return log.With().Str("run_id", runID).Str("task_id", taskID).Logger()
}
