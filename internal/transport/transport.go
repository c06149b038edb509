// Package transport gives the tool registry a uniform request/response view
// over the target binary: one-shot bounded command execution, a long-lived
// interactive process session, and a debugger session. Both session kinds are
// independently killable and release their OS resources deterministically,
// even while a read is blocked.
package transport

import (
	"time"
)

// Config bounds the transport layer.
type Config struct {
	// ToolTimeout bounds one direct invocation.
	ToolTimeout time.Duration
	// ExpectTimeout is the default blocking-read timeout on sessions.
	ExpectTimeout time.Duration
	// ConsecutiveTimeoutLimit tears a session down after this many timeouts
	// in a row without an intervening successful read.
	ConsecutiveTimeoutLimit int
	// MaxOutputBytes caps captured output per invocation.
	MaxOutputBytes int64
	// GDBPath is the debugger binary, "gdb" by default.
	GDBPath string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ToolTimeout:             30 * time.Second,
		ExpectTimeout:           10 * time.Second,
		ConsecutiveTimeoutLimit: 3,
		MaxOutputBytes:          1 * 1024 * 1024,
		GDBPath:                 "gdb",
	}
}

// ExecResult is the outcome of one direct (non-interactive) invocation.
type ExecResult struct {
	Stdout    string
	Stderr    string
	Combined  string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// ExpectResult is the outcome of one blocking session read. Partial output is
// normal; callers re-issue Expect to drain more.
type ExpectResult struct {
	Output   string
	Matched  bool
	TimedOut bool
	// Exited reports that the child terminated during the read. ExitCode is
	// valid only when Exited is true and the exit status was recoverable.
	Exited   bool
	ExitCode int
}
