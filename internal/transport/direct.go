package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"binsleuth/internal/logging"
)

// DirectRunner executes one-shot commands (file, strings, hexdump, plain
// binary runs) with a hard timeout and bounded output capture.
type DirectRunner struct {
	config Config
}

// NewDirectRunner creates a direct runner with default config.
func NewDirectRunner() *DirectRunner {
	return NewDirectRunnerWithConfig(DefaultConfig())
}

// NewDirectRunnerWithConfig creates a direct runner with custom config.
func NewDirectRunnerWithConfig(config Config) *DirectRunner {
	if config.ToolTimeout <= 0 {
		config.ToolTimeout = 30 * time.Second
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = 1 * 1024 * 1024
	}
	return &DirectRunner{config: config}
}

// Run executes binary with args, optionally feeding stdin, and captures
// bounded output. A timeout kills the process and is reported in the result,
// not as an error; only failure to start at all returns an error.
func (r *DirectRunner) Run(ctx context.Context, binary string, args []string, stdin string) (*ExecResult, error) {
	timer := logging.StartTimer(logging.CategoryTransport, "direct run")
	defer timer.Stop()

	logging.Transport("exec: %s %s", binary, strings.Join(args, " "))

	execCtx, cancel := context.WithTimeout(ctx, r.config.ToolTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, binary, args...)
	if stdin != "" {
		logging.TransportDebug("exec: providing %d bytes on stdin", len(stdin))
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: r.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: r.config.MaxOutputBytes}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	started := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		ExitCode:  0,
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
		Duration:  time.Since(started),
	}
	result.Combined = result.Stdout
	if result.Stderr != "" {
		if result.Combined != "" {
			result.Combined += "\n"
		}
		result.Combined += result.Stderr
	}

	if err != nil {
		switch {
		case execCtx.Err() == context.DeadlineExceeded:
			result.TimedOut = true
			result.ExitCode = -1
			logging.TransportWarn("exec: %s killed after %s", binary, r.config.ToolTimeout)
		case execCtx.Err() == context.Canceled:
			result.TimedOut = true
			result.ExitCode = -1
			logging.TransportDebug("exec: %s canceled", binary)
		default:
			if exitErr, ok := err.(*exec.ExitError); ok {
				// Ran but returned non-zero; that is data, not an error.
				result.ExitCode = exitErr.ExitCode()
				logging.TransportDebug("exec: %s exited %d", binary, result.ExitCode)
			} else {
				return nil, fmt.Errorf("failed to run %s: %w", binary, err)
			}
		}
	}

	if result.Truncated {
		logging.TransportWarn("exec: %s output truncated at %d bytes", binary, r.config.MaxOutputBytes)
	}
	return result, nil
}

// limitedWriter caps total bytes written, swallowing the overflow so the
// child never sees a write error.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}
	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
