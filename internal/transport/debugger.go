package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"binsleuth/internal/logging"
	"binsleuth/internal/types"
)

// gdbPrompt is the sentinel the debugger prints when ready for a command.
const gdbPrompt = "(gdb)"

// DebuggerSession drives a gdb process attached to the target binary.
// Commands are textual; each is issued and read back up to the next prompt,
// so one Command call maps to one request/response exchange.
type DebuggerSession struct {
	session *InteractiveSession
}

// SpawnDebugger starts gdb against the target. The -q/--nx flags keep the
// banner and user init files out of the output stream.
func SpawnDebugger(config Config, binaryPath string) (*DebuggerSession, error) {
	gdb := config.GDBPath
	if gdb == "" {
		gdb = "gdb"
	}
	s, err := SpawnInteractive(config, gdb, "-q", "--nx", binaryPath)
	if err != nil {
		return nil, err
	}

	d := &DebuggerSession{session: s}

	// Swallow the startup output up to the first prompt.
	ctx, cancel := context.WithTimeout(context.Background(), config.ExpectTimeout)
	defer cancel()
	res, err := s.Expect(ctx, gdbPrompt, 0)
	if err != nil {
		s.Kill()
		return nil, fmt.Errorf("%w: debugger startup: %v", types.ErrSessionFatal, err)
	}
	if res.Exited {
		s.Kill()
		return nil, fmt.Errorf("%w: debugger exited during startup (code %d)", types.ErrSessionFatal, res.ExitCode)
	}
	if res.TimedOut {
		s.Kill()
		return nil, fmt.Errorf("%w: no debugger prompt within %s", types.ErrSessionFatal, config.ExpectTimeout)
	}

	logging.Session("debugger ready for %s", binaryPath)
	return d, nil
}

// Command issues one debugger command and returns the output captured up to
// the next prompt. A timeout returns the partial output with TimedOut set.
func (d *DebuggerSession) Command(ctx context.Context, command string, timeout time.Duration) (*ExpectResult, error) {
	logging.SessionDebug("gdb: %s", command)
	if err := d.session.SendLine(command); err != nil {
		return nil, err
	}
	res, err := d.session.Expect(ctx, gdbPrompt, timeout)
	if err != nil {
		return nil, err
	}
	res.Output = stripEcho(res.Output, command)
	return res, nil
}

// Batch runs a command sequence, stopping early if the debugger exits or a
// command times out. It returns the concatenated annotated transcript.
func (d *DebuggerSession) Batch(ctx context.Context, commands []string, timeout time.Duration) (string, *ExpectResult, error) {
	var transcript strings.Builder
	var last *ExpectResult
	for _, command := range commands {
		res, err := d.Command(ctx, command, timeout)
		if err != nil {
			return transcript.String(), last, err
		}
		last = res
		fmt.Fprintf(&transcript, "(gdb) %s\n%s\n", command, strings.TrimRight(res.Output, "\n"))
		if res.Exited {
			logging.Session("debugger exited mid-batch after %q", command)
			break
		}
		if res.TimedOut {
			logging.SessionWarn("debugger command %q timed out", command)
			break
		}
	}
	return transcript.String(), last, nil
}

// TimeoutStreak exposes the underlying session's consecutive-timeout count.
func (d *DebuggerSession) TimeoutStreak() int { return d.session.TimeoutStreak() }

// Kill terminates the debugger and the inferior it controls.
func (d *DebuggerSession) Kill() { d.session.Kill() }

// stripEcho drops a leading echo of the issued command and the trailing
// prompt from a response.
func stripEcho(output, command string) string {
	out := output
	if idx := strings.Index(out, command); idx == 0 {
		out = out[len(command):]
	}
	if idx := strings.LastIndex(out, gdbPrompt); idx >= 0 {
		out = out[:idx]
	}
	return strings.TrimSpace(out)
}
