package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"binsleuth/internal/logging"
)

// maxStdinBytes caps planner-supplied stdin so a runaway payload cannot hang
// line-buffered readers in the target.
const maxStdinBytes = 4096

// RunBinaryTool executes the target, optionally feeding stdin and waiting
// for an expected marker. Runs with stdin or an expect pattern go through the
// interactive session; plain runs use the direct runner.
func RunBinaryTool() *Tool {
	return &Tool{
		Name:        "run_binary",
		Description: "Execute the target binary, optionally with arguments and stdin input.",
		Interactive: true,
		Schema: Schema{
			Properties: map[string]Property{
				"args":   {Type: "string_list", Description: "command-line arguments"},
				"stdin":  {Type: "string", Description: "input sent to the program"},
				"expect": {Type: "string", Description: "marker to wait for before sending stdin"},
			},
		},
		Invoke: func(ctx context.Context, args map[string]any, env *Env) (*Result, error) {
			cmdArgs := listArg(args, "args")
			stdin := stringArg(args, "stdin", "")
			expect := stringArg(args, "expect", "")

			if len(stdin) > maxStdinBytes {
				return nil, fmt.Errorf("stdin too large (%d bytes, max %d)", len(stdin), maxStdinBytes)
			}

			if stdin == "" && expect == "" {
				res, err := env.Runner.Run(ctx, env.Target, cmdArgs, "")
				if err != nil {
					return nil, err
				}
				return runReport(fromExec(res)), nil
			}
			return runInteractive(ctx, env, cmdArgs, stdin, expect)
		},
	}
}

// runInteractive drives one run of the target through the session handle.
func runInteractive(ctx context.Context, env *Env, cmdArgs []string, stdin, expect string) (*Result, error) {
	session, err := env.Handle.StartInteractive(cmdArgs...)
	if err != nil {
		return nil, err
	}

	var transcript strings.Builder

	if expect != "" {
		res, err := session.Expect(ctx, expect, 0)
		if err != nil {
			return nil, err
		}
		transcript.WriteString(res.Output)
		if res.Exited {
			code := res.ExitCode
			return runReport(&Result{RawOutput: transcript.String(), ExitCode: &code}), nil
		}
		if res.TimedOut {
			logging.ToolsWarn("run_binary: marker %q never appeared", expect)
			return runReport(&Result{RawOutput: transcript.String(), TimedOut: true}), nil
		}
	}

	if stdin != "" {
		// Newline discipline: a trailing newline avoids hangs in
		// line-buffered readers.
		if !strings.HasSuffix(stdin, "\n") {
			stdin += "\n"
		}
		if err := session.Send(stdin); err != nil {
			return nil, err
		}
	}

	// Drain output until the process exits or the read window closes.
	for {
		res, err := session.Expect(ctx, "", 0)
		if err != nil {
			return nil, err
		}
		transcript.WriteString(res.Output)
		if res.Exited {
			code := res.ExitCode
			return runReport(&Result{RawOutput: transcript.String(), ExitCode: &code}), nil
		}
		if res.TimedOut {
			return runReport(&Result{RawOutput: transcript.String(), TimedOut: true}), nil
		}
	}
}

// runReport renders the run outcome in the shape the critic reads.
func runReport(r *Result) *Result {
	var b strings.Builder
	if r.TimedOut {
		b.WriteString("Exit Code: none (execution timed out; the binary may be waiting for input)\n\n")
	} else if r.ExitCode != nil {
		fmt.Fprintf(&b, "Exit Code: %d\n\n", *r.ExitCode)
	}
	b.WriteString("Terminal Output:\n")
	b.WriteString(strings.TrimRight(r.RawOutput, "\n"))
	r.RawOutput = b.String()
	return r
}

// GDBTool runs a command batch against the long-lived debugger session.
func GDBTool() *Tool {
	return &Tool{
		Name:        "gdb",
		Description: "Run a batch of debugger commands against the target.",
		Interactive: true,
		Schema: Schema{
			Required: []string{"commands"},
			Properties: map[string]Property{
				"commands": {Type: "string_list", Description: `debugger commands, e.g. ["break main", "run", "info registers"]`},
			},
		},
		Invoke: func(ctx context.Context, args map[string]any, env *Env) (*Result, error) {
			commands := listArg(args, "commands")
			if len(commands) == 0 {
				return nil, fmt.Errorf("commands list is empty")
			}

			d, err := env.Handle.Debugger()
			if err != nil {
				return nil, err
			}

			start := time.Now()
			transcript, last, err := d.Batch(ctx, commands, 0)
			if err != nil {
				return nil, err
			}
			logging.ToolsDebug("gdb batch of %d commands in %v", len(commands), time.Since(start))

			r := &Result{RawOutput: transcript}
			if last != nil {
				if last.TimedOut {
					r.TimedOut = true
				}
				if last.Exited {
					code := last.ExitCode
					r.ExitCode = &code
				}
			}
			return r, nil
		},
	}
}
