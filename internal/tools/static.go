package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"binsleuth/internal/transport"
)

// maxStringsLines caps the strings output fed back into prompts.
const maxStringsLines = 500

// FileTool identifies the binary's container format and metadata.
func FileTool() *Tool {
	return &Tool{
		Name:        "file",
		Description: "Identify the binary's type, architecture, and metadata.",
		Schema:      Schema{Properties: map[string]Property{}},
		Invoke: func(ctx context.Context, args map[string]any, env *Env) (*Result, error) {
			res, err := env.Runner.Run(ctx, "file", []string{env.Target}, "")
			if err != nil {
				return nil, err
			}
			return fromExec(res), nil
		},
	}
}

// StringsTool extracts printable strings from the target.
func StringsTool() *Tool {
	return &Tool{
		Name:        "strings",
		Description: "Extract printable strings from the binary.",
		Schema: Schema{
			Properties: map[string]Property{
				"min_length": {Type: "int", Description: "minimum string length (default 4)"},
			},
		},
		Invoke: func(ctx context.Context, args map[string]any, env *Env) (*Result, error) {
			minLen := intArg(args, "min_length", 4)
			if minLen < 1 {
				minLen = 4
			}
			res, err := env.Runner.Run(ctx, "strings", []string{"-n", strconv.Itoa(minLen), env.Target}, "")
			if err != nil {
				return nil, err
			}
			out := fromExec(res)
			// Cap line count so the decision input stays bounded.
			lines := strings.Split(out.RawOutput, "\n")
			if len(lines) > maxStringsLines {
				out.RawOutput = strings.Join(lines[:maxStringsLines], "\n") +
					fmt.Sprintf("\n... (%d more lines truncated)", len(lines)-maxStringsLines)
			}
			return out, nil
		},
	}
}

// HexdumpTool shows a canonical hex+ASCII view of a byte range.
func HexdumpTool() *Tool {
	return &Tool{
		Name:        "hexdump",
		Description: "Hex + ASCII view of a byte range of the binary.",
		Schema: Schema{
			Properties: map[string]Property{
				"offset": {Type: "int", Description: "starting byte offset (default 0)"},
				"length": {Type: "int", Description: "number of bytes (default 256)"},
			},
		},
		Invoke: func(ctx context.Context, args map[string]any, env *Env) (*Result, error) {
			offset := intArg(args, "offset", 0)
			length := intArg(args, "length", 256)
			if offset < 0 {
				offset = 0
			}
			if length <= 0 || length > 4096 {
				length = 256
			}
			res, err := env.Runner.Run(ctx, "hexdump",
				[]string{"-C", "-s", strconv.Itoa(offset), "-n", strconv.Itoa(length), env.Target}, "")
			if err != nil {
				return nil, err
			}
			return fromExec(res), nil
		},
	}
}

// fromExec converts a direct execution into a tool result. The exit code is
// only meaningful when the process ran to completion.
func fromExec(res *transport.ExecResult) *Result {
	r := &Result{RawOutput: strings.TrimRight(res.Combined, "\n"), TimedOut: res.TimedOut}
	if !res.TimedOut {
		code := res.ExitCode
		r.ExitCode = &code
	}
	return r
}
