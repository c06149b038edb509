// Package tools maps tool identifiers to invocable analysis actions against
// the target binary. Static tools (file, strings, hexdump) are one-shot;
// dynamic tools (run_binary, gdb) operate through the long-lived session
// handle and may block awaiting a prompt.
package tools

import (
	"context"

	"binsleuth/internal/transport"
)

// Env carries the execution substrate handed to every tool invocation.
type Env struct {
	// Target is the absolute path of the binary under analysis.
	Target string

	// Runner executes one-shot commands.
	Runner *transport.DirectRunner

	// Handle owns the interactive and debugger sessions.
	Handle *transport.SessionHandle

	// SearchAPIKey and SearchBaseURL configure the web_search tool.
	SearchAPIKey  string
	SearchBaseURL string
}

// Result is the raw outcome of one tool invocation, before signal extraction.
type Result struct {
	RawOutput string
	ExitCode  *int
	TimedOut  bool
}

// InvokeFunc runs a tool with already-decoded parameters.
type InvokeFunc func(ctx context.Context, args map[string]any, env *Env) (*Result, error)

// Property describes one parameter for schema validation.
type Property struct {
	// Type is one of "string", "int", "string_list".
	Type        string
	Description string
}

// Schema declares a tool's expected parameters.
type Schema struct {
	Required   []string
	Properties map[string]Property
}

// Tool is one registered analysis action.
type Tool struct {
	Name        string
	Description string

	// Interactive marks tools that operate against the session handle and
	// may block awaiting a prompt.
	Interactive bool

	Schema Schema
	Invoke InvokeFunc
}

// Validate checks the tool definition.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Invoke == nil {
		return ErrToolInvokeNil
	}
	return nil
}
