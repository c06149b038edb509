package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"binsleuth/internal/logging"
	"binsleuth/internal/types"
)

// Registry holds all available tools. It is thread-safe and supports
// registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// NewDefaultRegistry creates a registry with the full analysis toolset.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(FileTool())
	r.MustRegister(StringsTool())
	r.MustRegister(HexdumpTool())
	r.MustRegister(RunBinaryTool())
	r.MustRegister(GDBTool())
	r.MustRegister(WebSearchTool())
	return r
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	logging.ToolsDebug("registered tool %s (interactive=%v)", tool.Name, tool.Interactive)
	return nil
}

// MustRegister registers a tool and panics on error. For static registration
// at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke resolves a plan step's tool, validates and coerces its parameters,
// and runs it. Unknown tools and schema violations return an error wrapping
// ErrTool, which the caller absorbs into a failure observation rather than a
// crash. Only infrastructure faults (session fatal, cancellation) pass
// through unwrapped.
func (r *Registry) Invoke(ctx context.Context, step types.PlanStep, env *Env) (*Result, error) {
	tool := r.Get(step.Tool)
	if tool == nil {
		logging.ToolsError("unknown tool %q", step.Tool)
		return nil, fmt.Errorf("%w: unknown tool %q (available: %v)", types.ErrTool, step.Tool, r.Names())
	}

	args, err := coerceParams(tool.Schema, step.Params)
	if err != nil {
		logging.ToolsError("%s: bad params: %v", tool.Name, err)
		return nil, fmt.Errorf("%w: %s: %v", types.ErrTool, tool.Name, err)
	}

	logging.Tools("invoking %s", tool.Name)
	return tool.Invoke(ctx, args, env)
}

// coerceParams validates params against the schema and coerces loosely-typed
// values (LLM JSON renders ints as float64 and sometimes numbers as strings)
// into the declared types.
func coerceParams(schema Schema, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	for _, req := range schema.Required {
		if _, ok := params[req]; !ok {
			return nil, fmt.Errorf("missing required parameter %q", req)
		}
	}

	out := make(map[string]any, len(params))
	for name, raw := range params {
		prop, known := schema.Properties[name]
		if !known {
			// Unknown parameters are dropped, not fatal; planners improvise.
			logging.ToolsDebug("dropping unknown parameter %q", name)
			continue
		}
		coerced, err := coerceValue(prop.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		out[name] = coerced
	}
	return out, nil
}

func coerceValue(typ string, raw any) (any, error) {
	switch typ {
	case "string":
		var s string
		if err := weakDecode(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case "int":
		var n int
		if err := weakDecode(raw, &n); err != nil {
			return nil, err
		}
		return n, nil
	case "string_list":
		var l []string
		if err := weakDecode(raw, &l); err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown schema type %q", typ)
	}
}

func weakDecode(raw, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Arg helpers for tool implementations; coerceParams guarantees the types.

func stringArg(args map[string]any, name, fallback string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intArg(args map[string]any, name string, fallback int) int {
	if v, ok := args[name].(int); ok {
		return v
	}
	return fallback
}

func listArg(args map[string]any, name string) []string {
	if v, ok := args[name].([]string); ok {
		return v
	}
	return nil
}
