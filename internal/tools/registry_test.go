package tools

import (
	"context"
	"errors"
	"testing"

	"binsleuth/internal/transport"
	"binsleuth/internal/types"
)

func testEnv(t *testing.T, target string) *Env {
	t.Helper()
	cfg := transport.DefaultConfig()
	h := transport.NewSessionHandle(cfg, target)
	t.Cleanup(h.Close)
	return &Env{
		Target: target,
		Runner: transport.NewDirectRunnerWithConfig(cfg),
		Handle: h,
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	tool := &Tool{Name: "x", Invoke: func(context.Context, map[string]any, *Env) (*Result, error) { return &Result{}, nil }}
	if err := r.Register(tool); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := r.Register(tool); !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Errorf("expected duplicate rejection, got %v", err)
	}
}

func TestRegistry_UnknownToolIsToolError(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.Invoke(context.Background(), types.PlanStep{Tool: "objdump"}, testEnv(t, "/bin/true"))
	if !errors.Is(err, types.ErrTool) {
		t.Fatalf("expected ErrTool for unknown tool, got %v", err)
	}
}

func TestRegistry_MissingRequiredParam(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.Invoke(context.Background(), types.PlanStep{Tool: "gdb"}, testEnv(t, "/bin/true"))
	if !errors.Is(err, types.ErrTool) {
		t.Fatalf("expected ErrTool for missing commands, got %v", err)
	}
}

func TestCoerceParams_WeakTyping(t *testing.T) {
	schema := Schema{
		Properties: map[string]Property{
			"min_length": {Type: "int"},
			"stdin":      {Type: "string"},
			"commands":   {Type: "string_list"},
		},
	}
	// JSON numbers decode as float64 and LLMs sometimes quote them.
	args, err := coerceParams(schema, map[string]any{
		"min_length": float64(6),
		"stdin":      "abc",
		"commands":   []any{"break main", "run"},
	})
	if err != nil {
		t.Fatalf("coerceParams failed: %v", err)
	}
	if args["min_length"].(int) != 6 {
		t.Errorf("expected min_length 6, got %v", args["min_length"])
	}
	if got := args["commands"].([]string); len(got) != 2 || got[0] != "break main" {
		t.Errorf("unexpected commands: %v", got)
	}

	args, err = coerceParams(schema, map[string]any{"min_length": "8"})
	if err != nil {
		t.Fatalf("string-to-int coercion failed: %v", err)
	}
	if args["min_length"].(int) != 8 {
		t.Errorf("expected min_length 8, got %v", args["min_length"])
	}
}

func TestCoerceParams_DropsUnknown(t *testing.T) {
	args, err := coerceParams(Schema{Properties: map[string]Property{}}, map[string]any{"surprise": true})
	if err != nil {
		t.Fatalf("coerceParams failed: %v", err)
	}
	if _, ok := args["surprise"]; ok {
		t.Error("unknown parameter should be dropped")
	}
}

func TestDefaultRegistry_Names(t *testing.T) {
	r := NewDefaultRegistry()
	for _, name := range []string{"file", "strings", "hexdump", "run_binary", "gdb", "web_search"} {
		if !r.Has(name) {
			t.Errorf("expected tool %q registered", name)
		}
	}
}
