package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"binsleuth/internal/types"
)

// writeScriptTarget builds an executable shell script standing in for the
// target binary.
func writeScriptTarget(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write target: %v", err)
	}
	return path
}

func TestRunBinary_PlainRun(t *testing.T) {
	target := writeScriptTarget(t, `echo "hello from target"; exit 0`)
	r := NewDefaultRegistry()

	res, err := r.Invoke(context.Background(), types.PlanStep{Tool: "run_binary"}, testEnv(t, target))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if !strings.Contains(res.RawOutput, "hello from target") {
		t.Errorf("expected program output, got %q", res.RawOutput)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", res.ExitCode)
	}
}

func TestRunBinary_StdinAgainstPrompt(t *testing.T) {
	target := writeScriptTarget(t, `printf "Enter key: "
read key
if [ "$key" = "sesame" ]; then echo "Access Granted"; exit 0; fi
echo "Denied"; exit 1`)
	r := NewDefaultRegistry()

	res, err := r.Invoke(context.Background(), types.PlanStep{
		Tool:   "run_binary",
		Params: map[string]any{"stdin": "sesame", "expect": "Enter key:"},
	}, testEnv(t, target))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if !strings.Contains(res.RawOutput, "Access Granted") {
		t.Errorf("expected success banner, got %q", res.RawOutput)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %v", res.ExitCode)
	}
}

func TestRunBinary_StdinTooLarge(t *testing.T) {
	target := writeScriptTarget(t, "cat")
	r := NewDefaultRegistry()
	_, err := r.Invoke(context.Background(), types.PlanStep{
		Tool:   "run_binary",
		Params: map[string]any{"stdin": strings.Repeat("A", maxStdinBytes+1)},
	}, testEnv(t, target))
	if err == nil {
		t.Fatal("expected oversized stdin to be rejected")
	}
}

func TestStringsTool(t *testing.T) {
	if _, err := exec.LookPath("strings"); err != nil {
		t.Skip("strings not installed")
	}
	target := writeScriptTarget(t, `echo "SECRET_LICENSE_MARKER"`)
	r := NewDefaultRegistry()

	res, err := r.Invoke(context.Background(), types.PlanStep{
		Tool:   "strings",
		Params: map[string]any{"min_length": float64(6)},
	}, testEnv(t, target))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if !strings.Contains(res.RawOutput, "SECRET_LICENSE_MARKER") {
		t.Errorf("expected marker in strings output, got %q", res.RawOutput)
	}
}

func TestFileTool(t *testing.T) {
	if _, err := exec.LookPath("file"); err != nil {
		t.Skip("file not installed")
	}
	target := writeScriptTarget(t, "true")
	r := NewDefaultRegistry()

	res, err := r.Invoke(context.Background(), types.PlanStep{Tool: "file"}, testEnv(t, target))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if res.RawOutput == "" {
		t.Error("expected file description")
	}
}

func TestWebSearch(t *testing.T) {
	// The endpoint lives at /search; a configured base URL is the host
	// root, matching what the config layer hands the tool.
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"results": [{"title": "CVE-2024-0001", "url": "https://example.com/cve", "content": "stack overflow in parser"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := testEnv(t, "/bin/true")
	env.SearchAPIKey = "test-key"
	env.SearchBaseURL = srv.URL

	r := NewDefaultRegistry()
	res, err := r.Invoke(context.Background(), types.PlanStep{
		Tool:   "web_search",
		Params: map[string]any{"query": "libc parser CVE"},
	}, env)
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if !strings.Contains(res.RawOutput, "CVE-2024-0001") {
		t.Errorf("expected search result, got %q", res.RawOutput)
	}
}

func TestSearchEndpoint(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"", "https://api.tavily.com/search"},
		{"https://api.tavily.com", "https://api.tavily.com/search"},
		{"https://api.tavily.com/", "https://api.tavily.com/search"},
		{"http://127.0.0.1:9999/search", "http://127.0.0.1:9999/search"},
	}
	for _, c := range cases {
		if got := searchEndpoint(c.base); got != c.want {
			t.Errorf("searchEndpoint(%q) = %q, want %q", c.base, got, c.want)
		}
	}
}

func TestWebSearch_NoKey(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.Invoke(context.Background(), types.PlanStep{
		Tool:   "web_search",
		Params: map[string]any{"query": "anything"},
	}, testEnv(t, "/bin/true"))
	if err == nil {
		t.Fatal("expected error without API key")
	}
}
