package transport

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func TestDebuggerSession_Batch(t *testing.T) {
	if _, err := exec.LookPath("gdb"); err != nil {
		t.Skip("gdb not installed")
	}

	cat, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("no target binary available")
	}

	d, err := SpawnDebugger(testConfig(), cat)
	if err != nil {
		t.Fatalf("spawn debugger: %v", err)
	}
	defer d.Kill()

	transcript, last, err := d.Batch(context.Background(), []string{"info functions main", "print 1+1"}, 0)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if last == nil || !last.Matched {
		t.Fatalf("expected prompt-terminated responses, got %+v", last)
	}
	if !strings.Contains(transcript, "print 1+1") {
		t.Errorf("expected transcript to annotate commands, got %q", transcript)
	}
	if !strings.Contains(transcript, "= 2") {
		t.Errorf("expected evaluated expression in transcript, got %q", transcript)
	}
}

func TestStripEcho(t *testing.T) {
	out := stripEcho("print 1+1\n$1 = 2\n(gdb) ", "print 1+1")
	if out != "$1 = 2" {
		t.Errorf("unexpected stripped output: %q", out)
	}
}
