package observe

import (
	"errors"
	"testing"
	"time"

	"binsleuth/internal/tools"
	"binsleuth/internal/types"
)

func TestBuild_InvokeErrorBecomesFailure(t *testing.T) {
	obs := Build(1, "objdump", nil, nil, errors.New("unknown tool"), time.Millisecond)
	if obs.Status != types.ObservationFailure {
		t.Errorf("expected failure status, got %s", obs.Status)
	}
	if obs.RawOutput != "unknown tool" {
		t.Errorf("expected error text preserved, got %q", obs.RawOutput)
	}
}

func TestBuild_TimeoutStatus(t *testing.T) {
	obs := Build(2, "run_binary", nil, &tools.Result{RawOutput: "Enter key:", TimedOut: true}, nil, time.Second)
	if obs.Status != types.ObservationTimeout {
		t.Errorf("expected timeout status, got %s", obs.Status)
	}
}

func TestBuild_MalformedDebuggerOutput(t *testing.T) {
	obs := Build(3, "gdb", nil, &tools.Result{RawOutput: "No symbol table is loaded."}, nil, time.Second)
	if obs.Status != types.ObservationMalformed {
		t.Errorf("expected malformed status for unparseable gdb output, got %s", obs.Status)
	}
}

func TestExtractFileSignals(t *testing.T) {
	out := "/tmp/crackme: ELF 64-bit LSB executable, x86-64, dynamically linked, not stripped"
	signals := extractFileSignals(out)

	want := map[string]string{"format": "ELF", "arch": "x86-64", "stripped": "false", "linkage": "dynamic"}
	got := map[string]string{}
	for _, s := range signals {
		got[s.Name] = s.Value
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("expected %s=%s, got %s", k, v, got[k])
		}
	}
}

func TestExtractStringSignals(t *testing.T) {
	out := "/lib64/ld-linux-x86-64.so.2\nlibc.so.6\nEnter license key:\nAccess Granted!\nrandom noise"
	signals := extractStringSignals(out)
	if len(signals) != 2 {
		t.Fatalf("expected 2 interesting strings, got %d: %v", len(signals), signals)
	}
}

func TestExtractRunSignals_PromptAndExit(t *testing.T) {
	code := 1
	res := &tools.Result{RawOutput: "Enter password: \nAccess Denied", ExitCode: &code}
	signals := extractRunSignals(res)

	var kinds []string
	for _, s := range signals {
		kinds = append(kinds, s.Kind)
	}
	hasKind := func(k string) bool {
		for _, kind := range kinds {
			if kind == k {
				return true
			}
		}
		return false
	}
	if !hasKind("exit_code") {
		t.Error("expected exit_code signal")
	}
	if !hasKind("prompt") {
		t.Error("expected prompt signal")
	}
	if !hasKind("string") {
		t.Error("expected denial banner signal")
	}
}

func TestExtractDebuggerSignals_Registers(t *testing.T) {
	out := `rax            0x539               1337
rip            0x401136            0x401136 <main+4>
Breakpoint 1, 0x0000000000401132 in main ()`
	signals := extractDebuggerSignals(out)

	foundRAX := false
	foundBreak := false
	for _, s := range signals {
		if s.Kind == "register" && s.Name == "rax" && s.Value == "0x539" {
			foundRAX = true
		}
		if s.Kind == "note" && s.Name == "breakpoint" {
			foundBreak = true
		}
	}
	if !foundRAX {
		t.Errorf("expected rax register signal, got %v", signals)
	}
	if !foundBreak {
		t.Errorf("expected breakpoint signal, got %v", signals)
	}
}

func TestExtractDebuggerSignals_AddressFallback(t *testing.T) {
	signals := extractDebuggerSignals("$1 = 0x404038")
	if len(signals) == 0 || signals[0].Kind != "address" {
		t.Errorf("expected address fallback signal, got %v", signals)
	}
}

func TestExtractHexdumpSignals_Magic(t *testing.T) {
	out := "00000000  7f 45 4c 46 02 01 01 00  00 00 00 00 00 00 00 00  |.ELF............|"
	signals := extractHexdumpSignals(out)
	found := false
	for _, s := range signals {
		if s.Name == "magic" && s.Value == "ELF" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ELF magic signal, got %v", signals)
	}
}
