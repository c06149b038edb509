package types

import (
	"errors"
	"strings"
	"testing"
)

func TestDeriveArtifactKey_Deterministic(t *testing.T) {
	k1 := DeriveArtifactKey(ArtifactKey, "SECRET-1234")
	k2 := DeriveArtifactKey(ArtifactKey, "SECRET-1234")
	if k1 != k2 {
		t.Errorf("same content produced different keys: %s vs %s", k1, k2)
	}

	k3 := DeriveArtifactKey(ArtifactString, "SECRET-1234")
	if k1 == k3 {
		t.Error("different kinds should produce different keys")
	}
}

func TestFatalReason(t *testing.T) {
	r := FatalReason("session")
	if r != "fatal:session" {
		t.Errorf("expected fatal:session, got %s", r)
	}
	if !r.IsFatal() {
		t.Error("fatal reason not detected as fatal")
	}
	if ReasonGoalSatisfied.IsFatal() {
		t.Error("goal_satisfied should not be fatal")
	}
}

func TestTerminalReason_Err(t *testing.T) {
	if err := ReasonGoalSatisfied.Err(); err != nil {
		t.Errorf("goal_satisfied should map to nil, got %v", err)
	}
	if !errors.Is(ReasonBudgetExhausted.Err(), ErrLoopBudgetExhausted) {
		t.Error("budget_exhausted should map to ErrLoopBudgetExhausted")
	}
	if !errors.Is(ReasonCircularityUnresolved.Err(), ErrCircularityDetected) {
		t.Error("circularity_unresolved should map to ErrCircularityDetected")
	}
	if !errors.Is(FatalReason("planning").Err(), ErrPlanning) {
		t.Error("fatal:planning should map to ErrPlanning")
	}
	if !errors.Is(FatalReason("session").Err(), ErrSessionFatal) {
		t.Error("fatal:session should map to ErrSessionFatal")
	}
}

func TestObservation_Failure(t *testing.T) {
	cases := []struct {
		status ObservationStatus
		want   error
	}{
		{ObservationSuccess, nil},
		{ObservationFailure, ErrTool},
		{ObservationTimeout, ErrExecutionTimeout},
		{ObservationMalformed, ErrMalformedObservation},
	}
	for _, c := range cases {
		got := Observation{Status: c.status}.Failure()
		if !errors.Is(got, c.want) {
			t.Errorf("status %s: got %v, want %v", c.status, got, c.want)
		}
	}
}

func TestStateSummary_Describe(t *testing.T) {
	stripped := true
	s := StateSummary{
		Target: TargetInfo{
			BinaryPath: "/tmp/demo",
			Format:     FormatELF,
			Arch:       "x86_64",
			Stripped:   &stripped,
		},
		RecentObservations: []Observation{
			{TurnID: 1, Tool: "strings", Status: ObservationSuccess, RawOutput: "Hello, %s!\n"},
		},
		Hypotheses: []Hypothesis{
			{ID: "h1", Claim: "the greeting is a format string", Confidence: 0.7},
			{ID: "h0", Claim: "old claim", Confidence: 0.2, SupersededBy: "h1"},
		},
		Artifacts: []Artifact{
			{Kind: ArtifactString, Value: "Hello, %s!"},
		},
		TurnsTaken: 1,
	}

	out := s.Describe()
	for _, want := range []string{"/tmp/demo", "x86_64", "stripped=true", "h1", "Hello"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "old claim") {
		t.Error("superseded hypothesis should not appear in summary")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("short string should be untouched, got %q", got)
	}
	long := strings.Repeat("x", 200)
	got := Truncate(long, 10)
	if len(got) >= 200 || !strings.HasSuffix(got, "(truncated)") {
		t.Errorf("long string not truncated: %q", got)
	}
}
