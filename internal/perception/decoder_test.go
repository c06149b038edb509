package perception

import (
	"errors"
	"testing"

	"binsleuth/internal/types"
)

func TestDecodePlanStep_Plain(t *testing.T) {
	raw := `{"intent": "extract printable strings", "tool": "strings", "params": {"min_length": 6}, "rationale": "cheap first look"}`
	step, err := DecodePlanStep(raw)
	if err != nil {
		t.Fatalf("DecodePlanStep failed: %v", err)
	}
	if step.Tool != "strings" {
		t.Errorf("expected tool strings, got %q", step.Tool)
	}
	if step.Intent != "extract printable strings" {
		t.Errorf("unexpected intent: %q", step.Intent)
	}
	if v, ok := step.Params["min_length"]; !ok || v.(float64) != 6 {
		t.Errorf("expected min_length=6, got %v", step.Params)
	}
}

func TestDecodePlanStep_CodeFence(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"intent\": \"run it\", \"tool\": \"run_binary\", \"params\": {\"stdin\": \"AAAA\"}}\n```\nLet me know."
	step, err := DecodePlanStep(raw)
	if err != nil {
		t.Fatalf("DecodePlanStep failed: %v", err)
	}
	if step.Tool != "run_binary" {
		t.Errorf("expected tool run_binary, got %q", step.Tool)
	}
}

func TestDecodePlanStep_BracesInStrings(t *testing.T) {
	raw := `{"intent": "check for { in output }", "tool": "hexdump", "params": {"offset": 0}}`
	step, err := DecodePlanStep(raw)
	if err != nil {
		t.Fatalf("DecodePlanStep failed: %v", err)
	}
	if step.Tool != "hexdump" {
		t.Errorf("expected tool hexdump, got %q", step.Tool)
	}
}

func TestDecodePlanStep_NoTool(t *testing.T) {
	_, err := DecodePlanStep(`{"intent": "think harder"}`)
	if err == nil {
		t.Fatal("expected error for step without tool")
	}
	if !errors.Is(err, types.ErrPlanning) {
		t.Errorf("expected ErrPlanning, got %v", err)
	}
}

func TestDecodePlanStep_NotJSON(t *testing.T) {
	_, err := DecodePlanStep("I am unable to help with that.")
	if !errors.Is(err, types.ErrPlanning) {
		t.Errorf("expected ErrPlanning, got %v", err)
	}
}

func TestDecodeCriticVerdict(t *testing.T) {
	raw := `{
		"decision": "unsatisfied",
		"next_focus": "test candidate password against stdin",
		"understanding": 0.4,
		"open_questions": ["is the comparison at 0x401200?"],
		"hypotheses": [
			{"claim": "input is compared byte-wise", "confidence": 0.6, "supporting_observations": [2, 3]}
		]
	}`
	verdict, err := DecodeCriticVerdict(raw)
	if err != nil {
		t.Fatalf("DecodeCriticVerdict failed: %v", err)
	}
	if verdict.Decision != types.DecisionUnsatisfied {
		t.Errorf("expected unsatisfied, got %q", verdict.Decision)
	}
	if len(verdict.Hypotheses) != 1 || verdict.Hypotheses[0].Confidence != 0.6 {
		t.Errorf("unexpected hypotheses: %+v", verdict.Hypotheses)
	}
}

func TestDecodeCriticVerdict_UnknownDecision(t *testing.T) {
	_, err := DecodeCriticVerdict(`{"decision": "maybe"}`)
	if !errors.Is(err, types.ErrPlanning) {
		t.Errorf("expected ErrPlanning, got %v", err)
	}
}

func TestDecodeCriticVerdict_ClampsUnderstanding(t *testing.T) {
	verdict, err := DecodeCriticVerdict(`{"decision": "satisfied", "understanding": 1.7}`)
	if err != nil {
		t.Fatalf("DecodeCriticVerdict failed: %v", err)
	}
	if verdict.Understanding != 1.0 {
		t.Errorf("expected understanding clamped to 1.0, got %v", verdict.Understanding)
	}
}

func TestExtractJSON_Empty(t *testing.T) {
	if _, err := extractJSON("   "); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}
