// Package prompt builds the system and user messages for the planner and
// critic decision calls. Templates demand strict JSON matching the decoder
// schemas in internal/perception.
package prompt

import (
	"fmt"
	"strings"

	"binsleuth/internal/types"
)

// plannerSystemPrompt frames the planner's role and the PlanStep schema.
const plannerSystemPrompt = `You are the planner for an automated binary reverse engineering session.
Each turn you choose exactly ONE next action against the target binary.

Available tools:
- file: identify the binary container format and metadata. Params: none.
- strings: extract printable strings. Params: min_length (int, default 4).
- hexdump: hex view of a byte range. Params: offset (int, default 0), length (int, default 256).
- run_binary: execute the target. Params: args (list of strings), stdin (string sent to the program), expect (string to wait for, optional).
- gdb: run a batch of debugger commands against the target. Params: commands (list of strings, e.g. ["break main", "run", "info registers"]).
- web_search: look up external information. Params: query (string).

Rules:
1. Choose the cheapest tool that can advance the goal. Use strings/file/hexdump before dynamic analysis.
2. Use run_binary to TEST hypotheses: if a candidate password or key was observed, feed it via stdin.
3. If the program prompted for input on a previous run, provide concrete input this time.
4. Never repeat an action whose result you already have.

Respond with ONLY a JSON object, no prose:
{"intent": "what this step finds out", "tool": "<tool name>", "params": {...}, "rationale": "why this step now"}`

// criticSystemPrompt frames the critic's role and the CriticVerdict schema.
const criticSystemPrompt = `You are the critic for an automated binary reverse engineering session.
Judge whether the stated goal has been met given the accumulated evidence.

Decisions:
- "satisfied": the goal is demonstrably met (e.g. the binary printed a success message for a tested input).
- "unsatisfied": more work is needed; set next_focus to the most promising direction.
- "stuck": the session is not making progress and the planner must change strategy.

You may also amend the working state:
- hypotheses: new or revised claims about the binary, each with a confidence in [0,1]
  and the turn ids of supporting observations. To revise an earlier hypothesis,
  set "supersedes" to its id.
- promotions: hypotheses corroborated strongly enough to record as facts.
  Kinds: "string", "key", "address", "payload", "note".

Respond with ONLY a JSON object, no prose:
{"decision": "satisfied|unsatisfied|stuck", "next_focus": "...", "understanding": 0.0,
 "open_questions": ["..."], "reason": "...",
 "hypotheses": [{"claim": "...", "confidence": 0.5, "supporting_observations": [1], "supersedes": ""}],
 "promotions": [{"kind": "key", "value": "...", "source_hypothesis": "..."}]}`

// PlannerSystem returns the planner system prompt.
func PlannerSystem() string { return plannerSystemPrompt }

// CriticSystem returns the critic system prompt.
func CriticSystem() string { return criticSystemPrompt }

// PlannerUser renders the per-turn planner input from the goal and the
// bounded state summary. forcedChange injects the loop-detection nudge;
// lastErr annotates a retry after an unusable completion.
func PlannerUser(goal types.AnalysisGoal, summary types.StateSummary, forcedChange bool, lastErr string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Goal\n%s\n\n## Current State\n%s\n", goal.Objective, summary.Describe())
	if forcedChange {
		b.WriteString("\n## FORCED STRATEGY CHANGE\n")
		b.WriteString("Your recent actions repeated without producing new findings. ")
		b.WriteString("You MUST pick a materially different tool or parameters this turn.\n")
	}
	if lastErr != "" {
		fmt.Fprintf(&b, "\n## Previous Response Rejected\n%s\nReturn valid JSON exactly matching the schema.\n", lastErr)
	}
	b.WriteString("\nChoose the next step now.")
	return b.String()
}

// CriticUser renders the per-turn critic input: goal, state summary, and the
// plan/observation pair just completed.
func CriticUser(goal types.AnalysisGoal, summary types.StateSummary, turn types.TurnRecord, lastErr string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Goal\n%s\n\n## Current State\n%s\n", goal.Objective, summary.Describe())
	fmt.Fprintf(&b, "\n## This Turn\nPlanned: %s (tool=%s)\n", turn.Plan.Intent, turn.Plan.Tool)
	obs := turn.Observation
	fmt.Fprintf(&b, "Result [%s]: %s\n", obs.Status, types.Truncate(obs.RawOutput, 2000))
	if obs.ExitCode != nil {
		fmt.Fprintf(&b, "Exit code: %d\n", *obs.ExitCode)
	}
	for _, sig := range obs.Signals {
		fmt.Fprintf(&b, "Signal %s %s: %s\n", sig.Kind, sig.Name, types.Truncate(sig.Value, 200))
	}
	if obs.Status == types.ObservationTimeout {
		b.WriteString("Note: the invocation timed out. If the output suggests the binary prompts for input, plan a run with concrete stdin next.\n")
	}
	if lastErr != "" {
		fmt.Fprintf(&b, "\n## Previous Response Rejected\n%s\nReturn valid JSON exactly matching the schema.\n", lastErr)
	}
	b.WriteString("\nEvaluate progress and respond now.")
	return b.String()
}
