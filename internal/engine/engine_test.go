package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"binsleuth/internal/prompt"
	"binsleuth/internal/state"
	"binsleuth/internal/tools"
	"binsleuth/internal/transport"
	"binsleuth/internal/types"
)

// scriptedClient replays canned planner and critic responses in order,
// dispatching on the system prompt. An exhausted queue errors, which the
// engine treats as a planning failure.
type scriptedClient struct {
	mu      sync.Mutex
	planner []string
	critic  []string

	plannerPrompts []string
	criticPrompts  []string
}

func (c *scriptedClient) Complete(ctx context.Context, p string) (string, error) {
	return c.CompleteWithSystem(ctx, "", p)
}

func (c *scriptedClient) CompleteWithSystem(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if system == prompt.CriticSystem() {
		c.criticPrompts = append(c.criticPrompts, user)
		if len(c.critic) == 0 {
			return "", errors.New("critic script exhausted")
		}
		resp := c.critic[0]
		c.critic = c.critic[1:]
		return resp, nil
	}
	c.plannerPrompts = append(c.plannerPrompts, user)
	if len(c.planner) == 0 {
		return "", errors.New("planner script exhausted")
	}
	resp := c.planner[0]
	c.planner = c.planner[1:]
	return resp, nil
}

func planJSON(intent, tool string, params string) string {
	if params == "" {
		params = "{}"
	}
	return fmt.Sprintf(`{"intent": %q, "tool": %q, "params": %s, "rationale": "scripted"}`, intent, tool, params)
}

func verdictJSON(decision string) string {
	return fmt.Sprintf(`{"decision": %q, "understanding": 0.5, "reason": "scripted"}`, decision)
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// probeResult scripts what the fake tool returns on each successive call.
type probeResult struct {
	res *tools.Result
	err error
}

func testRegistry(t *testing.T, script []probeResult) *tools.Registry {
	t.Helper()
	var mu sync.Mutex
	call := 0
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:        "probe",
		Description: "scripted test tool",
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"data": {Type: "string", Description: "probe payload"},
			},
		},
		Invoke: func(_ context.Context, _ map[string]any, _ *tools.Env) (*tools.Result, error) {
			mu.Lock()
			defer mu.Unlock()
			if call >= len(script) {
				return &tools.Result{RawOutput: "ok"}, nil
			}
			r := script[call]
			call++
			return r.res, r.err
		},
	})
	return reg
}

func testEngine(t *testing.T, cfg Config, client *scriptedClient, script []probeResult) *Engine {
	t.Helper()
	goal := types.AnalysisGoal{
		Objective: "determine what input the binary accepts",
		Target:    types.TargetInfo{BinaryPath: "/bin/true"},
		CreatedAt: time.Now(),
	}
	env := &tools.Env{
		Target: "/bin/true",
		Runner: transport.NewDirectRunner(),
		Handle: transport.NewSessionHandle(transport.DefaultConfig(), "/bin/true"),
	}
	return New("test-session", cfg, client, testRegistry(t, script), env, state.NewStore(goal), NewDetector(cfg.LoopWindow, nil))
}

func okScript(n int) []probeResult {
	out := make([]probeResult, n)
	for i := range out {
		out[i] = probeResult{res: &tools.Result{RawOutput: fmt.Sprintf("output %d", i+1)}}
	}
	return out
}

func TestRunGoalSatisfied(t *testing.T) {
	client := &scriptedClient{
		planner: []string{planJSON("check strings", "probe", "")},
		critic:  []string{verdictJSON("satisfied")},
	}
	report := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 3}, client, okScript(1)).Run(context.Background())

	if report.Reason != types.ReasonGoalSatisfied {
		t.Fatalf("reason = %s, want goal_satisfied", report.Reason)
	}
	if len(report.Snapshot.Turns) != 1 || len(report.Snapshot.Observations) != 1 {
		t.Fatalf("snapshot: %d turns, %d observations, want 1/1",
			len(report.Snapshot.Turns), len(report.Snapshot.Observations))
	}
	if report.Snapshot.Observations[0].TurnID != 1 {
		t.Fatalf("observation turn id = %d, want 1", report.Snapshot.Observations[0].TurnID)
	}
}

func TestRunBudgetExhausted(t *testing.T) {
	client := &scriptedClient{
		planner: repeat(planJSON("keep probing", "probe", ""), 3),
		critic:  repeat(verdictJSON("unsatisfied"), 3),
	}
	report := testEngine(t, Config{TurnBudget: 2, SummaryWindow: 3, LoopWindow: 5}, client, okScript(3)).Run(context.Background())

	if report.Reason != types.ReasonBudgetExhausted {
		t.Fatalf("reason = %s, want budget_exhausted", report.Reason)
	}
	if len(report.Snapshot.Turns) != 2 {
		t.Fatalf("ran %d turns with budget 2", len(report.Snapshot.Turns))
	}
	for i, obs := range report.Snapshot.Observations {
		if obs.TurnID != i+1 {
			t.Fatalf("observation %d has turn id %d, ids must be gapless", i, obs.TurnID)
		}
	}
}

func TestRunPlanningRetriesOnceThenFatal(t *testing.T) {
	client := &scriptedClient{
		planner: []string{"no json here", "still not json"},
	}
	report := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 3}, client, nil).Run(context.Background())

	if report.Reason != types.FatalReason("planning") {
		t.Fatalf("reason = %s, want fatal:planning", report.Reason)
	}
	if len(client.plannerPrompts) != 2 {
		t.Fatalf("planner called %d times, want exactly one retry", len(client.plannerPrompts))
	}
	if !strings.Contains(client.plannerPrompts[1], "Previous Response Rejected") {
		t.Fatal("retry prompt must carry the rejection annotation")
	}
	if len(report.Snapshot.Turns) != 0 {
		t.Fatalf("no turns should be recorded, got %d", len(report.Snapshot.Turns))
	}
}

func TestRunPlanningRetrySucceeds(t *testing.T) {
	client := &scriptedClient{
		planner: []string{"garbage", planJSON("recovered", "probe", "")},
		critic:  []string{verdictJSON("satisfied")},
	}
	report := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 3}, client, okScript(1)).Run(context.Background())

	if report.Reason != types.ReasonGoalSatisfied {
		t.Fatalf("reason = %s, want goal_satisfied after retry", report.Reason)
	}
}

func TestToolErrorBecomesFailureObservation(t *testing.T) {
	client := &scriptedClient{
		planner: []string{planJSON("bad params", "probe", "")},
		critic:  []string{verdictJSON("satisfied")},
	}
	script := []probeResult{{err: fmt.Errorf("%w: no such file", types.ErrTool)}}
	report := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 3}, client, script).Run(context.Background())

	if report.Reason != types.ReasonGoalSatisfied {
		t.Fatalf("tool error must not abort the session, got %s", report.Reason)
	}
	obs := report.Snapshot.Observations[0]
	if obs.Status != types.ObservationFailure {
		t.Fatalf("observation status = %s, want failure", obs.Status)
	}
	if !strings.Contains(obs.RawOutput, "no such file") {
		t.Fatal("failure observation should carry the error text")
	}
}

func TestTimeoutReachesCritiqueSameTurn(t *testing.T) {
	client := &scriptedClient{
		planner: []string{planJSON("run it", "probe", "")},
		critic:  []string{verdictJSON("satisfied")},
	}
	script := []probeResult{{res: &tools.Result{RawOutput: "Enter password:", TimedOut: true}}}
	report := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 3}, client, script).Run(context.Background())

	if report.Snapshot.Observations[0].Status != types.ObservationTimeout {
		t.Fatalf("status = %s, want timeout", report.Snapshot.Observations[0].Status)
	}
	if len(client.criticPrompts) != 1 {
		t.Fatal("timeout must still reach the critic in the same turn")
	}
	if !strings.Contains(client.criticPrompts[0], "timed out") {
		t.Fatal("critic prompt should carry the timeout hint")
	}
}

func TestSessionFatalAborts(t *testing.T) {
	client := &scriptedClient{
		planner: repeat(planJSON("probe", "probe", ""), 2),
		critic:  repeat(verdictJSON("unsatisfied"), 2),
	}
	script := []probeResult{
		{res: &tools.Result{RawOutput: "fine"}},
		{err: fmt.Errorf("%w: target died", types.ErrSessionFatal)},
	}
	report := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 5}, client, script).Run(context.Background())

	if report.Reason != types.FatalReason("session") {
		t.Fatalf("reason = %s, want fatal:session", report.Reason)
	}
	// The first turn's evidence survives in the report.
	if len(report.Snapshot.Turns) != 1 {
		t.Fatalf("partial snapshot has %d turns, want 1", len(report.Snapshot.Turns))
	}
}

func TestCircularityNudgesThenAborts(t *testing.T) {
	same := planJSON("same probe", "probe", `{"data": "AAAA"}`)
	client := &scriptedClient{
		planner: repeat(same, 10),
		critic:  repeat(verdictJSON("unsatisfied"), 10),
	}
	report := testEngine(t, Config{TurnBudget: 20, SummaryWindow: 3, LoopWindow: 2}, client, okScript(10)).Run(context.Background())

	if report.Reason != types.ReasonCircularityUnresolved {
		t.Fatalf("reason = %s, want circularity_unresolved", report.Reason)
	}

	forcedPrompts := 0
	for _, p := range client.plannerPrompts {
		if strings.Contains(p, "FORCED STRATEGY CHANGE") {
			forcedPrompts++
		}
	}
	if forcedPrompts != 1 {
		t.Fatalf("strategy change forced %d times, want exactly once", forcedPrompts)
	}

	forcedSteps := 0
	for _, turn := range report.Snapshot.Turns {
		if turn.Plan.Forced {
			forcedSteps++
		}
	}
	if forcedSteps != 1 {
		t.Fatalf("%d forced steps recorded, want exactly one", forcedSteps)
	}
	// Window 2: turns 1-2 trigger the nudge, turn 3 repeats and aborts.
	if len(report.Snapshot.Turns) != 3 {
		t.Fatalf("ran %d turns, want 3 (nudge after 2, abort after 3)", len(report.Snapshot.Turns))
	}
}

func TestStuckVerdictForcesStrategyChange(t *testing.T) {
	client := &scriptedClient{
		planner: []string{
			planJSON("first", "probe", `{"data": "a"}`),
			planJSON("second", "probe", `{"data": "b"}`),
		},
		critic: []string{verdictJSON("stuck"), verdictJSON("satisfied")},
	}
	report := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 5}, client, okScript(2)).Run(context.Background())

	if report.Reason != types.ReasonGoalSatisfied {
		t.Fatalf("reason = %s", report.Reason)
	}
	if !strings.Contains(client.plannerPrompts[1], "FORCED STRATEGY CHANGE") {
		t.Fatal("stuck verdict must force a strategy change next turn")
	}
	if !report.Snapshot.Turns[1].Plan.Forced {
		t.Fatal("second step should be marked forced")
	}
}

func TestVerdictAmendmentsApplied(t *testing.T) {
	withAmendments := `{"decision": "unsatisfied", "understanding": 0.4,
		"hypotheses": [{"claim": "binary checks a serial", "confidence": 0.6, "supporting_observations": [1]}],
		"promotions": [{"kind": "string", "value": "Enter serial:"}]}`
	client := &scriptedClient{
		planner: repeat(planJSON("probe", "probe", ""), 2),
		critic:  []string{withAmendments, withAmendments},
	}
	report := testEngine(t, Config{TurnBudget: 2, SummaryWindow: 3, LoopWindow: 5}, client, okScript(2)).Run(context.Background())

	if len(report.Snapshot.Hypotheses) != 2 {
		t.Fatalf("got %d hypotheses, want one per turn", len(report.Snapshot.Hypotheses))
	}
	// The same promotion twice must stay one artifact.
	if len(report.Snapshot.Artifacts) != 1 {
		t.Fatalf("got %d artifacts, promotion must be idempotent", len(report.Snapshot.Artifacts))
	}
	if report.Snapshot.Artifacts[0].Value != "Enter serial:" {
		t.Fatalf("artifact value = %q", report.Snapshot.Artifacts[0].Value)
	}
}

func TestInvalidHypothesisRefSkipped(t *testing.T) {
	forwardRef := `{"decision": "satisfied", "understanding": 0.9,
		"hypotheses": [{"claim": "bad ref", "confidence": 0.5, "supporting_observations": [99]}]}`
	client := &scriptedClient{
		planner: []string{planJSON("probe", "probe", "")},
		critic:  []string{forwardRef},
	}
	report := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 3}, client, okScript(1)).Run(context.Background())

	if report.Reason != types.ReasonGoalSatisfied {
		t.Fatalf("bad amendment must not fail the turn, got %s", report.Reason)
	}
	if len(report.Snapshot.Hypotheses) != 0 {
		t.Fatal("hypothesis referencing a future observation must be dropped")
	}
}

func TestRunCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{}
	report := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 3}, client, nil).Run(ctx)

	if report.Reason != types.FatalReason("canceled") {
		t.Fatalf("reason = %s, want fatal:canceled", report.Reason)
	}
	if len(client.plannerPrompts) != 0 {
		t.Fatal("no planning should happen after cancellation")
	}
}

func TestEventsClosedAfterRun(t *testing.T) {
	client := &scriptedClient{
		planner: []string{planJSON("probe", "probe", "")},
		critic:  []string{verdictJSON("satisfied")},
	}
	eng := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 3}, client, okScript(1))
	eng.Run(context.Background())

	phases := map[string]bool{}
	for ev := range eng.Events() {
		phases[ev.Phase] = true
	}
	for _, want := range []string{"plan", "execute", "observe", "critique", "terminal"} {
		if !phases[want] {
			t.Fatalf("missing %s event", want)
		}
	}
}

func TestPreflightMissingTarget(t *testing.T) {
	client := &scriptedClient{}
	eng := testEngine(t, Config{TurnBudget: 5, SummaryWindow: 3, LoopWindow: 3}, client, nil)
	eng.env.Target = "/nonexistent/target-binary"

	if err := eng.Preflight(); !errors.Is(err, types.ErrSessionFatal) {
		t.Fatalf("preflight on missing target = %v, want ErrSessionFatal", err)
	}
}
