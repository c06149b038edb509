// Package engine drives the analysis session: a cyclic state machine
// (plan, execute, observe, critique) over the tool registry and session
// transport, with loop detection and explicit termination. Every exit path
// yields a complete report; the caller never sees a bare crash for anything
// past session start.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"binsleuth/internal/logging"
	"binsleuth/internal/observe"
	"binsleuth/internal/perception"
	"binsleuth/internal/prompt"
	"binsleuth/internal/state"
	"binsleuth/internal/tools"
	"binsleuth/internal/types"
)

// Config bounds one engine run.
type Config struct {
	// TurnBudget is the maximum number of plan/execute/observe/critique
	// cycles before the session aborts with a partial report.
	TurnBudget int

	// SummaryWindow is how many recent observations the decision function
	// sees each turn.
	SummaryWindow int

	// LoopWindow is k for circularity detection.
	LoopWindow int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{TurnBudget: 25, SummaryWindow: 5, LoopWindow: 3}
}

// Report is the output contract of a terminated session.
type Report struct {
	SessionID string               `json:"session_id"`
	Reason    types.TerminalReason `json:"reason"`
	Snapshot  state.Snapshot       `json:"snapshot"`
	Started   time.Time            `json:"started"`
	Finished  time.Time            `json:"finished"`
}

// Event is a progress notification for observers (CLI spinner, TUI viewer).
type Event struct {
	Phase   string    `json:"phase"` // plan, execute, observe, critique, nudge, terminal
	TurnID  int       `json:"turn_id"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Engine runs one analysis goal to termination.
type Engine struct {
	cfg       Config
	sessionID string
	client    perception.DecisionClient
	registry  *tools.Registry
	env       *tools.Env
	store     *state.Store
	detector  *Detector
	events    chan Event
}

// New assembles an engine for one goal. The caller provides the decision
// client, the registry, and the tool env (including the session handle the
// engine will own and close).
func New(sessionID string, cfg Config, client perception.DecisionClient, registry *tools.Registry, env *tools.Env, store *state.Store, detector *Detector) *Engine {
	if cfg.TurnBudget <= 0 {
		cfg.TurnBudget = 25
	}
	if cfg.SummaryWindow <= 0 {
		cfg.SummaryWindow = 5
	}
	if detector == nil {
		detector = NewDetector(cfg.LoopWindow, nil)
	}
	return &Engine{
		cfg:       cfg,
		sessionID: sessionID,
		client:    client,
		registry:  registry,
		env:       env,
		store:     store,
		detector:  detector,
		events:    make(chan Event, 64),
	}
}

// Events exposes the progress stream. Closed when Run returns.
func (e *Engine) Events() <-chan Event { return e.events }

func (e *Engine) emit(phase string, turn int, format string, args ...any) {
	select {
	case e.events <- Event{Phase: phase, TurnID: turn, Message: fmt.Sprintf(format, args...), Time: time.Now()}:
	default:
	}
}

// Preflight verifies the target can be analyzed at all. Failures here are
// the only ones reported as errors instead of a terminal report.
func (e *Engine) Preflight() error {
	info, err := os.Stat(e.env.Target)
	if err != nil {
		return fmt.Errorf("%w: target %s: %v", types.ErrSessionFatal, e.env.Target, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: target %s is a directory", types.ErrSessionFatal, e.env.Target)
	}
	if info.Mode().Perm()&0111 == 0 {
		logging.EngineWarn("target %s is not executable; dynamic tools will fail", e.env.Target)
	}
	return nil
}

// Run executes the turn loop to termination and returns the report. The
// session handle is closed on every exit path.
func (e *Engine) Run(ctx context.Context) *Report {
	started := time.Now()
	defer e.env.Handle.Close()
	defer close(e.events)

	goal := e.store.Goal()
	logging.Engine("session %s: %s (target %s)", e.sessionID, goal.Objective, goal.Target.BinaryPath)

	reason := e.loop(ctx, goal)

	report := &Report{
		SessionID: e.sessionID,
		Reason:    reason,
		Snapshot:  e.store.Snapshot(),
		Started:   started,
		Finished:  time.Now(),
	}
	e.emit("terminal", len(report.Snapshot.Observations), "session ended: %s", reason)
	logging.Engine("session %s terminated: %s (%d turns, %d artifacts)",
		e.sessionID, reason, len(report.Snapshot.Observations), len(report.Snapshot.Artifacts))
	return report
}

// loop is the state machine proper. It returns the terminal reason;
// cancellation is checked at every state transition boundary.
func (e *Engine) loop(ctx context.Context, goal types.AnalysisGoal) types.TerminalReason {
	forced := false

	for turn := 1; ; turn++ {
		if turn > e.cfg.TurnBudget {
			logging.EngineWarn("turn budget %d exhausted", e.cfg.TurnBudget)
			return types.ReasonBudgetExhausted
		}
		if ctx.Err() != nil {
			return types.FatalReason("canceled")
		}

		// PLAN
		step, err := e.plan(ctx, goal, forced)
		if err != nil {
			logging.EngineError("turn %d: planning failed twice: %v", turn, err)
			return types.FatalReason("planning")
		}
		step.Forced = forced
		forced = false
		e.emit("plan", turn, "%s via %s", step.Intent, step.Tool)

		if ctx.Err() != nil {
			return types.FatalReason("canceled")
		}

		// EXECUTE
		e.emit("execute", turn, "invoking %s", step.Tool)
		invStart := time.Now()
		res, invokeErr := e.registry.Invoke(ctx, step, e.env)
		invDuration := time.Since(invStart)

		if invokeErr != nil && !absorbable(invokeErr) {
			if ctx.Err() != nil {
				return types.FatalReason("canceled")
			}
			logging.EngineError("turn %d: session fatal: %v", turn, invokeErr)
			return types.FatalReason("session")
		}

		if ctx.Err() != nil {
			return types.FatalReason("canceled")
		}

		// OBSERVE
		obs := observe.Build(turn, step.Tool, step.Params, res, invokeErr, invDuration)
		if err := e.store.AppendObservation(obs); err != nil {
			logging.EngineError("turn %d: state violation: %v", turn, err)
			return types.FatalReason("state")
		}
		e.emit("observe", turn, "%s: %s (%d signals)", step.Tool, obs.Status, len(obs.Signals))
		if ferr := obs.Failure(); ferr != nil {
			logging.EngineDebug("turn %d: %s absorbed as data: %v", turn, step.Tool, ferr)
		}

		// A timeout is data, but an unresponsive session is not.
		if err := e.env.Handle.EnforceTimeoutLimit(); err != nil {
			logging.EngineError("turn %d: %v", turn, err)
			return types.FatalReason("session")
		}

		if ctx.Err() != nil {
			return types.FatalReason("canceled")
		}

		// CRITIQUE
		record := types.TurnRecord{
			TurnID: turn,
			Plan:   step,
			Invocation: types.ToolInvocation{
				Tool:     step.Tool,
				Params:   step.Params,
				Started:  invStart,
				Duration: invDuration,
			},
			Observation: obs,
		}
		verdict, err := e.critique(ctx, goal, record)
		if err != nil {
			logging.EngineError("turn %d: critique failed twice: %v", turn, err)
			return types.FatalReason("planning")
		}
		record.Verdict = verdict
		e.applyVerdict(turn, verdict)
		e.store.AppendTurn(record)

		hyp, art := e.store.Counts()
		e.detector.Record(step, hyp, art)
		e.emit("critique", turn, "%s (understanding %.2f)", verdict.Decision, verdict.Understanding)

		if verdict.Decision == types.DecisionSatisfied {
			return types.ReasonGoalSatisfied
		}
		if verdict.Decision == types.DecisionStuck {
			logging.Engine("turn %d: critic reports stuck, forcing strategy change", turn)
			forced = true
		}

		switch e.detector.Evaluate(ctx) {
		case ActionNudge:
			e.emit("nudge", turn, "circular probing detected, forcing strategy change")
			forced = true
		case ActionAbort:
			return types.ReasonCircularityUnresolved
		}
	}
}

// plan calls the decision function, retrying once with an error-annotated
// input when the response is unusable.
func (e *Engine) plan(ctx context.Context, goal types.AnalysisGoal, forced bool) (types.PlanStep, error) {
	summary := e.store.Summary(e.cfg.SummaryWindow)

	raw, err := e.client.CompleteWithSystem(ctx, prompt.PlannerSystem(), prompt.PlannerUser(goal, summary, forced, ""))
	if err == nil {
		step, derr := perception.DecodePlanStep(raw)
		if derr == nil {
			return step, nil
		}
		err = derr
	}
	logging.PlannerWarn("unusable plan response, retrying once: %v", err)

	raw, rerr := e.client.CompleteWithSystem(ctx, prompt.PlannerSystem(), prompt.PlannerUser(goal, summary, forced, err.Error()))
	if rerr != nil {
		return types.PlanStep{}, fmt.Errorf("%w: %v", types.ErrPlanning, rerr)
	}
	return perception.DecodePlanStep(raw)
}

// critique mirrors plan's retry-once policy for the critic call.
func (e *Engine) critique(ctx context.Context, goal types.AnalysisGoal, record types.TurnRecord) (types.CriticVerdict, error) {
	summary := e.store.Summary(e.cfg.SummaryWindow)

	raw, err := e.client.CompleteWithSystem(ctx, prompt.CriticSystem(), prompt.CriticUser(goal, summary, record, ""))
	if err == nil {
		verdict, derr := perception.DecodeCriticVerdict(raw)
		if derr == nil {
			return verdict, nil
		}
		err = derr
	}
	logging.CriticWarn("unusable critic response, retrying once: %v", err)

	raw, rerr := e.client.CompleteWithSystem(ctx, prompt.CriticSystem(), prompt.CriticUser(goal, summary, record, err.Error()))
	if rerr != nil {
		return types.CriticVerdict{}, fmt.Errorf("%w: %v", types.ErrPlanning, rerr)
	}
	return perception.DecodeCriticVerdict(raw)
}

// applyVerdict folds the critic's state amendments into the store. Invalid
// amendments are logged and skipped; they never fail the turn.
func (e *Engine) applyVerdict(turn int, verdict types.CriticVerdict) {
	for _, h := range verdict.Hypotheses {
		if h.Claim == "" {
			continue
		}
		if _, err := e.store.AppendHypothesis(h); err != nil {
			logging.CriticWarn("turn %d: dropping hypothesis: %v", turn, err)
		}
	}
	for _, p := range verdict.Promotions {
		if p.Value == "" {
			continue
		}
		if p.Kind == "" {
			p.Kind = types.ArtifactNote
		}
		e.store.PromoteArtifact(p)
	}
}

// absorbable reports whether an invocation error is data (a failed-status
// observation) rather than a session fault.
func absorbable(err error) bool {
	if errors.Is(err, types.ErrSessionFatal) || errors.Is(err, types.ErrSessionClosed) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
