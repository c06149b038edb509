// Package types provides shared type definitions used across binsleuth packages.
// This package exists to break import cycles between the engine, transport, and
// tool packages. Types here are foundational data structures with no complex
// dependencies.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// GOAL AND TARGET
// =============================================================================

// BinaryFormat identifies the container format of the target binary.
type BinaryFormat string

const (
	FormatELF     BinaryFormat = "ELF"
	FormatPE      BinaryFormat = "PE"
	FormatMachO   BinaryFormat = "Mach-O"
	FormatUnknown BinaryFormat = "Unknown"
)

// TargetInfo holds static metadata about the target binary, captured once at
// session start. Fields discovered later (arch, stripped) arrive as
// observation signals; the struct recorded on the AnalysisGoal is never
// mutated.
type TargetInfo struct {
	BinaryPath string       `json:"binary_path"`
	Format     BinaryFormat `json:"format"`
	Arch       string       `json:"arch,omitempty"`
	OS         string       `json:"os,omitempty"`
	Stripped   *bool        `json:"stripped,omitempty"`
}

// AnalysisGoal is the immutable objective for one session.
type AnalysisGoal struct {
	Objective string     `json:"objective"`
	Target    TargetInfo `json:"target"`
	CreatedAt time.Time  `json:"created_at"`
}

// =============================================================================
// OBSERVATIONS
// =============================================================================

// ObservationStatus classifies the outcome of one tool invocation.
type ObservationStatus string

const (
	ObservationSuccess   ObservationStatus = "success"
	ObservationFailure   ObservationStatus = "failure"
	ObservationTimeout   ObservationStatus = "timeout"
	ObservationMalformed ObservationStatus = "malformed"
)

// Signal is one salient fact extracted from raw tool output, e.g. a printable
// string, a hex offset, or a register value.
type Signal struct {
	Kind  string `json:"kind"` // string, offset, register, prompt, exit_code, address, disasm, target_info, note
	Name  string `json:"name,omitempty"`
	Value string `json:"value"`
}

// Observation is the structured record of one executed tool call. Observations
// are append-only and ordered by TurnID; they are never mutated or deleted.
type Observation struct {
	TurnID    int               `json:"turn_id"`
	Tool      string            `json:"tool"`
	Input     map[string]any    `json:"input,omitempty"`
	RawOutput string            `json:"raw_output"`
	Signals   []Signal          `json:"signals,omitempty"`
	Status    ObservationStatus `json:"status"`
	ExitCode  *int              `json:"exit_code,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Failure maps a non-success status onto the error taxonomy; success maps to
// nil. Classification only, never control flow: failed observations stay in
// the record and feed back to the planner as data.
func (o Observation) Failure() error {
	switch o.Status {
	case ObservationFailure:
		return ErrTool
	case ObservationTimeout:
		return ErrExecutionTimeout
	case ObservationMalformed:
		return ErrMalformedObservation
	}
	return nil
}

// =============================================================================
// HYPOTHESES AND ARTIFACTS
// =============================================================================

// Hypothesis is a candidate claim about the binary. Hypotheses are versioned:
// a superseding hypothesis is appended and the old one keeps a SupersededBy
// back-reference, so the reasoning history stays reconstructible.
type Hypothesis struct {
	ID                     string    `json:"id"`
	Claim                  string    `json:"claim"`
	Confidence             float64   `json:"confidence"` // 0.0 - 1.0
	SupportingObservations []int     `json:"supporting_observations"`
	SupersededBy           string    `json:"superseded_by,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// ArtifactKind categorizes confirmed discoveries.
type ArtifactKind string

const (
	ArtifactString  ArtifactKind = "string"
	ArtifactKey     ArtifactKind = "key"
	ArtifactAddress ArtifactKind = "address"
	ArtifactPayload ArtifactKind = "payload"
	ArtifactNote    ArtifactKind = "note"
)

// Artifact is a confirmed discovered fact, promoted from a hypothesis once
// corroborated. The Key is content-derived so the same discovery made twice
// deduplicates. Artifacts are immutable once created.
type Artifact struct {
	Key              string       `json:"key"`
	Kind             ArtifactKind `json:"kind"`
	Value            string       `json:"value"`
	SourceHypothesis string       `json:"source_hypothesis,omitempty"`
	FoundAt          time.Time    `json:"found_at"`
}

// DeriveArtifactKey computes the content identity for an artifact.
func DeriveArtifactKey(kind ArtifactKind, value string) string {
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + value))
	return hex.EncodeToString(sum[:16])
}

// =============================================================================
// TURN CYCLE
// =============================================================================

// PlanStep is the planner's proposal for one turn: an intent, a tool, and
// free-form parameters to be validated by the tool registry.
type PlanStep struct {
	Intent    string         `json:"intent"`
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
	// Forced marks a step produced after a forced_strategy_change nudge.
	Forced bool `json:"forced,omitempty"`
}

// CriticDecision is the critic's judgment for one turn.
type CriticDecision string

const (
	// DecisionSatisfied means the goal is met and the session may terminate.
	DecisionSatisfied CriticDecision = "satisfied"
	// DecisionUnsatisfied means more work is needed; NextFocus hints where.
	DecisionUnsatisfied CriticDecision = "unsatisfied"
	// DecisionStuck means the critic itself detected non-progress and requests
	// an explicit strategy change in the next planner call.
	DecisionStuck CriticDecision = "stuck"
)

// CriticVerdict is the structured critic response. Besides the decision it
// may carry state amendments: new or superseding hypotheses, and hypotheses
// corroborated strongly enough to promote into artifacts.
type CriticVerdict struct {
	Decision      CriticDecision      `json:"decision"`
	NextFocus     string              `json:"next_focus,omitempty"`
	Understanding float64             `json:"understanding"` // 0.0 - 1.0
	OpenQuestions []string            `json:"open_questions,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Hypotheses    []HypothesisUpdate  `json:"hypotheses,omitempty"`
	Promotions    []ArtifactPromotion `json:"promotions,omitempty"`
}

// HypothesisUpdate is a critic-proposed claim, either fresh or superseding an
// earlier hypothesis by ID.
type HypothesisUpdate struct {
	Claim                  string  `json:"claim"`
	Confidence             float64 `json:"confidence"`
	SupportingObservations []int   `json:"supporting_observations,omitempty"`
	Supersedes             string  `json:"supersedes,omitempty"`
}

// ArtifactPromotion asks the store to record a corroborated fact.
type ArtifactPromotion struct {
	Kind             ArtifactKind `json:"kind"`
	Value            string       `json:"value"`
	SourceHypothesis string       `json:"source_hypothesis,omitempty"`
}

// ToolInvocation records how EXECUTE resolved and ran a plan step.
type ToolInvocation struct {
	Tool     string         `json:"tool"`
	Params   map[string]any `json:"params,omitempty"`
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"duration"`
}

// TurnRecord is one full PLAN → EXECUTE → OBSERVE → CRITIQUE cycle. The
// ordered sequence of TurnRecords is the session's trace and the sole input
// to loop detection.
type TurnRecord struct {
	TurnID      int            `json:"turn_id"`
	Plan        PlanStep       `json:"plan"`
	Invocation  ToolInvocation `json:"invocation"`
	Observation Observation    `json:"observation"`
	Verdict     CriticVerdict  `json:"verdict"`
}

// =============================================================================
// TERMINATION
// =============================================================================

// TerminalReason explains why a session ended. Every termination path yields
// one; the caller never receives a bare crash for a non-start-time failure.
type TerminalReason string

const (
	ReasonGoalSatisfied         TerminalReason = "goal_satisfied"
	ReasonBudgetExhausted       TerminalReason = "budget_exhausted"
	ReasonCircularityUnresolved TerminalReason = "circularity_unresolved"
)

// FatalReason builds the terminal reason for an unrecoverable failure kind,
// e.g. "fatal:session" or "fatal:planning".
func FatalReason(kind string) TerminalReason {
	return TerminalReason("fatal:" + kind)
}

// IsFatal reports whether the reason is a fatal:<kind> reason.
func (r TerminalReason) IsFatal() bool {
	return strings.HasPrefix(string(r), "fatal:")
}

// Err maps the reason onto the error taxonomy so callers can classify
// outcomes with errors.Is. A satisfied goal maps to nil.
func (r TerminalReason) Err() error {
	switch r {
	case ReasonGoalSatisfied:
		return nil
	case ReasonBudgetExhausted:
		return ErrLoopBudgetExhausted
	case ReasonCircularityUnresolved:
		return ErrCircularityDetected
	case FatalReason("planning"):
		return ErrPlanning
	default:
		return ErrSessionFatal
	}
}

// String implements fmt.Stringer.
func (r TerminalReason) String() string { return string(r) }

// =============================================================================
// SUMMARY VIEW
// =============================================================================

// StateSummary is the bounded view of the analysis state handed to the
// decision function. It carries the most recent observations plus all current
// hypotheses and artifacts, never the unbounded raw history, so the decision
// input size stays stable across turns.
type StateSummary struct {
	Target             TargetInfo    `json:"target"`
	RecentObservations []Observation `json:"recent_observations"`
	Hypotheses         []Hypothesis  `json:"hypotheses"`
	Artifacts          []Artifact    `json:"artifacts"`
	TurnsTaken         int           `json:"turns_taken"`
	LastError          string        `json:"last_error,omitempty"`
}

// Describe renders the summary as prompt-ready text.
func (s StateSummary) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Binary: %s (format=%s", s.Target.BinaryPath, s.Target.Format)
	if s.Target.Arch != "" {
		fmt.Fprintf(&b, ", arch=%s", s.Target.Arch)
	}
	if s.Target.Stripped != nil {
		fmt.Fprintf(&b, ", stripped=%v", *s.Target.Stripped)
	}
	fmt.Fprintf(&b, ")\nTurns taken: %d\n", s.TurnsTaken)

	if len(s.RecentObservations) == 0 {
		b.WriteString("No observations yet.\n")
	}
	for _, obs := range s.RecentObservations {
		fmt.Fprintf(&b, "Turn %d [%s, %s]: %s\n",
			obs.TurnID, obs.Tool, obs.Status, Truncate(obs.RawOutput, 600))
		for _, sig := range obs.Signals {
			if sig.Name != "" {
				fmt.Fprintf(&b, "  signal %s %s=%s\n", sig.Kind, sig.Name, Truncate(sig.Value, 120))
			} else {
				fmt.Fprintf(&b, "  signal %s: %s\n", sig.Kind, Truncate(sig.Value, 120))
			}
		}
	}
	for _, h := range s.Hypotheses {
		if h.SupersededBy != "" {
			continue
		}
		fmt.Fprintf(&b, "Hypothesis %s (confidence %.2f): %s\n", h.ID, h.Confidence, h.Claim)
	}
	for _, a := range s.Artifacts {
		fmt.Fprintf(&b, "Artifact [%s]: %s\n", a.Kind, Truncate(a.Value, 200))
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "Previous attempt failed: %s\n", s.LastError)
	}
	return b.String()
}

// Truncate shortens s to at most n bytes, marking the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}
