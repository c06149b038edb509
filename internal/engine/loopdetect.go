package engine

import (
	"context"
	"encoding/json"
	"sort"

	"binsleuth/internal/embedding"
	"binsleuth/internal/logging"
	"binsleuth/internal/types"
)

// Comparator decides whether two plan steps are materially the same action.
type Comparator interface {
	Equivalent(ctx context.Context, a, b types.PlanStep) bool
}

// Action is the loop-detection policy verdict after a turn.
type Action int

const (
	// ActionNone means no circularity in the window.
	ActionNone Action = iota
	// ActionNudge injects forced_strategy_change into the next plan call.
	ActionNudge
	// ActionAbort terminates the session: circularity repeated after the
	// forced change.
	ActionAbort
)

// Detector flags circularity: the most recent k plan steps are equivalent
// and their observations produced no new hypothesis or artifact. Two-tier
// policy: nudge once, abort only if the loop survives the nudge.
type Detector struct {
	window int
	cmp    Comparator

	entries []detectorEntry
	nudged  bool
}

type detectorEntry struct {
	step types.PlanStep
	// hyp/art are the store counts after the turn completed.
	hyp, art int
}

// NewDetector creates a detector with window k.
func NewDetector(window int, cmp Comparator) *Detector {
	if window < 2 {
		window = 2
	}
	if cmp == nil {
		cmp = CanonicalComparator{}
	}
	return &Detector{window: window, cmp: cmp}
}

// Record appends one completed turn: the step taken and the hypothesis and
// artifact counts after it.
func (d *Detector) Record(step types.PlanStep, hypCount, artCount int) {
	d.entries = append(d.entries, detectorEntry{step: step, hyp: hypCount, art: artCount})
}

// Evaluate inspects the window and returns the policy action for the next
// plan call.
func (d *Detector) Evaluate(ctx context.Context) Action {
	if !d.circular(ctx) {
		// Progress or a changed strategy clears the nudge state.
		d.nudged = false
		return ActionNone
	}
	if !d.nudged {
		d.nudged = true
		logging.Loop("circularity detected over last %d turns, forcing strategy change", d.window)
		return ActionNudge
	}
	logging.Loop("circularity persists after forced strategy change, aborting")
	return ActionAbort
}

func (d *Detector) circular(ctx context.Context) bool {
	n := len(d.entries)
	if n < d.window {
		return false
	}
	win := d.entries[n-d.window:]

	// No new hypothesis or artifact across the window.
	var baseHyp, baseArt int
	if n > d.window {
		before := d.entries[n-d.window-1]
		baseHyp, baseArt = before.hyp, before.art
	}
	last := win[len(win)-1]
	if last.hyp > baseHyp || last.art > baseArt {
		return false
	}

	for i := 1; i < len(win); i++ {
		if !d.cmp.Equivalent(ctx, win[0].step, win[i].step) {
			return false
		}
	}
	return true
}

// CanonicalComparator treats steps as equivalent when the tool matches and
// the parameters are equal after canonical JSON encoding (key order
// normalized, numeric forms unified).
type CanonicalComparator struct{}

// Equivalent implements Comparator.
func (CanonicalComparator) Equivalent(_ context.Context, a, b types.PlanStep) bool {
	if a.Tool != b.Tool {
		return false
	}
	return canonicalParams(a.Params) == canonicalParams(b.Params)
}

// canonicalParams renders params deterministically. encoding/json sorts map
// keys, so marshaling the normalized value tree is stable.
func canonicalParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	blob, err := json.Marshal(normalize(params))
	if err != nil {
		return "{}"
	}
	return string(blob)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = normalize(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case int:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// SemanticComparator embeds the step's intent and parameters and treats high
// cosine similarity as equivalence, so reworded repeats of the same probe
// still count as circular. Falls back to canonical comparison when the
// embedding backend is unavailable.
type SemanticComparator struct {
	engine    embedding.Engine
	threshold float64
	fallback  CanonicalComparator
}

// NewSemanticComparator creates a semantic comparator. threshold <= 0 uses
// 0.92, tight enough that different tools or targets stay distinct.
func NewSemanticComparator(engine embedding.Engine, threshold float64) *SemanticComparator {
	if threshold <= 0 {
		threshold = 0.92
	}
	return &SemanticComparator{engine: engine, threshold: threshold}
}

// Equivalent implements Comparator.
func (c *SemanticComparator) Equivalent(ctx context.Context, a, b types.PlanStep) bool {
	if a.Tool != b.Tool {
		return false
	}

	va, err := c.engine.Embed(ctx, stepText(a))
	if err != nil {
		logging.LoopDebug("embedding unavailable (%v), using canonical comparison", err)
		return c.fallback.Equivalent(ctx, a, b)
	}
	vb, err := c.engine.Embed(ctx, stepText(b))
	if err != nil {
		return c.fallback.Equivalent(ctx, a, b)
	}

	sim, err := embedding.CosineSimilarity(va, vb)
	if err != nil {
		return c.fallback.Equivalent(ctx, a, b)
	}
	logging.LoopDebug("semantic similarity %.4f (threshold %.2f)", sim, c.threshold)
	return sim >= c.threshold
}

func stepText(s types.PlanStep) string {
	return s.Intent + "\n" + s.Tool + "\n" + canonicalParams(s.Params)
}
