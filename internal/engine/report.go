package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"binsleuth/internal/types"
)

// Markdown renders the report for display. The CLI feeds this through a
// terminal markdown renderer; it is also what gets written to the workspace
// report file.
func (r *Report) Markdown() string {
	var b strings.Builder

	snap := r.Snapshot
	fmt.Fprintf(&b, "# Analysis Report: %s\n\n", snap.Goal.Objective)
	fmt.Fprintf(&b, "- **Target:** `%s`\n", snap.Goal.Target.BinaryPath)
	fmt.Fprintf(&b, "- **Session:** %s\n", r.SessionID)
	fmt.Fprintf(&b, "- **Outcome:** %s\n", r.Reason)
	fmt.Fprintf(&b, "- **Turns:** %d\n", len(snap.Turns))
	fmt.Fprintf(&b, "- **Duration:** %s\n\n", r.Finished.Sub(r.Started).Round(10*time.Millisecond))

	if len(snap.Artifacts) > 0 {
		b.WriteString("## Findings\n\n")
		arts := make([]types.Artifact, len(snap.Artifacts))
		copy(arts, snap.Artifacts)
		sort.Slice(arts, func(i, j int) bool { return arts[i].Kind < arts[j].Kind })
		for _, a := range arts {
			fmt.Fprintf(&b, "- **%s:** `%s`\n", a.Kind, a.Value)
		}
		b.WriteString("\n")
	}

	if active := activeHypotheses(snap.Hypotheses); len(active) > 0 {
		b.WriteString("## Working Hypotheses\n\n")
		for _, h := range active {
			fmt.Fprintf(&b, "- %s _(confidence %.2f)_\n", h.Claim, h.Confidence)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Turn Log\n\n")
	for _, turn := range snap.Turns {
		forced := ""
		if turn.Plan.Forced {
			forced = " [strategy change]"
		}
		fmt.Fprintf(&b, "%d. **%s**%s — %s → %s\n",
			turn.TurnID, turn.Plan.Tool, forced, turn.Plan.Intent, turn.Observation.Status)
	}
	b.WriteString("\n")

	if r.Reason != types.ReasonGoalSatisfied {
		fmt.Fprintf(&b, "> Session ended without satisfying the goal (%s). ", r.Reason)
		b.WriteString("The findings above are partial.\n")
	}
	return b.String()
}

// activeHypotheses filters out superseded versions, keeping only the current
// belief set in ascending confidence order.
func activeHypotheses(all []types.Hypothesis) []types.Hypothesis {
	var active []types.Hypothesis
	for _, h := range all {
		if h.SupersededBy == "" {
			active = append(active, h)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Confidence < active[j].Confidence })
	return active
}
