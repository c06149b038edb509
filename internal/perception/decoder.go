package perception

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"binsleuth/internal/types"
)

var (
	// ErrEmptyResponse marks a blank completion.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMissingJSON marks a completion with no extractable JSON object.
	ErrMissingJSON = errors.New("no JSON object in response")
)

// DecodePlanStep parses the planner's completion into a PlanStep. A step
// without a tool identifier is unusable; the error wraps ErrPlanning so the
// engine's retry-once policy can recognize it.
func DecodePlanStep(raw string) (types.PlanStep, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return types.PlanStep{}, fmt.Errorf("%w: %v", types.ErrPlanning, err)
	}

	var step types.PlanStep
	if err := json.Unmarshal([]byte(payload), &step); err != nil {
		return types.PlanStep{}, fmt.Errorf("%w: malformed plan step: %v", types.ErrPlanning, err)
	}
	step.Tool = strings.TrimSpace(step.Tool)
	if step.Tool == "" {
		return types.PlanStep{}, fmt.Errorf("%w: plan step has no tool", types.ErrPlanning)
	}
	return step, nil
}

// DecodeCriticVerdict parses the critic's completion. An unknown decision
// value is unusable, same failure mode as a malformed planner response.
func DecodeCriticVerdict(raw string) (types.CriticVerdict, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return types.CriticVerdict{}, fmt.Errorf("%w: %v", types.ErrPlanning, err)
	}

	var verdict types.CriticVerdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return types.CriticVerdict{}, fmt.Errorf("%w: malformed verdict: %v", types.ErrPlanning, err)
	}

	switch verdict.Decision {
	case types.DecisionSatisfied, types.DecisionUnsatisfied, types.DecisionStuck:
	default:
		return types.CriticVerdict{}, fmt.Errorf("%w: unknown decision %q", types.ErrPlanning, verdict.Decision)
	}
	if verdict.Understanding < 0 {
		verdict.Understanding = 0
	}
	if verdict.Understanding > 1 {
		verdict.Understanding = 1
	}
	return verdict, nil
}

// extractJSON pulls the first complete JSON object out of a completion that
// may wrap it in markdown fences or surrounding prose.
func extractJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyResponse
	}

	candidate := trimmed
	if strings.HasPrefix(trimmed, "```") {
		start := strings.Index(trimmed, "```")
		if start != -1 {
			end := strings.Index(trimmed[start+3:], "```")
			if end != -1 {
				content := trimmed[start+3 : start+3+end]
				if idx := strings.Index(content, "\n"); idx != -1 {
					content = content[idx+1:]
				}
				candidate = strings.TrimSpace(content)
			}
		}
	}

	if payload, ok := findJSONObject(candidate); ok {
		return payload, nil
	}
	if payload, ok := findJSONObject(trimmed); ok {
		return payload, nil
	}
	return "", ErrMissingJSON
}

// findJSONObject scans for a balanced top-level brace pair, ignoring braces
// inside string literals.
func findJSONObject(input string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
			continue
		}
		if ch == '}' {
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return input[start : i+1], true
			}
		}
	}
	return "", false
}
