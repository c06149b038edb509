package types

import "errors"

// Error taxonomy for the orchestration engine. Tool failures, timeouts, and
// malformed output are absorbed into failed-status Observations and fed back
// to the planner; only the sentinels below cross package boundaries.
var (
	// ErrPlanning means the decision function returned an unusable response.
	// Retried once with an error-annotated input, then escalates to abort.
	ErrPlanning = errors.New("planning error")

	// ErrTool means the plan named an unknown tool or invalid parameters.
	ErrTool = errors.New("tool error")

	// ErrExecutionTimeout means a child process did not respond within bound.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrMalformedObservation means tool output could not be parsed.
	ErrMalformedObservation = errors.New("malformed observation")

	// ErrSessionFatal means a child process crashed or became unreachable.
	ErrSessionFatal = errors.New("session fatal")

	// ErrLoopBudgetExhausted means the turn budget ran out before the goal.
	ErrLoopBudgetExhausted = errors.New("loop budget exhausted")

	// ErrCircularityDetected means repeated non-progressing plans persisted
	// after the forced strategy change.
	ErrCircularityDetected = errors.New("circularity detected")

	// ErrSessionClosed means an operation was issued against a torn-down session.
	ErrSessionClosed = errors.New("session closed")
)
