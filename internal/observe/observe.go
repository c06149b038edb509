// Package observe structures raw tool output into Observations. Each tool
// family has a stable extractor that pulls salient signals (strings, offsets,
// registers, prompts, exit codes) out of free text. Output that defies its
// extractor yields status=malformed, never a failed turn.
package observe

import (
	"strings"
	"time"

	"binsleuth/internal/logging"
	"binsleuth/internal/tools"
	"binsleuth/internal/types"
)

// Build converts one tool invocation outcome into an Observation with the
// given turn id. A nil result (tool rejected the invocation) becomes a
// failure observation carrying the error text.
func Build(turnID int, toolName string, input map[string]any, res *tools.Result, invokeErr error, duration time.Duration) types.Observation {
	obs := types.Observation{
		TurnID:   turnID,
		Tool:     toolName,
		Input:    input,
		Duration: duration,
	}

	if invokeErr != nil {
		obs.Status = types.ObservationFailure
		obs.RawOutput = invokeErr.Error()
		logging.Observe("turn %d: %s failed: %v", turnID, toolName, invokeErr)
		return obs
	}

	obs.RawOutput = res.RawOutput
	obs.ExitCode = res.ExitCode

	switch {
	case res.TimedOut:
		obs.Status = types.ObservationTimeout
	default:
		obs.Status = types.ObservationSuccess
	}

	obs.Signals = extract(toolName, res)

	// An extractor that recognizes nothing in non-empty structured-tool
	// output marks the observation malformed.
	if obs.Status == types.ObservationSuccess && requiresStructure(toolName) &&
		len(obs.Signals) == 0 && strings.TrimSpace(obs.RawOutput) != "" {
		obs.Status = types.ObservationMalformed
		logging.ObserveWarn("turn %d: %s output had no recognizable structure", turnID, toolName)
	}

	logging.ObserveDebug("turn %d: %s -> %s (%d signals)", turnID, toolName, obs.Status, len(obs.Signals))
	return obs
}

// requiresStructure lists tools whose output must parse into signals.
func requiresStructure(tool string) bool {
	switch tool {
	case "gdb", "file":
		return true
	}
	return false
}

// extract dispatches to the per-tool signal extractor.
func extract(tool string, res *tools.Result) []types.Signal {
	var signals []types.Signal
	switch tool {
	case "file":
		signals = extractFileSignals(res.RawOutput)
	case "strings":
		signals = extractStringSignals(res.RawOutput)
	case "hexdump":
		signals = extractHexdumpSignals(res.RawOutput)
	case "run_binary":
		signals = extractRunSignals(res)
	case "gdb":
		signals = extractDebuggerSignals(res.RawOutput)
	case "web_search":
		signals = extractSearchSignals(res.RawOutput)
	}
	return signals
}
