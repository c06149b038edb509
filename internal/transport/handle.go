package transport

import (
	"fmt"
	"sync"

	"binsleuth/internal/logging"
	"binsleuth/internal/types"
)

// SessionHandle owns the lifetime of at most one interactive target session
// and at most one debugger session for a single analysis goal. Every exit
// path of the turn loop closes the handle, so child processes and their
// descriptors are released deterministically.
type SessionHandle struct {
	config     Config
	binaryPath string

	mu          sync.Mutex
	interactive *InteractiveSession
	debugger    *DebuggerSession
	closed      bool
}

// NewSessionHandle creates a handle for the target binary. Sessions are
// spawned lazily on first use.
func NewSessionHandle(config Config, binaryPath string) *SessionHandle {
	return &SessionHandle{config: config, binaryPath: binaryPath}
}

// BinaryPath returns the target this handle is bound to.
func (h *SessionHandle) BinaryPath() string { return h.binaryPath }

// StartInteractive spawns a fresh run of the target, replacing (and killing)
// any previous run. Each run_binary invocation gets its own process because
// argument sets differ between probes.
func (h *SessionHandle) StartInteractive(args ...string) (*InteractiveSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, types.ErrSessionClosed
	}
	if h.interactive != nil {
		h.interactive.Kill()
		h.interactive = nil
	}
	s, err := SpawnInteractive(h.config, h.binaryPath, args...)
	if err != nil {
		return nil, err
	}
	h.interactive = s
	return s, nil
}

// Interactive returns the current target session, or nil if none is live.
func (h *SessionHandle) Interactive() *InteractiveSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interactive
}

// Debugger returns the debugger session, spawning it on first use.
func (h *SessionHandle) Debugger() (*DebuggerSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, types.ErrSessionClosed
	}
	if h.debugger != nil {
		return h.debugger, nil
	}
	d, err := SpawnDebugger(h.config, h.binaryPath)
	if err != nil {
		return nil, err
	}
	h.debugger = d
	return d, nil
}

// EnforceTimeoutLimit checks both sessions against the configured
// consecutive-timeout limit. A session over the limit is torn down and the
// call reports ErrSessionFatal; below the limit timeouts stay observations.
func (h *SessionHandle) EnforceTimeoutLimit() error {
	limit := h.config.ConsecutiveTimeoutLimit
	if limit <= 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.interactive != nil && h.interactive.TimeoutStreak() >= limit {
		logging.SessionWarn("target session hit %d consecutive timeouts, tearing down", limit)
		h.interactive.Kill()
		h.interactive = nil
		return fmt.Errorf("%w: repeated %w, target unresponsive after %d in a row", types.ErrSessionFatal, types.ErrExecutionTimeout, limit)
	}
	if h.debugger != nil && h.debugger.TimeoutStreak() >= limit {
		logging.SessionWarn("debugger session hit %d consecutive timeouts, tearing down", limit)
		h.debugger.Kill()
		h.debugger = nil
		return fmt.Errorf("%w: repeated %w, debugger unresponsive after %d in a row", types.ErrSessionFatal, types.ErrExecutionTimeout, limit)
	}
	return nil
}

// Close kills both sessions and marks the handle unusable. Idempotent.
func (h *SessionHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.interactive != nil {
		h.interactive.Kill()
		h.interactive = nil
	}
	if h.debugger != nil {
		h.debugger.Kill()
		h.debugger = nil
	}
	logging.Session("session handle closed for %s", h.binaryPath)
}
