package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"binsleuth/internal/logging"
	"binsleuth/internal/types"
)

// InteractiveSession is a long-lived child process attached to a
// pseudo-terminal, with a write channel to its stdin and a pump draining its
// combined stdout/stderr. Expect performs a blocking read bounded by a
// timeout; partial output is normal and callers re-issue Expect to drain
// more. Process exit surfaces as data on the ExpectResult, never as a panic
// or a hung read.
type InteractiveSession struct {
	config Config

	mu       sync.Mutex
	cmd      *exec.Cmd
	ptmx     *os.File
	closed   bool
	exited   bool
	exitCode int

	// pending holds output read by the pump but not yet consumed by Expect.
	pending    strings.Builder
	totalBytes int64
	truncated  bool
	timeoutRun int // consecutive Expect timeouts
	dataNotify chan struct{}
	pumpDone   chan struct{}
	waitDone   chan struct{}
}

// SpawnInteractive starts binary with args as an interactive session on a
// pseudo-terminal. The pty matters: a target that checks isatty gets
// line-buffered stdio, so its prompts reach Expect before it blocks on a
// read instead of sitting in a full stdio buffer. Failure to start is a
// session-start fatal for the caller to surface.
func SpawnInteractive(config Config, binary string, args ...string) (*InteractiveSession, error) {
	cmd := exec.Command(binary, args...)
	// TERM=dumb keeps readline-aware children (gdb in particular) from
	// emitting escape sequences into the capture stream.
	cmd.Env = append(os.Environ(), "TERM=dumb")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot spawn %s: %v", types.ErrSessionFatal, binary, err)
	}
	quietTerminal(ptmx)

	s := &InteractiveSession{
		config:     config,
		cmd:        cmd,
		ptmx:       ptmx,
		dataNotify: make(chan struct{}, 1),
		pumpDone:   make(chan struct{}),
		waitDone:   make(chan struct{}),
	}

	go s.pump(ptmx)
	go s.wait()

	logging.Session("spawned %s on pty (pid %d)", binary, cmd.Process.Pid)
	return s, nil
}

// quietTerminal turns off input echo and CR/LF output mapping on the pty so
// the captured stream holds only what the child wrote, byte for byte.
// Best effort; a child that resets its own termios wins.
func quietTerminal(ptmx *os.File) {
	tio, err := unix.IoctlGetTermios(int(ptmx.Fd()), unix.TCGETS)
	if err != nil {
		logging.SessionWarn("termios read failed: %v", err)
		return
	}
	tio.Lflag &^= unix.ECHO
	tio.Oflag &^= unix.ONLCR
	if err := unix.IoctlSetTermios(int(ptmx.Fd()), unix.TCSETS, tio); err != nil {
		logging.SessionWarn("termios write failed: %v", err)
	}
}

// pump drains the pty master into the pending buffer. When the child exits
// the read fails (EIO on Linux), which ends the pump like an EOF would.
func (s *InteractiveSession) pump(r *os.File) {
	defer close(s.pumpDone)
	defer r.Close()

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			if s.totalBytes < s.config.MaxOutputBytes {
				remaining := s.config.MaxOutputBytes - s.totalBytes
				chunk := buf[:n]
				if int64(len(chunk)) > remaining {
					chunk = chunk[:remaining]
					s.truncated = true
				}
				s.pending.Write(chunk)
			} else {
				s.truncated = true
			}
			s.totalBytes += int64(n)
			s.mu.Unlock()

			select {
			case s.dataNotify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

// wait reaps the child and records its exit status.
func (s *InteractiveSession) wait() {
	defer close(s.waitDone)
	err := s.cmd.Wait()

	s.mu.Lock()
	s.exited = true
	s.exitCode = 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			s.exitCode = exitErr.ExitCode()
		} else {
			s.exitCode = -1
		}
	}
	s.mu.Unlock()

	select {
	case s.dataNotify <- struct{}{}:
	default:
	}
}

// Send writes data to the child's stdin.
func (s *InteractiveSession) Send(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrSessionClosed
	}
	if s.exited {
		return fmt.Errorf("%w: process already exited", types.ErrSessionClosed)
	}
	logging.SessionDebug("send %d bytes", len(data))
	if _, err := s.ptmx.WriteString(data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// SendLine writes data followed by a newline.
func (s *InteractiveSession) SendLine(data string) error {
	return s.Send(data + "\n")
}

// Expect blocks until pattern appears in the accumulated output, the child
// exits, the timeout elapses, or ctx is canceled. It consumes and returns
// whatever output accumulated; no line-boundary guarantee is made. An empty
// pattern turns Expect into a pure timed read. timeout <= 0 means the
// configured default.
func (s *InteractiveSession) Expect(ctx context.Context, pattern string, timeout time.Duration) (*ExpectResult, error) {
	if timeout <= 0 {
		timeout = s.config.ExpectTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, types.ErrSessionClosed
		}
		if pattern != "" && strings.Contains(s.pending.String(), pattern) {
			out := s.pending.String()
			s.pending.Reset()
			s.timeoutRun = 0
			s.mu.Unlock()
			logging.SessionDebug("expect matched %q (%d bytes)", pattern, len(out))
			return &ExpectResult{Output: out, Matched: true}, nil
		}
		exited := s.exited
		exitCode := s.exitCode
		s.mu.Unlock()

		if exited {
			// Drain whatever the pump is still flushing.
			select {
			case <-s.pumpDone:
			case <-time.After(100 * time.Millisecond):
			}
			out := s.consume()
			s.resetTimeouts()
			logging.Session("child exited with code %d", exitCode)
			return &ExpectResult{Output: out, Exited: true, ExitCode: exitCode}, nil
		}

		select {
		case <-s.dataNotify:
			continue
		case <-deadline.C:
			out := s.consume()
			s.mu.Lock()
			s.timeoutRun++
			run := s.timeoutRun
			s.mu.Unlock()
			logging.SessionWarn("expect timed out after %s (streak %d)", timeout, run)
			return &ExpectResult{Output: out, TimedOut: true}, nil
		case <-ctx.Done():
			// Cancellation kills the child rather than waiting it out.
			s.Kill()
			return nil, ctx.Err()
		}
	}
}

// consume takes and clears the pending buffer.
func (s *InteractiveSession) consume() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending.String()
	s.pending.Reset()
	return out
}

func (s *InteractiveSession) resetTimeouts() {
	s.mu.Lock()
	s.timeoutRun = 0
	s.mu.Unlock()
}

// TimeoutStreak reports the number of consecutive Expect timeouts since the
// last successful read.
func (s *InteractiveSession) TimeoutStreak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutRun
}

// Exited reports whether the child has terminated, and its exit code.
func (s *InteractiveSession) Exited() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited, s.exitCode
}

// Truncated reports whether output capture hit the configured cap.
func (s *InteractiveSession) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}

// Kill terminates the child immediately. Safe to call from any goroutine,
// including while another is blocked in Expect; the blocked call unblocks
// with ErrSessionClosed. Idempotent.
func (s *InteractiveSession) Kill() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	proc := s.cmd.Process
	ptmx := s.ptmx
	s.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
	// Closing the master unblocks the pump even if orphaned grandchildren
	// still hold the slave side open.
	if ptmx != nil {
		ptmx.Close()
	}

	<-s.waitDone
	<-s.pumpDone
	logging.SessionDebug("session torn down")
}
