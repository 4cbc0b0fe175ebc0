package process

import (
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// Spec describes one child invocation for a profile.
type Spec struct {
	Profile string
	Command string
	WorkDir string
	Env     []string
	// WantStdin requests a stdin pipe on the child; used only for the
	// sudo password delivery path.
	WantStdin bool
}

// ErrEmptyCommand is returned by Spawn for blank command strings.
var ErrEmptyCommand = errors.New("empty command")

// Handle wraps one spawned child process. It owns the pipes and the OS
// process resource; Wait must be called exactly once to reap it.
type Handle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu    sync.Mutex
	stdin io.WriteCloser
}

// Spawn launches spec.Command through the platform shell when needed so
// pipelines and redirection in the command string behave as typed. The child
// is placed in its own process group so Terminate/Kill reach the whole tree.
func Spawn(spec Spec) (*Handle, error) {
	cmdStr := strings.TrimSpace(spec.Command)
	if cmdStr == "" {
		return nil, ErrEmptyCommand
	}
	cmd := buildCommand(cmdStr)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	configureSysProcAttr(cmd)

	h := &Handle{cmd: cmd}
	var err error
	if h.stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, err
	}
	if h.stderr, err = cmd.StderrPipe(); err != nil {
		return nil, err
	}
	if spec.WantStdin {
		if h.stdin, err = cmd.StdinPipe(); err != nil {
			return nil, err
		}
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return h, nil
}

// buildCommand constructs an *exec.Cmd for the command string. It respects an
// explicit "sh -c" prefix without double-wrapping, wraps in /bin/sh -c when
// shell metacharacters are present, and execs directly otherwise.
func buildCommand(cmdStr string) *exec.Cmd {
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return shellCommand(afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return shellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// parseExplicitShell detects "sh -c <ARG>" prefixes, returning the script
// with one layer of surrounding quotes stripped so redirection inside it
// still parses.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}

// PID returns the child's process id, or 0 before start.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stdout returns the child's stdout pipe.
func (h *Handle) Stdout() io.Reader { return h.stdout }

// Stderr returns the child's stderr pipe.
func (h *Handle) Stderr() io.Reader { return h.stderr }

// WritePassword writes the secret followed by a newline to the child's stdin
// and closes the pipe. The buffer is destroyed before returning regardless of
// outcome; the write is never retried.
func (h *Handle) WritePassword(secret *memguard.LockedBuffer) error {
	defer secret.Destroy()
	h.mu.Lock()
	stdin := h.stdin
	h.stdin = nil
	h.mu.Unlock()
	if stdin == nil {
		return errors.New("stdin pipe not requested")
	}
	defer func() { _ = stdin.Close() }()
	if _, err := stdin.Write(secret.Bytes()); err != nil {
		return err
	}
	if _, err := stdin.Write([]byte{'\n'}); err != nil {
		return err
	}
	return nil
}

// CloseStdin closes the stdin pipe if one was requested and not yet used.
func (h *Handle) CloseStdin() {
	h.mu.Lock()
	stdin := h.stdin
	h.stdin = nil
	h.mu.Unlock()
	if stdin != nil {
		_ = stdin.Close()
	}
}

// Terminate sends the platform's graceful stop signal to the process group.
func (h *Handle) Terminate() error {
	pid := h.PID()
	if pid == 0 {
		return nil
	}
	return terminateGroup(pid)
}

// Kill sends the forceful stop signal to the process group.
func (h *Handle) Kill() error {
	pid := h.PID()
	if pid == 0 {
		return nil
	}
	return killGroup(pid)
}

// Wait blocks until the child exits and reaps it. It must be called from a
// background goroutine, never the event/UI path.
func (h *Handle) Wait() error {
	return h.cmd.Wait()
}
