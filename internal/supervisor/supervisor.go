package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/allenguarnes/givetray/internal/logring"
	"github.com/allenguarnes/givetray/internal/logsink"
	"github.com/allenguarnes/givetray/internal/metrics"
	"github.com/allenguarnes/givetray/internal/process"
)

// State is the lifecycle state of a profile's command.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

func (s State) String() string { return string(s) }

// DefaultGrace is how long Stop waits after the graceful signal before
// escalating to a kill.
const DefaultGrace = 2 * time.Second

var (
	ErrAlreadyRunning = errors.New("command is already running")
	ErrEmptyCommand   = errors.New("command is empty")
)

// SpawnError wraps the cause of a failed start so callers can distinguish it
// from the sentinel start errors.
type SpawnError struct{ Cause error }

func (e *SpawnError) Error() string { return "failed to start command: " + e.Cause.Error() }
func (e *SpawnError) Unwrap() error { return e.Cause }

// Event is delivered to subscribers on every state transition.
type Event struct {
	Profile string
	State   State
	ExitErr error
}

// StartOptions carries one immutable configuration snapshot per Start call.
type StartOptions struct {
	Command string
	WorkDir string
	Env     []string
	// SudoPassword, when non-nil, is written once to the child's stdin
	// followed by a newline and then destroyed. It is never retained and
	// never reaches the ring or the file sink.
	SudoPassword *memguard.LockedBuffer
	LogToFile    bool
	LogFile      logsink.Config
}

// Status is a point-in-time view for display layers.
type Status struct {
	Profile   string    `json:"profile"`
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	ExitErr   string    `json:"exit_error,omitempty"`
	Lines     int       `json:"lines"`
}

// Supervisor owns one profile's process lifecycle. It is the only component
// the CLI/HTTP layer talks to; at most one child is live per instance. All
// state transitions happen under a single mutex, so Start, Stop and the
// spontaneous-exit path never race into a double spawn or double kill.
type Supervisor struct {
	profile string
	grace   time.Duration
	log     *slog.Logger
	ring    *logring.Ring

	mu        sync.Mutex
	state     State
	handle    *process.Handle
	sink      *logsink.Sink
	done      chan struct{} // closed by the waiter when the run is fully cleaned up
	pid       int
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error
	killed    bool

	pumps sync.WaitGroup

	subMu sync.Mutex
	subs  []func(Event)

	// history callbacks injected by the manager
	recordStart func(profile string, pid int, startedAt time.Time)
	recordStop  func(profile string, pid int, startedAt, stoppedAt time.Time, exitErr error)
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithGrace overrides the stop grace period.
func WithGrace(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithRingCapacity bounds the in-memory log ring.
func WithRingCapacity(n int) Option {
	return func(s *Supervisor) { s.ring = logring.New(n) }
}

// WithHistory installs run-history callbacks.
func WithHistory(start func(string, int, time.Time), stop func(string, int, time.Time, time.Time, error)) Option {
	return func(s *Supervisor) {
		s.recordStart = start
		s.recordStop = stop
	}
}

// New returns a stopped supervisor for profile.
func New(profile string, log *slog.Logger, opts ...Option) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		profile: profile,
		grace:   DefaultGrace,
		log:     log.With("profile", profile),
		ring:    logring.New(logring.DefaultCapacity),
		state:   StateStopped,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Profile returns the profile name this supervisor serves.
func (s *Supervisor) Profile() string { return s.profile }

// Subscribe registers fn to receive state-change events. Callbacks run on
// supervisor goroutines and must not block.
func (s *Supervisor) Subscribe(fn func(Event)) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Supervisor) notify(ev Event) {
	s.subMu.Lock()
	subs := slices.Clone(s.subs)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Start spawns the profile command. It fails with ErrAlreadyRunning unless
// the state is Stopped and with ErrEmptyCommand for blank commands; any other
// failure is a *SpawnError and leaves the state at Stopped with no leaked
// child or file handle.
func (s *Supervisor) Start(opts StartOptions) error {
	pid, startedAt, err := s.launch(opts)
	if err != nil {
		return err
	}
	// The history write can hit a slow database; it must never run under
	// s.mu or state queries would stall behind it.
	if s.recordStart != nil {
		s.recordStart(s.profile, pid, startedAt)
	}
	return nil
}

// launch performs the locked portion of Start and reports the new run's pid
// and start time.
func (s *Supervisor) launch(opts StartOptions) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		destroyPassword(opts.SudoPassword)
		return 0, time.Time{}, ErrAlreadyRunning
	}
	command := strings.TrimSpace(opts.Command)
	if command == "" {
		destroyPassword(opts.SudoPassword)
		return 0, time.Time{}, ErrEmptyCommand
	}

	s.setStateLocked(StateStarting, nil)

	wantStdin := false
	if process.IsSudoCommand(command) && opts.SudoPassword != nil {
		command = process.EnsureSudoStdinFlag(command)
		wantStdin = true
	} else {
		destroyPassword(opts.SudoPassword)
		opts.SudoPassword = nil
	}

	var sink *logsink.Sink
	if opts.LogToFile {
		var err error
		sink, err = logsink.Open(opts.LogFile, func(msg string) { s.appendSystem(msg) })
		if err != nil {
			// Degrade to in-memory only; never a start failure.
			s.appendSystem("log file unavailable: " + err.Error())
			sink = nil
		}
	}

	h, err := process.Spawn(process.Spec{
		Profile:   s.profile,
		Command:   command,
		WorkDir:   opts.WorkDir,
		Env:       opts.Env,
		WantStdin: wantStdin,
	})
	if err != nil {
		destroyPassword(opts.SudoPassword)
		if sink != nil {
			_ = sink.Close()
		}
		s.setStateLocked(StateStopped, nil)
		if errors.Is(err, process.ErrEmptyCommand) {
			return 0, time.Time{}, ErrEmptyCommand
		}
		s.log.Error("spawn failed", "error", err)
		return 0, time.Time{}, &SpawnError{Cause: err}
	}

	if wantStdin {
		// WritePassword destroys the secret whatever happens. A prompt that
		// cannot be answered must not hang silently, so a failed write
		// aborts the whole start.
		if werr := h.WritePassword(opts.SudoPassword); werr != nil {
			_ = h.Kill()
			_ = h.Wait()
			if sink != nil {
				_ = sink.Close()
			}
			s.setStateLocked(StateStopped, nil)
			s.log.Error("sudo password delivery failed", "error", werr)
			return 0, time.Time{}, &SpawnError{Cause: fmt.Errorf("sudo password delivery: %w", werr)}
		}
	}

	s.handle = h
	s.sink = sink
	s.done = make(chan struct{})
	s.pid = h.PID()
	s.startedAt = time.Now()
	s.stoppedAt = time.Time{}
	s.exitErr = nil
	s.killed = false

	s.pumps.Add(2)
	go s.pump(logring.StreamStdout, h.Stdout(), sink)
	go s.pump(logring.StreamStderr, h.Stderr(), sink)
	go s.waitAndFinalize(h, s.done)

	s.setStateLocked(StateRunning, nil)
	s.appendSystem("command started")
	s.log.Info("command started", "pid", s.pid)
	metrics.IncStart(s.profile)
	metrics.SetRunning(s.profile, true)
	return s.pid, s.startedAt, nil
}

// Stop terminates the child gracefully, escalating to a forceful kill after
// the grace period. It is a no-op when already stopped and safe to call
// concurrently with a spontaneous exit.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateStopping {
		// Another stop is already in flight; just wait for it.
		done := s.done
		s.mu.Unlock()
		if done != nil {
			<-done
		}
		return nil
	}
	h := s.handle
	done := s.done
	s.setStateLocked(StateStopping, nil)
	s.mu.Unlock()

	// The child may already be gone; signal errors are expected then.
	_ = h.Terminate()
	select {
	case <-done:
	case <-time.After(s.grace):
		s.mu.Lock()
		s.killed = true
		s.mu.Unlock()
		_ = h.Kill()
		metrics.IncKill(s.profile)
		s.log.Warn("graceful stop timed out, killed process group", "grace", s.grace)
		<-done
	}
	return nil
}

// waitAndFinalize reaps the child after both pumps hit end-of-stream, then
// performs the single authoritative transition to Stopped. It runs for user
// stops and spontaneous exits alike, so state never goes stale.
func (s *Supervisor) waitAndFinalize(h *process.Handle, done chan struct{}) {
	s.pumps.Wait()
	err := h.Wait()

	s.mu.Lock()
	spontaneous := s.state == StateRunning
	s.stoppedAt = time.Now()
	s.exitErr = err
	sink := s.sink
	s.sink = nil
	s.handle = nil
	pid := s.pid
	startedAt := s.startedAt
	stoppedAt := s.stoppedAt
	killed := s.killed
	s.appendSystemLocked(exitMessage(err))
	s.setStateLocked(StateStopped, err)
	close(done)
	s.mu.Unlock()

	if sink != nil {
		_ = sink.Close()
	}
	metrics.IncStop(s.profile)
	metrics.SetRunning(s.profile, false)
	if spontaneous {
		metrics.IncSpontaneousExit(s.profile)
	}
	s.log.Info("command exited", "pid", pid, "spontaneous", spontaneous, "killed", killed, "error", err)
	if s.recordStop != nil {
		s.recordStop(s.profile, pid, startedAt, stoppedAt, err)
	}
}

// IsRunning reports whether the command is currently running.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a display snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		Profile:   s.profile,
		State:     s.state,
		PID:       s.pid,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
		Lines:     s.ring.Len(),
	}
	if s.exitErr != nil {
		st.ExitErr = s.exitErr.Error()
	}
	if s.state == StateStopped {
		st.PID = 0
	}
	s.mu.Unlock()
	return st
}

// Logs returns a consistent copy of the buffered output lines.
func (s *Supervisor) Logs() []logring.Line { return s.ring.Snapshot() }

// ClearLogs empties the in-memory ring; file content already written stays.
func (s *Supervisor) ClearLogs() { s.ring.Clear() }

// setStateLocked transitions state and fans out the event. Caller holds s.mu.
func (s *Supervisor) setStateLocked(st State, exitErr error) {
	s.state = st
	ev := Event{Profile: s.profile, State: st, ExitErr: exitErr}
	go s.notify(ev)
}

func (s *Supervisor) appendSystem(msg string) {
	s.ring.Append(logring.Line{Stream: logring.StreamSystem, Text: msg})
}

// appendSystemLocked exists for call sites already holding s.mu; the ring has
// its own lock so the two are interchangeable, the name just documents intent.
func (s *Supervisor) appendSystemLocked(msg string) { s.appendSystem(msg) }

func exitMessage(err error) string {
	if err == nil {
		return "command exited with code 0"
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return fmt.Sprintf("command exited with code %d", code)
		}
		return "command exited: " + ee.String()
	}
	return "command exited: " + err.Error()
}

func destroyPassword(b *memguard.LockedBuffer) {
	if b != nil {
		b.Destroy()
	}
}
