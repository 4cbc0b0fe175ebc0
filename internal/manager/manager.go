package manager

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/allenguarnes/givetray/internal/logring"
	"github.com/allenguarnes/givetray/internal/supervisor"
)

// Manager holds one supervisor per profile, created lazily on first use.
// Profiles are fully independent: starting, stopping or clearing one never
// touches another.
type Manager struct {
	log  *slog.Logger
	opts []supervisor.Option

	mu   sync.RWMutex
	sups map[string]*supervisor.Supervisor

	subMu sync.Mutex
	subs  []func(supervisor.Event)
}

// Option configures the manager and flows into every supervisor it creates.
type Option func(*Manager)

// WithSupervisorOptions forwards opts to each lazily created supervisor.
func WithSupervisorOptions(opts ...supervisor.Option) Option {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

// New returns an empty manager.
func New(log *slog.Logger, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		log:  log,
		sups: make(map[string]*supervisor.Supervisor),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Subscribe registers fn for state events from every profile, including ones
// created after the subscription.
func (m *Manager) Subscribe(fn func(supervisor.Event)) {
	m.subMu.Lock()
	m.subs = append(m.subs, fn)
	m.subMu.Unlock()
}

func (m *Manager) fanout(ev supervisor.Event) {
	m.subMu.Lock()
	subs := slices.Clone(m.subs)
	m.subMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// get returns the supervisor for profile, creating it on first use.
func (m *Manager) get(profile string) *supervisor.Supervisor {
	m.mu.RLock()
	s, ok := m.sups[profile]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sups[profile]; ok {
		return s
	}
	s = supervisor.New(profile, m.log, m.opts...)
	s.Subscribe(m.fanout)
	m.sups[profile] = s
	return s
}

// lookup returns the supervisor only if the profile was already seen.
func (m *Manager) lookup(profile string) (*supervisor.Supervisor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sups[profile]
	return s, ok
}

// Start launches the profile command.
func (m *Manager) Start(profile string, opts supervisor.StartOptions) error {
	if err := m.get(profile).Start(opts); err != nil {
		return fmt.Errorf("profile %s: %w", profile, err)
	}
	return nil
}

// Stop terminates the profile command if it is running.
func (m *Manager) Stop(profile string) error {
	s, ok := m.lookup(profile)
	if !ok {
		return nil
	}
	if err := s.Stop(); err != nil {
		return fmt.Errorf("profile %s: %w", profile, err)
	}
	return nil
}

// StopAll stops every running profile and blocks until all have exited.
func (m *Manager) StopAll() {
	m.mu.RLock()
	sups := make([]*supervisor.Supervisor, 0, len(m.sups))
	for _, s := range m.sups {
		sups = append(sups, s)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sups {
		wg.Add(1)
		go func(s *supervisor.Supervisor) {
			defer wg.Done()
			if err := s.Stop(); err != nil {
				m.log.Error("stop failed", "profile", s.Profile(), "error", err)
			}
		}(s)
	}
	wg.Wait()
}

// IsRunning reports whether the profile command is running.
func (m *Manager) IsRunning(profile string) bool {
	s, ok := m.lookup(profile)
	return ok && s.IsRunning()
}

// Status returns the profile's current status. Unknown profiles report as
// stopped rather than erroring, matching how a fresh profile behaves.
func (m *Manager) Status(profile string) supervisor.Status {
	if s, ok := m.lookup(profile); ok {
		return s.Status()
	}
	return supervisor.Status{Profile: profile, State: supervisor.StateStopped}
}

// StatusAll returns statuses for every known profile, sorted by name.
func (m *Manager) StatusAll() []supervisor.Status {
	m.mu.RLock()
	out := make([]supervisor.Status, 0, len(m.sups))
	for _, s := range m.sups {
		out = append(out, s.Status())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Profile < out[j].Profile })
	return out
}

// Logs returns the profile's buffered log lines; nil for unknown profiles.
func (m *Manager) Logs(profile string) []logring.Line {
	if s, ok := m.lookup(profile); ok {
		return s.Logs()
	}
	return nil
}

// ClearLogs empties the profile's log buffer.
func (m *Manager) ClearLogs(profile string) {
	if s, ok := m.lookup(profile); ok {
		s.ClearLogs()
	}
}

// Profiles returns the known profile names, sorted.
func (m *Manager) Profiles() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.sups))
	for name := range m.sups {
		out = append(out, name)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Shutdown stops all profiles, bounded by timeout. It returns false when a
// profile was still winding down as the timeout elapsed.
func (m *Manager) Shutdown(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.StopAll()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		m.log.Warn("shutdown timed out with profiles still stopping", "timeout", timeout)
		return false
	}
}
