package givetray

import (
	"log/slog"
	"net/http"
	"time"

	cfg "github.com/allenguarnes/givetray/internal/config"
	"github.com/allenguarnes/givetray/internal/history"
	"github.com/allenguarnes/givetray/internal/history/factory"
	"github.com/allenguarnes/givetray/internal/logring"
	"github.com/allenguarnes/givetray/internal/manager"
	"github.com/allenguarnes/givetray/internal/metrics"
	iapi "github.com/allenguarnes/givetray/internal/server"
	"github.com/allenguarnes/givetray/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Line = logring.Line

type Stream = logring.Stream

type State = supervisor.State

type Status = supervisor.Status

type StartOptions = supervisor.StartOptions

type Event = supervisor.Event

type ProfileConfig = cfg.ProfileConfig

type HistoryStore = history.Store

const (
	StateStopped  = supervisor.StateStopped
	StateStarting = supervisor.StateStarting
	StateRunning  = supervisor.StateRunning
	StateStopping = supervisor.StateStopping
)

var (
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrEmptyCommand   = supervisor.ErrEmptyCommand
)

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

func New(log *slog.Logger, opts ...supervisor.Option) *Manager {
	return &Manager{inner: manager.New(log, manager.WithSupervisorOptions(opts...))}
}

func (m *Manager) Start(profile string, opts StartOptions) error { return m.inner.Start(profile, opts) }
func (m *Manager) Stop(profile string) error                     { return m.inner.Stop(profile) }
func (m *Manager) StopAll()                                      { m.inner.StopAll() }
func (m *Manager) IsRunning(profile string) bool                 { return m.inner.IsRunning(profile) }
func (m *Manager) Status(profile string) Status                  { return m.inner.Status(profile) }
func (m *Manager) StatusAll() []Status                           { return m.inner.StatusAll() }
func (m *Manager) Logs(profile string) []Line                    { return m.inner.Logs(profile) }
func (m *Manager) ClearLogs(profile string)                      { m.inner.ClearLogs(profile) }
func (m *Manager) Profiles() []string                            { return m.inner.Profiles() }
func (m *Manager) Subscribe(fn func(Event))                      { m.inner.Subscribe(fn) }
func (m *Manager) Shutdown(timeout time.Duration) bool           { return m.inner.Shutdown(timeout) }

// WithGrace and WithRingCapacity re-export the supervisor tuning options.
var (
	WithGrace        = supervisor.WithGrace
	WithRingCapacity = supervisor.WithRingCapacity
	WithHistory      = supervisor.WithHistory
)

// LoadConfig loads (or creates) a profile's configuration file.
func LoadConfig(profile string) (ProfileConfig, error) { return cfg.LoadOrCreate(profile) }

// SaveConfig persists a profile's configuration file.
func SaveConfig(c ProfileConfig) error { return cfg.Save(c) }

// NewHistoryStore opens a run-history store from a DSN (sqlite path or
// postgres URL).
func NewHistoryStore(dsn string) (HistoryStore, error) { return factory.NewStoreFromDSN(dsn) }

// RegisterMetrics registers the process metrics on reg (pass
// prometheus.DefaultRegisterer for the default registry).
func RegisterMetrics(reg prometheus.Registerer) error { return metrics.Register(reg) }

// NewServer starts the HTTP control API for an embedded manager. resolve maps
// a profile name to its start options and must never attach a password.
func NewServer(addr, basePath string, m *Manager, resolve func(string) (StartOptions, error), store HistoryStore) *http.Server {
	return iapi.NewServer(addr, basePath, m.inner, resolve, store)
}
