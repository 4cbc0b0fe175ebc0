package logsink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/allenguarnes/givetray/internal/logring"
)

// Rotation defaults, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes the per-profile log file.
type Config struct {
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Sink appends captured lines to a profile log file. A write failure disables
// the sink for the remainder of the run after reporting one diagnostic line
// through the diag callback; live streaming to the in-memory ring continues
// unaffected.
type Sink struct {
	mu       sync.Mutex
	w        *lj.Logger
	disabled bool
	diag     func(string)
}

// Open prepares a sink writing to cfg.Path. diag receives the single
// diagnostic message emitted when the sink disables itself; nil is allowed.
func Open(cfg Config, diag func(string)) (*Sink, error) {
	if cfg.Path == "" {
		return nil, errors.New("empty log file path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, err
	}
	w := &lj.Logger{
		Filename:   cfg.Path,
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
	return &Sink{w: w, diag: diag}, nil
}

// Append writes one line. Failures never propagate to the caller.
func (s *Sink) Append(ln logring.Line) {
	s.mu.Lock()
	if s.disabled {
		s.mu.Unlock()
		return
	}
	_, err := fmt.Fprintf(s.w, "%s [%s] %s\n", ln.Time.Format("2006-01-02T15:04:05.000Z07:00"), ln.Stream, ln.Text)
	if err != nil {
		s.disabled = true
		diag := s.diag
		s.mu.Unlock()
		if diag != nil {
			diag("log file write failed, disabling file output: " + err.Error())
		}
		return
	}
	s.mu.Unlock()
}

// Disabled reports whether a write failure has turned the sink off.
func (s *Sink) Disabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	s.disabled = true
	return err
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
