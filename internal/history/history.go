// Package history persists one record per command run so past runs stay
// inspectable after the process tree is gone.
package history

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Record is one run of a profile's command. A run is identified by
// (profile, pid, started_at); the stop fields stay NULL until the run ends.
type Record struct {
	Profile   string         `json:"profile"`
	PID       int            `json:"pid"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt sql.NullTime   `json:"stopped_at"`
	ExitError sql.NullString `json:"exit_error"`
}

// Store persists run records. Implementations must be safe for concurrent
// use.
type Store interface {
	RecordStart(ctx context.Context, profile string, pid int, startedAt time.Time) error
	RecordStop(ctx context.Context, profile string, pid int, startedAt, stoppedAt time.Time, exitErr string) error
	Recent(ctx context.Context, profile string, limit int) ([]Record, error)
	Close() error
}

// writeTimeout bounds each store write so a slow database can never stall a
// process start or stop.
const writeTimeout = 5 * time.Second

// Callbacks adapts a store to the supervisor's start/stop hooks. Failures are
// logged and swallowed; history is best effort and never blocks supervision.
func Callbacks(s Store, log *slog.Logger) (
	func(profile string, pid int, startedAt time.Time),
	func(profile string, pid int, startedAt, stoppedAt time.Time, exitErr error),
) {
	if log == nil {
		log = slog.Default()
	}
	onStart := func(profile string, pid int, startedAt time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.RecordStart(ctx, profile, pid, startedAt); err != nil {
			log.Warn("history start record failed", "profile", profile, "error", err)
		}
	}
	onStop := func(profile string, pid int, startedAt, stoppedAt time.Time, exitErr error) {
		msg := ""
		if exitErr != nil {
			msg = exitErr.Error()
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.RecordStop(ctx, profile, pid, startedAt, stoppedAt, msg); err != nil {
			log.Warn("history stop record failed", "profile", profile, "error", err)
		}
	}
	return onStart, onStop
}
