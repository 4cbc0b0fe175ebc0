// Package sqlite is the default run-history backend, a single file under the
// user data directory.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/allenguarnes/givetray/internal/history"
)

// Store keeps run records in a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (and creates if needed) the database at dsn.
// Accepted forms:
//   - "sqlite:///path/to/file.db"
//   - "/path/to/file.db"
//   - ":memory:"
func New(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty sqlite dsn")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Timestamps are stored as unix microseconds so the start time used as part
// of the run key compares exactly on update.
func (s *Store) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS run_history(
		profile TEXT NOT NULL,
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		stopped_at INTEGER,
		exit_error TEXT,
		PRIMARY KEY(profile, pid, started_at)
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Store) RecordStart(ctx context.Context, profile string, pid int, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO run_history(profile, pid, started_at)
		VALUES(?, ?, ?);`,
		profile, pid, startedAt.UTC().UnixMicro())
	return err
}

func (s *Store) RecordStop(ctx context.Context, profile string, pid int, startedAt, stoppedAt time.Time, exitErr string) error {
	var errCol any
	if exitErr != "" {
		errCol = exitErr
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE run_history SET stopped_at = ?, exit_error = ?
		WHERE profile = ? AND pid = ? AND started_at = ?;`,
		stoppedAt.UTC().UnixMicro(), errCol, profile, pid, startedAt.UTC().UnixMicro())
	return err
}

func (s *Store) Recent(ctx context.Context, profile string, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT profile, pid, started_at, stopped_at, exit_error
		FROM run_history WHERE profile = ?
		ORDER BY started_at DESC LIMIT ?;`,
		profile, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Record
	for rows.Next() {
		var (
			rec     history.Record
			started int64
			stopped sql.NullInt64
		)
		if err := rows.Scan(&rec.Profile, &rec.PID, &started, &stopped, &rec.ExitError); err != nil {
			return nil, err
		}
		rec.StartedAt = time.UnixMicro(started).UTC()
		if stopped.Valid {
			rec.StoppedAt = sql.NullTime{Time: time.UnixMicro(stopped.Int64).UTC(), Valid: true}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
