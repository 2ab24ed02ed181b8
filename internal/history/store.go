// Package history keeps an audit log of finished login attempts in SQLite.
// Only outcomes are stored: no tokens, no consent codes, and URLs are
// reduced to their host or redacted.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/coordinator"
)

// Entry is one settled login attempt.
type Entry struct {
	ID               string
	RunID            string
	Transport        string
	State            string
	Error            string
	TargetHost       string
	RedirectRedacted string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Duration returns how long the attempt was pending.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// FromAttempt converts a settled attempt snapshot into an Entry.
func FromAttempt(runID string, info coordinator.AttemptInfo) Entry {
	return Entry{
		ID:               info.ID,
		RunID:            runID,
		Transport:        info.Transport,
		State:            info.State.String(),
		Error:            info.Error,
		TargetHost:       hostOf(info.TargetURL),
		RedirectRedacted: coordinator.RedactURL(info.RedirectURL),
		StartedAt:        info.CreatedAt,
		FinishedAt:       info.FinishedAt,
	}
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// Store is the audit database.
type Store struct {
	path string
	conn *sql.DB
}

// Open opens the store at DefaultPath.
func Open() (*Store, error) {
	return OpenAt(DefaultPath())
}

// OpenAt opens (creating if needed) the store at path. A corrupt database
// is moved aside and recreated.
func OpenAt(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}

	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := openAndInit(clean)
	if err == nil {
		return &Store{path: clean, conn: conn}, nil
	}

	if !isCorruptSQLiteError(err) {
		return nil, err
	}

	if _, statErr := os.Stat(clean); statErr == nil {
		backupPath := clean + ".corrupt." + time.Now().UTC().Format("20060102T150405Z")
		if renameErr := os.Rename(clean, backupPath); renameErr != nil {
			return nil, fmt.Errorf("db appears corrupt (%v), and rename failed: %w", err, renameErr)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			if _, statErr := os.Stat(clean + suffix); statErr == nil {
				_ = os.Rename(clean+suffix, backupPath+suffix)
			}
		}
	}

	conn, err = openAndInit(clean)
	if err != nil {
		return nil, err
	}
	return &Store{path: clean, conn: conn}, nil
}

// DefaultPath returns $DESIGNER_AUTH_HOME/data/history.db, falling back to
// ~/.designer-auth/data/history.db.
func DefaultPath() string {
	if home := os.Getenv("DESIGNER_AUTH_HOME"); home != "" {
		return filepath.Join(home, "data", "history.db")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".designer-auth", "data", "history.db")
	}
	return filepath.Join(homeDir, ".designer-auth", "data", "history.db")
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Record stores e. Recording the same attempt twice keeps the latest row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s == nil || s.conn == nil {
		return fmt.Errorf("history store is closed")
	}
	if e.ID == "" {
		return fmt.Errorf("entry id is required")
	}

	_, err := s.conn.ExecContext(ctx, `
INSERT OR REPLACE INTO login_attempts
    (id, run_id, transport, state, error, target_host, redirect_redacted, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Transport, e.State, e.Error, e.TargetHost, e.RedirectRedacted,
		e.StartedAt.UnixMilli(), e.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record attempt %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, most recently finished first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.conn == nil {
		return nil, fmt.Errorf("history store is closed")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.QueryContext(ctx, `
SELECT id, run_id, transport, state, error, target_host, redirect_redacted, started_at, finished_at
FROM login_attempts
ORDER BY finished_at DESC, id
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                   Entry
			started, finishedMs int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Transport, &e.State, &e.Error,
			&e.TargetHost, &e.RedirectRedacted, &started, &finishedMs); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finishedMs)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// Counts returns the number of recorded attempts per final state.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	if s == nil || s.conn == nil {
		return nil, fmt.Errorf("history store is closed")
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT state, COUNT(*) FROM login_attempts GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func openAndInit(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite PRAGMAs are per-connection; keep a single shared connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	initErr := func() error {
		if err := conn.Ping(); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		if _, err := conn.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
			return fmt.Errorf("set journal_mode=WAL: %w", err)
		}
		if _, err := conn.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
			return fmt.Errorf("set busy_timeout: %w", err)
		}
		return runMigrations(conn)
	}()

	if initErr != nil {
		_ = conn.Close()
		return nil, initErr
	}
	return conn, nil
}

func dsn(path string) string {
	// Use an explicit file: DSN so we can pass mode=rwc for auto-create.
	return "file:" + filepath.ToSlash(path) + "?mode=rwc"
}

func isCorruptSQLiteError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrInvalid) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "malformed")
}
