package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/livechat/internal/chatlog"
)

// Outcome values recorded for a finished run.
const (
	OutcomeReplied = "replied"
	OutcomeTimeout = "timeout"
	OutcomeFailed  = "failed"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store archives chat runs and their transcripts in SQLite
type Store struct {
	db *sql.DB
}

// Run is one archived conversation attempt.
type Run struct {
	ID           string
	IdentityMode string
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Outcome      string
	MessageCount int
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		identity_mode TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		outcome TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		observed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_messages_run_id ON messages(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// StartRun records a new run and returns its id
func (s *Store) StartRun(ctx context.Context, identityMode string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, identity_mode, started_at)
		VALUES (?, ?, ?)
	`, id, identityMode, startedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's end time and outcome
func (s *Store) FinishRun(ctx context.Context, runID, outcome string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, outcome = ? WHERE id = ?
	`, finishedAt, outcome, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveMessage appends a transcript entry to a run
func (s *Store) SaveMessage(ctx context.Context, runID string, msg chatlog.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (run_id, sender, text, observed_at)
		VALUES (?, ?, ?, ?)
	`, runID, string(msg.Sender), msg.Text, msg.ObservedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.identity_mode, r.started_at, r.finished_at, r.outcome, COUNT(m.id)
		FROM runs r
		LEFT JOIN messages m ON m.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.IdentityMode, &r.StartedAt, &r.FinishedAt, &r.Outcome, &r.MessageCount); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Messages returns a run's transcript in append order
func (s *Store) Messages(ctx context.Context, runID string) ([]chatlog.Message, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE id = ?)`, runID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRunNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, text, observed_at FROM messages
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chatlog.Message
	for rows.Next() {
		var m chatlog.Message
		var sender string
		if err := rows.Scan(&sender, &m.Text, &m.ObservedAt); err != nil {
			return nil, err
		}
		m.Sender = chatlog.Sender(sender)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// RunRecorder adapts a Store into a chatlog.Recorder bound to one run.
type RunRecorder struct {
	store *Store
	runID string
}

// Recorder returns a transcript sink that archives entries under runID.
func (s *Store) Recorder(runID string) *RunRecorder {
	return &RunRecorder{store: s, runID: runID}
}

func (r *RunRecorder) Record(msg chatlog.Message) error {
	return r.store.SaveMessage(context.Background(), r.runID, msg)
}
