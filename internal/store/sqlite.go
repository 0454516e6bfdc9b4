package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339

var migrations = []string{
	`CREATE TABLE runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pid INTEGER NOT NULL,
		model_path TEXT NOT NULL DEFAULT '',
		resolution TEXT NOT NULL DEFAULT '',
		confidence_threshold REAL NOT NULL DEFAULT 0,
		analysis_interval INTEGER NOT NULL DEFAULT 0,
		webhook_url TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT 'running',
		started_at TEXT NOT NULL,
		stopped_at TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_runs_pid ON runs(pid);
	CREATE TABLE settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
}

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		// Pre-create the file with restrictive permissions if it doesn't exist
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("creating database file: %w", err)
			}
			_ = f.Close()
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	// Ensure schema_version table exists
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

func (s *SQLiteStore) StartRun(r *RunRecord) error {
	if r.Outcome == "" {
		r.Outcome = OutcomeRunning
	}
	res, err := s.db.Exec(`INSERT INTO runs (pid, model_path, resolution, confidence_threshold,
		analysis_interval, webhook_url, outcome, started_at, stopped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PID, r.ModelPath, r.Resolution, r.ConfidenceThreshold,
		r.AnalysisInterval, r.WebhookURL, r.Outcome,
		formatTime(r.StartedAt), formatTime(r.StoppedAt))
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading run id: %w", err)
	}
	return nil
}

// FinishRun records the outcome of the most recent still-open run with the
// given pid. A finish for an unknown pid is a no-op: the run may predate the
// current database.
func (s *SQLiteStore) FinishRun(pid int, outcome string, stoppedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE runs SET outcome = ?, stopped_at = ?
		WHERE id = (SELECT MAX(id) FROM runs WHERE pid = ? AND outcome = ?)`,
		outcome, formatTime(stoppedAt), pid, OutcomeRunning)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(limit int) ([]RunRecord, error) {
	query := `SELECT id, pid, model_path, resolution, confidence_threshold,
		analysis_interval, webhook_url, outcome, started_at, stopped_at
		FROM runs ORDER BY id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var startedAt, stoppedAt string
		if err := rows.Scan(&r.ID, &r.PID, &r.ModelPath, &r.Resolution, &r.ConfidenceThreshold,
			&r.AnalysisInterval, &r.WebhookURL, &r.Outcome, &startedAt, &stoppedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = parseTime(startedAt)
		r.StoppedAt = parseTime(stoppedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Settings ---

// GetSettings returns the stored settings document, or nil when none has
// been saved yet.
func (s *SQLiteStore) GetSettings() ([]byte, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM settings WHERE id = 1").Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return []byte(data), nil
}

func (s *SQLiteStore) SaveSettings(data []byte) error {
	_, err := s.db.Exec(`INSERT INTO settings (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// --- Helpers ---

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
