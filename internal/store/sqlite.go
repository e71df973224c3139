// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Creates the schema on open and partitions connection state by owner

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	sealer *sealer
	logger *slog.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore) error

// WithSealingSecret enables storing agent private keys, sealed under a key
// derived from secret.
func WithSealingSecret(secret string) Option {
	return func(s *SQLiteStore) error {
		sl, err := newSealer([]byte(secret))
		if err != nil {
			return err
		}
		s.sealer = sl
		return nil
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLiteStore) error {
		s.logger = logger.With("component", "store")
		return nil
	}
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is created if it doesn't exist and parent directories are
// created if needed.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{logger: slog.Default().With("component", "store")}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s.db = db
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("SQLite store initialized", "path", path, "sealing", s.sealer != nil)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			name              TEXT PRIMARY KEY,
			account_id        TEXT NOT NULL,
			inbound_topic_id  TEXT NOT NULL,
			outbound_topic_id TEXT NOT NULL DEFAULT '',
			profile_topic_id  TEXT NOT NULL DEFAULT '',
			sealed_key        TEXT,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS connections (
			id                      INTEGER PRIMARY KEY AUTOINCREMENT,
			owner                   TEXT NOT NULL,
			topic_id                TEXT NOT NULL,
			target_account_id       TEXT NOT NULL DEFAULT '',
			target_agent_name       TEXT NOT NULL DEFAULT '',
			target_inbound_topic_id TEXT NOT NULL DEFAULT '',
			status                  TEXT NOT NULL,
			connection_request_id   INTEGER NOT NULL DEFAULT 0,
			unique_request_key      TEXT NOT NULL DEFAULT '',
			profile_json            TEXT,
			created_at              TEXT NOT NULL,
			last_activity           TEXT,
			UNIQUE (owner, topic_id)
		);

		CREATE INDEX IF NOT EXISTS idx_connections_owner ON connections(owner, id);

		CREATE TABLE IF NOT EXISTS checkpoints (
			owner      TEXT NOT NULL,
			topic_id   TEXT NOT NULL,
			nanos      INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (owner, topic_id)
		);

		CREATE TABLE IF NOT EXISTS processed_requests (
			owner           TEXT NOT NULL,
			origin_topic_id TEXT NOT NULL,
			request_id      INTEGER NOT NULL,
			processed_at    TEXT NOT NULL,
			PRIMARY KEY (owner, origin_topic_id, request_id)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies column additions to databases created by older
// versions. Each step is idempotent.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "connections",
			column: "unique_request_key",
			apply:  `ALTER TABLE connections ADD COLUMN unique_request_key TEXT NOT NULL DEFAULT ''`,
		},
		{
			table:  "agents",
			column: "profile_topic_id",
			apply:  `ALTER TABLE agents ADD COLUMN profile_topic_id TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
