package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrDuplicateKey is returned when an insert violates a uniqueness
// constraint, i.e. a second record for an already-stored message id.
var ErrDuplicateKey = errors.New("store: duplicate key")

// timeFormat is the round-trip layout used for every persisted timestamp.
const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS ProcessedMessages (
	MessageId TEXT PRIMARY KEY,
	Timestamp TEXT NOT NULL,
	SourceSystem TEXT NOT NULL,
	Payload TEXT NOT NULL,
	Status INTEGER NOT NULL,
	ProcessedAt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS AuditLogs (
	Id INTEGER PRIMARY KEY AUTOINCREMENT,
	MessageId TEXT NOT NULL UNIQUE,
	StartTime TEXT NOT NULL,
	EndTime TEXT NULL,
	DurationMs REAL NULL,
	Status TEXT NOT NULL,
	ErrorMessage TEXT NULL
);
`

// Open opens the SQLite database at path, creating the file, its directory
// and the schema when absent.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: database path must be provided")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// The driver serialises access per connection; a single connection keeps
	// SQLite's writer lock uncontended.
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables used by the processed-record and audit stores.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// isUniqueViolation classifies a driver error as a uniqueness-constraint
// failure. SQLite reports these in the error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse timestamp %q: %w", s, err)
	}
	return t, nil
}
