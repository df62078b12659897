// Package seen provides the durable record of message fingerprints that
// have already been processed. It is what makes re-running a folder walk
// idempotent across restarts: IMAP UIDs are reassigned as messages move,
// but a recorded fingerprint survives the process.
//
// The store is append-only from the sweeper's point of view; entries are
// never updated or deleted here. Compaction is an operator concern.
package seen

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a fingerprint table backed by SQLite. The sweeper drives it
// from a single goroutine; SQLite serializes the writes either way.
type Store struct {
	db *sql.DB
}

// Open creates or opens the seen store at the given database path.
// The schema is created automatically on first use.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS seen_messages (
		id          TEXT NOT NULL PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		recorded_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Has reports whether the fingerprint has been recorded.
func (s *Store) Has(fingerprint string) (bool, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM seen_messages WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup fingerprint: %w", err)
	}
	return true, nil
}

// Record inserts a fingerprint. Recording an already-present fingerprint
// is a no-op, not an error.
func (s *Store) Record(fingerprint string) error {
	_, err := s.db.Exec(
		`INSERT INTO seen_messages (id, fingerprint, recorded_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		uuid.NewString(), fingerprint, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record fingerprint: %w", err)
	}
	return nil
}

// Count returns the number of recorded fingerprints. Used for startup
// logging and tests.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM seen_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count fingerprints: %w", err)
	}
	return n, nil
}
