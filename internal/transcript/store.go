// Package transcript records DAP protocol traffic in a SQLite sidecar for
// after-the-fact diagnostics. The tree cache never reads it.
package transcript

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/scopetree/internal/dapwire"
)

// Store appends protocol traffic rows to a SQLite database.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens a transcript database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db %s: %w", path, err)
	}

	// Append-only workload; durability of the last few rows is not worth
	// an fsync per protocol message.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS traffic (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		direction TEXT NOT NULL,
		seq INTEGER NOT NULL,
		command TEXT NOT NULL,
		success INTEGER NOT NULL,
		payload TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_traffic_command ON traffic(command);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create transcript schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// RecordTraffic implements dapwire.TrafficRecorder. Failures are dropped:
// diagnostics must never break the protocol path.
func (s *Store) RecordTraffic(direction dapwire.Direction, seq int, command string, success bool, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec(
		"INSERT INTO traffic (ts, direction, seq, command, success, payload) VALUES (?, ?, ?, ?, ?, ?)",
		s.now().UnixMilli(), string(direction), seq, command, boolToInt(success), string(payload),
	)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
