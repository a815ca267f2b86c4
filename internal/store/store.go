package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mtzanidakis/hive/internal/config"
	"github.com/mtzanidakis/hive/internal/swarmstate"
	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed swarm context manager.
type Store struct {
	db *sql.DB

	// mu serializes read-modify-write cycles on swarm contexts.
	mu sync.Mutex

	subMu sync.RWMutex
	subs  map[string]subscription
}

type subscription struct {
	swarmID string
	fn      func(swarmstate.Change)
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db, subs: make(map[string]subscription)}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS swarm_contexts (
			id          TEXT PRIMARY KEY,
			version     INTEGER NOT NULL,
			state       TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS context_changes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			swarm_id    TEXT NOT NULL,
			version     INTEGER NOT NULL,
			paths       TEXT NOT NULL,
			reason      TEXT,
			emergent    BOOLEAN DEFAULT FALSE,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_swarm ON context_changes(swarm_id, version)`,
		`CREATE TABLE IF NOT EXISTS swarm_archives (
			id          TEXT PRIMARY KEY,
			version     INTEGER NOT NULL,
			data        BLOB NOT NULL,
			archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
