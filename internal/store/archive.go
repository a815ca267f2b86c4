package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/hive/internal/swarmstate"
)

// ArchiveContext moves a swarm's final state into the zstd-compressed
// archive table and removes the live context.
func (s *Store) ArchiveContext(ctx context.Context, swarmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		version int64
		state   string
	)
	err = tx.QueryRowContext(ctx, `SELECT version, state FROM swarm_contexts WHERE id = ?`, swarmID).Scan(&version, &state)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrContextNotFound, swarmID)
	}
	if err != nil {
		return fmt.Errorf("archive context: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	data := enc.EncodeAll([]byte(state), nil)
	enc.Close()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO swarm_archives (id, version, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version=excluded.version, data=excluded.data, archived_at=CURRENT_TIMESTAMP`,
		swarmID, version, data); err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM swarm_contexts WHERE id = ?`, swarmID); err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	return tx.Commit()
}

// LoadArchive returns an archived swarm state.
func (s *Store) LoadArchive(ctx context.Context, swarmID string) (*swarmstate.SwarmState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM swarm_archives WHERE id = ?`, swarmID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, swarmID)
	}
	if err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress archive: %w", err)
	}

	var state swarmstate.SwarmState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	return &state, nil
}
