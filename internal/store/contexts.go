package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/hive/internal/swarmstate"
)

// ErrContextNotFound is swarmstate.ErrNotFound, so callers that only know the
// data model can match it.
var ErrContextNotFound = swarmstate.ErrNotFound

// ChangeRecord is one persisted context update.
type ChangeRecord struct {
	Version   int64     `json:"version"`
	Paths     []string  `json:"paths"`
	Reason    string    `json:"reason,omitempty"`
	Emergent  bool      `json:"emergent"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateContext stores a new swarm context at version 1. An existing
// context with the same id is replaced.
func (s *Store) CreateContext(ctx context.Context, state *swarmstate.SwarmState) (*swarmstate.SwarmState, error) {
	if state == nil || state.SwarmID == "" {
		return nil, fmt.Errorf("create context: missing swarm id")
	}
	c, err := swarmstate.Clone(state)
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	c.Version = 1
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO swarm_contexts (id, version, state)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version=excluded.version, state=excluded.state,
			created_at=CURRENT_TIMESTAMP, updated_at=CURRENT_TIMESTAMP`,
		c.SwarmID, c.Version, string(data))
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	return c, nil
}

// GetContext returns the current state of a swarm, or ErrContextNotFound.
func (s *Store) GetContext(ctx context.Context, swarmID string) (*swarmstate.SwarmState, error) {
	return s.load(ctx, s.db, swarmID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) load(ctx context.Context, q queryer, swarmID string) (*swarmstate.SwarmState, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT state FROM swarm_contexts WHERE id = ?`, swarmID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, swarmID)
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}
	var state swarmstate.SwarmState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return &state, nil
}

// UpdateContext applies a dotted-path patch, bumps the version and notifies
// subscribers of the swarm. Subscribers run after the write has committed.
func (s *Store) UpdateContext(ctx context.Context, swarmID string, partial map[string]any, reason string) (*swarmstate.SwarmState, error) {
	s.mu.Lock()
	next, change, err := s.update(ctx, swarmID, partial, reason)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.notify(change)
	return next, nil
}

func (s *Store) update(ctx context.Context, swarmID string, partial map[string]any, reason string) (*swarmstate.SwarmState, swarmstate.Change, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, swarmstate.Change{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := s.load(ctx, tx, swarmID)
	if err != nil {
		return nil, swarmstate.Change{}, err
	}
	next, paths, err := swarmstate.ApplyPatch(cur, partial)
	if err != nil {
		return nil, swarmstate.Change{}, fmt.Errorf("update context: %w", err)
	}
	next.Version = cur.Version + 1

	data, err := json.Marshal(next)
	if err != nil {
		return nil, swarmstate.Change{}, fmt.Errorf("marshal context: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE swarm_contexts SET version = ?, state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		next.Version, string(data), swarmID); err != nil {
		return nil, swarmstate.Change{}, fmt.Errorf("update context: %w", err)
	}

	change := swarmstate.Change{
		SwarmID:  swarmID,
		Version:  next.Version,
		Paths:    paths,
		Reason:   reason,
		Emergent: swarmstate.IsEmergentReason(reason),
		At:       time.Now(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO context_changes (swarm_id, version, paths, reason, emergent) VALUES (?, ?, ?, ?, ?)`,
		swarmID, change.Version, strings.Join(paths, ","), reason, boolToInt(change.Emergent)); err != nil {
		return nil, swarmstate.Change{}, fmt.Errorf("record change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, swarmstate.Change{}, fmt.Errorf("commit: %w", err)
	}
	return next, change, nil
}

// Changes returns the most recent updates of a swarm, newest first.
func (s *Store) Changes(ctx context.Context, swarmID string, limit int) ([]ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, paths, reason, emergent, created_at
		FROM context_changes WHERE swarm_id = ?
		ORDER BY version DESC LIMIT ?`, swarmID, limit)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRecord
	for rows.Next() {
		var (
			r      ChangeRecord
			paths  string
			reason sql.NullString
		)
		if err := rows.Scan(&r.Version, &paths, &reason, &r.Emergent, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if paths != "" {
			r.Paths = strings.Split(paths, ",")
		}
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Subscribe registers fn for change notifications of swarmID.
func (s *Store) Subscribe(swarmID string, fn func(swarmstate.Change)) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("subscribe: nil callback")
	}
	id := uuid.New().String()
	s.subMu.Lock()
	s.subs[id] = subscription{swarmID: swarmID, fn: fn}
	s.subMu.Unlock()
	return id, nil
}

func (s *Store) Unsubscribe(subscriptionID string) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subs[subscriptionID]; !ok {
		return fmt.Errorf("unsubscribe: unknown subscription %s", subscriptionID)
	}
	delete(s.subs, subscriptionID)
	return nil
}

func (s *Store) notify(ch swarmstate.Change) {
	s.subMu.RLock()
	var fns []func(swarmstate.Change)
	for _, sub := range s.subs {
		if sub.swarmID == ch.SwarmID {
			fns = append(fns, sub.fn)
		}
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("context subscriber panicked", "swarm", ch.SwarmID, "panic", r)
				}
			}()
			fn(ch)
		}()
	}
}
