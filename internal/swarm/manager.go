package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager owns one Machine per swarm id.
type Manager struct {
	contexts     ContextManager
	orchestrator Orchestrator
	bus          EventBus
	opts         []Option
	logger       *slog.Logger

	mu       sync.RWMutex
	machines map[string]*Machine
}

func NewManager(contexts ContextManager, orchestrator Orchestrator, bus EventBus, opts ...Option) *Manager {
	return &Manager{
		contexts:     contexts,
		orchestrator: orchestrator,
		bus:          bus,
		opts:         opts,
		logger:       slog.Default().With("component", "swarm-manager"),
		machines:     make(map[string]*Machine),
	}
}

// Start creates and starts a machine. A machine that fails to start is not
// kept.
func (mg *Manager) Start(ctx context.Context, conversationID, goal, initiatingUser, swarmID string) (*Machine, error) {
	if swarmID != "" {
		if m, ok := mg.Get(swarmID); ok {
			mg.logger.Warn("swarm already managed", "swarm", swarmID, "state", m.State())
			return m, nil
		}
	}
	m := NewMachine(mg.contexts, mg.orchestrator, mg.bus, mg.opts...)
	if err := m.Start(ctx, conversationID, goal, initiatingUser, swarmID); err != nil {
		return nil, err
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()
	if existing, ok := mg.machines[m.SwarmID()]; ok {
		return existing, nil
	}
	mg.machines[m.SwarmID()] = m
	mg.logger.Info("swarm started", "swarm", m.SwarmID(), "chat", conversationID)
	return m, nil
}

func (mg *Manager) Get(swarmID string) (*Machine, bool) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	m, ok := mg.machines[swarmID]
	return m, ok
}

// Dispatch routes ev to its swarm. A swarm-started event for an unknown
// swarm starts it.
func (mg *Manager) Dispatch(ctx context.Context, ev Event) error {
	if m, ok := mg.Get(ev.SwarmID); ok {
		return m.HandleEvent(ev)
	}
	if ev.Type != EventSwarmStarted {
		return fmt.Errorf("dispatch %s: %w: %s", ev.Type, ErrSwarmNotFound, ev.SwarmID)
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	_, err := mg.Start(ctx, ev.str("chatId"), ev.str("goal"), ev.str("userId"), ev.SwarmID)
	return err
}

// Stop stops a swarm and forgets it.
func (mg *Manager) Stop(ctx context.Context, swarmID string, mode StopMode, reason string) (Stats, error) {
	mg.mu.Lock()
	m, ok := mg.machines[swarmID]
	delete(mg.machines, swarmID)
	mg.mu.Unlock()
	if !ok {
		return Stats{}, fmt.Errorf("stop: %w: %s", ErrSwarmNotFound, swarmID)
	}
	return m.Stop(ctx, mode, reason)
}

// StopAll stops every managed swarm with the given mode.
func (mg *Manager) StopAll(ctx context.Context, mode StopMode, reason string) {
	for _, s := range mg.List() {
		if _, err := mg.Stop(ctx, s.SwarmID, mode, reason); err != nil {
			mg.logger.Warn("stop swarm failed", "swarm", s.SwarmID, "error", err)
		}
	}
}

// List returns snapshots of every managed swarm ordered by id.
func (mg *Manager) List() []Snapshot {
	mg.mu.RLock()
	out := make([]Snapshot, 0, len(mg.machines))
	for _, m := range mg.machines {
		out = append(out, m.Snapshot())
	}
	mg.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SwarmID < out[j].SwarmID })
	return out
}
