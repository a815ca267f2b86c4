package swarm

import (
	"context"
	"time"

	"github.com/mtzanidakis/hive/internal/swarmstate"
)

// ContextManager stores the shared state of every swarm. GetContext and
// UpdateContext report a missing swarm with an error matching
// swarmstate.ErrNotFound.
type ContextManager interface {
	CreateContext(ctx context.Context, state *swarmstate.SwarmState) (*swarmstate.SwarmState, error)
	GetContext(ctx context.Context, swarmID string) (*swarmstate.SwarmState, error)
	UpdateContext(ctx context.Context, swarmID string, partial map[string]any, reason string) (*swarmstate.SwarmState, error)
	Subscribe(swarmID string, fn func(swarmstate.Change)) (string, error)
	Unsubscribe(subscriptionID string) error
}

// Archiver is implemented by context managers that can archive a swarm's
// final state.
type Archiver interface {
	ArchiveContext(ctx context.Context, swarmID string) error
}

// Orchestrator drives one conversation turn among the swarm's agents.
type Orchestrator interface {
	OrchestrateConversation(ctx context.Context, req ConversationRequest) (*ConversationResult, error)
}

// EventBus receives lifecycle, tool and policy events.
type EventBus interface {
	Publish(ctx context.Context, ev BusEvent) error
}

// Conversation strategies.
const (
	StrategyConversation = "conversation"
	StrategyReasoning    = "reasoning"
)

type ConversationRequest struct {
	Context  ConversationContext `json:"context"`
	Trigger  Trigger             `json:"trigger"`
	Strategy string              `json:"strategy"`
}

type ConversationResult struct {
	Success       bool              `json:"success"`
	Messages      []string          `json:"messages,omitempty"`
	Duration      time.Duration     `json:"duration"`
	ResourcesUsed swarmstate.Budget `json:"resourcesUsed"`
}

// Trigger describes why a conversation turn is requested.
type Trigger struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	EventID   string         `json:"eventId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// BusEvent is published on the event bus.
type BusEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	SwarmID   string         `json:"swarmId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
