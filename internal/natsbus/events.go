package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mtzanidakis/hive/internal/swarm"
	"github.com/nats-io/nats.go"
)

// EventBus publishes swarm bus events on events.swarm.<id>.
type EventBus struct {
	client *Client
}

func NewEventBus(client *Client) *EventBus {
	return &EventBus{client: client}
}

func (b *EventBus) Publish(_ context.Context, ev swarm.BusEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if err := b.client.PublishJSON(TopicEventsSwarm(ev.SwarmID), ev); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Dispatcher routes an inbound swarm event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev swarm.Event) error
}

// InputFeed consumes JSON events from swarm.*.input and dispatches them.
type InputFeed struct {
	client *Client
	target Dispatcher
	logger *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewInputFeed(client *Client, target Dispatcher) *InputFeed {
	return &InputFeed{
		client: client,
		target: target,
		logger: slog.Default().With("component", "input"),
	}
}

// Start subscribes to every swarm input topic. The swarm id in the subject
// wins over an id carried in the payload.
func (f *InputFeed) Start(ctx context.Context) error {
	sub, err := f.client.Subscribe(TopicSwarmInputs, func(msg *nats.Msg) {
		var ev swarm.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			f.logger.Warn("invalid input event", "subject", msg.Subject, "error", err)
			return
		}
		if id := subjectToken(msg.Subject, 1); id != "" {
			ev.SwarmID = id
		}
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if err := f.target.Dispatch(ctx, ev); err != nil {
			f.logger.Warn("dispatch input event", "swarm", ev.SwarmID, "type", ev.Type, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe input: %w", err)
	}
	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()
	return nil
}

func (f *InputFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		_ = f.sub.Unsubscribe()
		f.sub = nil
	}
}

func subjectToken(subject string, i int) string {
	parts := strings.Split(subject, ".")
	if i < len(parts) {
		return parts[i]
	}
	return ""
}
