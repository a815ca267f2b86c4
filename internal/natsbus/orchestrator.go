package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mtzanidakis/hive/internal/swarm"
	"github.com/nats-io/nats.go"
)

// Orchestrator hands conversation turns to an external agent runtime over
// request/reply on swarm.<id>.orchestrate.
type Orchestrator struct {
	client  *Client
	timeout time.Duration
}

func NewOrchestrator(client *Client, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Orchestrator{client: client, timeout: timeout}
}

func (o *Orchestrator) OrchestrateConversation(ctx context.Context, req swarm.ConversationRequest) (*swarm.ConversationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	var res swarm.ConversationResult
	if err := o.client.RequestJSON(ctx, TopicSwarmOrchestrate(req.Context.SwarmID), req, &res); err != nil {
		return nil, fmt.Errorf("orchestrate conversation: %w", err)
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return &res, nil
}

// ServeOrchestration answers orchestration requests with fn. It is used by
// agent runtimes and tests.
func (c *Client) ServeOrchestration(fn func(swarm.ConversationRequest) swarm.ConversationResult) error {
	_, err := c.Subscribe(TopicSwarmOrchestrate("*"), func(msg *nats.Msg) {
		var req swarm.ConversationRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		data, err := json.Marshal(fn(req))
		if err != nil {
			return
		}
		_ = msg.Respond(data)
	})
	return err
}
