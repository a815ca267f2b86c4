package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtzanidakis/hive/internal/accessor"
	"github.com/mtzanidakis/hive/internal/policy"
	"github.com/nats-io/nats.go"
)

// ReasonApprovalTimeout is returned when no approver answered in time.
const ReasonApprovalTimeout = "ApprovalTimeout"

// Approvals sends access requests to swarm.<id>.approval and publishes
// completions on events.swarm.<id>.access.
type Approvals struct {
	client  *Client
	timeout atomic.Int64
	logger  *slog.Logger
}

func NewApprovals(client *Client, timeout time.Duration) *Approvals {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a := &Approvals{
		client: client,
		logger: slog.Default().With("component", "approvals"),
	}
	a.timeout.Store(int64(timeout))
	return a
}

// SetTimeout changes how long a request waits for an approver.
func (a *Approvals) SetTimeout(d time.Duration) {
	if d > 0 {
		a.timeout.Store(int64(d))
	}
}

type approvalMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func (a *Approvals) Emit(ctx context.Context, eventType string, payload map[string]any) (accessor.ApprovalResponse, error) {
	swarmID, _ := payload["swarmId"].(string)
	msg := approvalMessage{Type: eventType, Payload: payload}

	if eventType != accessor.AccessRequested {
		if err := a.client.PublishJSON(TopicEventsAccess(swarmID), msg); err != nil {
			return accessor.ApprovalResponse{}, fmt.Errorf("publish %s: %w", eventType, err)
		}
		return accessor.ApprovalResponse{Proceed: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(a.timeout.Load()))
	defer cancel()

	var resp accessor.ApprovalResponse
	err := a.client.RequestJSON(ctx, TopicSwarmApproval(swarmID), msg, &resp)
	switch {
	case err == nil:
		// Mirror the request on the event stream for observers.
		if perr := a.client.PublishJSON(TopicEventsAccess(swarmID), msg); perr != nil {
			a.logger.Warn("publish access request", "swarm", swarmID, "error", perr)
		}
		return resp, nil
	case errors.Is(err, nats.ErrNoResponders), errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		a.logger.Warn("approval unanswered", "swarm", swarmID, "path", payload["path"], "error", err)
		return accessor.ApprovalResponse{Reason: ReasonApprovalTimeout}, nil
	default:
		return accessor.ApprovalResponse{}, fmt.Errorf("request approval: %w", err)
	}
}

// Approver answers access requests, refusing configured sensitivity types.
type Approver struct {
	client *Client
	logger *slog.Logger

	mu   sync.RWMutex
	deny map[policy.SensitivityType]bool
	sub  *nats.Subscription
}

func NewApprover(client *Client, deny []string) *Approver {
	a := &Approver{
		client: client,
		logger: slog.Default().With("component", "approver"),
	}
	a.SetDenyList(deny)
	return a
}

// SetDenyList replaces the refused sensitivity types.
func (a *Approver) SetDenyList(deny []string) {
	m := make(map[policy.SensitivityType]bool, len(deny))
	for _, d := range deny {
		m[policy.NormalizeSensitivity(d)] = true
	}
	a.mu.Lock()
	a.deny = m
	a.mu.Unlock()
}

// Decide returns the verdict for one access request payload.
func (a *Approver) Decide(payload map[string]any) accessor.ApprovalResponse {
	raw, _ := payload["sensitivity"].(string)
	st := policy.NormalizeSensitivity(raw)
	a.mu.RLock()
	denied := a.deny[st]
	a.mu.RUnlock()
	if denied {
		return accessor.ApprovalResponse{Reason: fmt.Sprintf("%s access denied by policy", st)}
	}
	return accessor.ApprovalResponse{Proceed: true}
}

func (a *Approver) Start() error {
	sub, err := a.client.Subscribe(TopicSwarmApprovals, func(msg *nats.Msg) {
		var req approvalMessage
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			a.logger.Warn("invalid approval request", "subject", msg.Subject, "error", err)
			return
		}
		resp := a.Decide(req.Payload)
		a.logger.Info("access request",
			"swarm", req.Payload["swarmId"],
			"agent", req.Payload["agentId"],
			"path", req.Payload["path"],
			"proceed", resp.Proceed)
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		if err := msg.Respond(data); err != nil {
			a.logger.Warn("respond approval", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe approvals: %w", err)
	}
	a.mu.Lock()
	a.sub = sub
	a.mu.Unlock()
	return nil
}

func (a *Approver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sub != nil {
		_ = a.sub.Unsubscribe()
		a.sub = nil
	}
}
