// Package accessor mediates agent reads of a swarm's shared state. Every
// access passes identity, visibility, membership and sensitivity checks.
package accessor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtzanidakis/hive/internal/policy"
	"github.com/mtzanidakis/hive/internal/swarmstate"
	"github.com/mtzanidakis/hive/internal/tracing"
)

// Approval event types.
const (
	AccessRequested = "ACCESS_REQUESTED"
	AccessCompleted = "ACCESS_COMPLETED"
)

// ApprovalResponse is the approval collaborator's verdict.
type ApprovalResponse struct {
	Proceed bool   `json:"proceed"`
	Reason  string `json:"reason,omitempty"`
}

// ApprovalPublisher gates sensitive reads.
type ApprovalPublisher interface {
	Emit(ctx context.Context, eventType string, payload map[string]any) (ApprovalResponse, error)
}

// Reader resolves a path against a swarm state.
type Reader interface {
	Read(ctx context.Context, state *swarmstate.SwarmState, path string) (any, error)
}

type ReaderFunc func(ctx context.Context, state *swarmstate.SwarmState, path string) (any, error)

func (f ReaderFunc) Read(ctx context.Context, state *swarmstate.SwarmState, path string) (any, error) {
	return f(ctx, state, path)
}

// Sanitizer rewrites sensitive values before they leave the accessor.
type Sanitizer interface {
	Sanitize(value any, sensitivity policy.SensitivityType) (any, error)
}

// Options tune a single AccessData call.
type Options struct {
	// Transform is applied to the resolved value before it is returned.
	Transform func(any) any
}

type Accessor struct {
	approvals ApprovalPublisher
	reader    Reader
	sanitizer Sanitizer
	logger    *slog.Logger
}

type Option func(*Accessor)

func WithLogger(l *slog.Logger) Option {
	return func(a *Accessor) { a.logger = l }
}

func WithReader(r Reader) Option {
	return func(a *Accessor) { a.reader = r }
}

func WithSanitizer(s Sanitizer) Option {
	return func(a *Accessor) { a.sanitizer = s }
}

// New creates an Accessor. A nil publisher denies every sensitive read.
func New(approvals ApprovalPublisher, opts ...Option) *Accessor {
	a := &Accessor{
		approvals: approvals,
		reader:    ReaderFunc(ReadPath),
		logger:    slog.Default().With("component", "accessor"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AccessData resolves path on behalf of the bot in tc.
func (a *Accessor) AccessData(ctx context.Context, path string, tc TriggerContext, state *swarmstate.SwarmState, opts Options) (value any, err error) {
	ctx, span := tracing.Start(ctx, "accessor.AccessData", "swarm", state.SwarmID, "agent", tc.Bot.ID, "path", path)
	defer func() { tracing.End(span, err) }()

	agentID := tc.Bot.ID
	deny := func(code, reason string) error {
		a.logger.Warn("access denied", "swarm", state.SwarmID, "agent", agentID, "path", path, "code", code)
		return &UnauthorizedError{Code: code, AgentID: agentID, Path: path, Reason: reason}
	}

	if agentID == "" {
		return nil, deny(CodeNoAgentID, "requester has no agent id")
	}

	if !policy.VisibilityAllows(state.Policy.Visibility, state.Policy.ACL, agentID, policy.OperationRead) {
		return nil, deny(CodePrivateSwarm, "swarm is private")
	}

	participant, ok := state.Agent(agentID)
	if !ok {
		return nil, deny(CodeAgentNotInSwarm, "agent is not a swarm participant")
	}
	rt := policy.ResourceTypeForPath(path)
	if !policy.HasResourceType(participant.Config.AgentSpec.Resources, rt) {
		return nil, deny(CodeNoResourcePermission, fmt.Sprintf("no %s grant", rt))
	}

	pattern, sens, sensitive := policy.MatchSensitivity(state.ChatConfig.Secrets, path)
	if !sensitive {
		v, err := a.reader.Read(ctx, state, path)
		if err != nil {
			a.logger.Error("read failed", "swarm", state.SwarmID, "agent", agentID, "path", path, "error", err)
			return nil, nil
		}
		return apply(opts, v), nil
	}

	return a.accessSensitive(ctx, path, pattern, sens, state, agentID, opts)
}

func (a *Accessor) accessSensitive(ctx context.Context, path, pattern string, sens policy.SensitivityConfig, state *swarmstate.SwarmState, agentID string, opts Options) (any, error) {
	payload := map[string]any{
		"swarmId":     state.SwarmID,
		"agentId":     agentID,
		"path":        path,
		"pattern":     pattern,
		"sensitivity": string(sens.Type),
		"timestamp":   time.Now().UTC(),
	}

	resp, err := a.emit(ctx, AccessRequested, payload)
	if err != nil {
		return nil, fmt.Errorf("request access approval: %w", err)
	}
	if !resp.Proceed {
		code := resp.Reason
		if code == "" {
			code = CodeAccessDenied
		}
		completed := withFields(payload, "success", false, "reason", code)
		if _, err := a.emit(ctx, AccessCompleted, completed); err != nil {
			a.logger.Warn("emit access completion", "swarm", state.SwarmID, "path", path, "error", err)
		}
		a.logger.Warn("sensitive access rejected", "swarm", state.SwarmID, "agent", agentID, "path", path, "reason", code)
		return nil, &UnauthorizedError{Code: code, AgentID: agentID, Path: path, Reason: resp.Reason}
	}

	// Read failures are contained: the caller gets nil and the completion
	// event still reports success.
	var value any
	readOK := true
	v, err := a.reader.Read(ctx, state, path)
	if err != nil {
		readOK = false
		a.logger.Error("sensitive read failed", "swarm", state.SwarmID, "agent", agentID, "path", path, "error", err)
	} else {
		value = v
	}

	if _, err := a.emit(ctx, AccessCompleted, withFields(payload, "success", true)); err != nil {
		a.logger.Warn("emit access completion", "swarm", state.SwarmID, "path", path, "error", err)
	}

	if !readOK {
		return nil, nil
	}
	if sens.NeedsSanitizing() && a.sanitizer != nil {
		sv, err := a.sanitizer.Sanitize(value, sens.Type)
		if err != nil {
			return nil, fmt.Errorf("sanitize %s: %w", path, err)
		}
		value = sv
	}
	return apply(opts, value), nil
}

func (a *Accessor) emit(ctx context.Context, eventType string, payload map[string]any) (ApprovalResponse, error) {
	if a.approvals == nil {
		return ApprovalResponse{Reason: CodeAccessDenied}, nil
	}
	return a.approvals.Emit(ctx, eventType, payload)
}

func apply(opts Options, v any) any {
	if opts.Transform == nil {
		return v
	}
	return opts.Transform(v)
}

func withFields(base map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}
