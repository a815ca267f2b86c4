package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/hive/internal/accessor"
	"github.com/mtzanidakis/hive/internal/policy"
	"github.com/mtzanidakis/hive/internal/swarmstate"
	"github.com/mtzanidakis/hive/internal/tracing"
)

// State is a swarm's operational lifecycle state.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateStarting      State = "STARTING"
	StateRunning       State = "RUNNING"
	StateIdle          State = "IDLE"
	StatePaused        State = "PAUSED"
	StateStopped       State = "STOPPED"
	StateFailed        State = "FAILED"
	StateTerminated    State = "TERMINATED"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed || s == StateTerminated
}

func (s State) drains() bool {
	return s == StateIdle || s == StateRunning
}

type StopMode string

const (
	StopGraceful StopMode = "graceful"
	StopForce    StopMode = "force"
)

// Stats summarizes a swarm when it stops.
type Stats struct {
	TotalSubtasks     int   `json:"totalSubtasks"`
	CompletedSubtasks int   `json:"completedSubtasks"`
	CreditsUsed       int64 `json:"creditsUsed"`
	ToolCalls         int   `json:"toolCalls"`
}

// Snapshot is a point-in-time view of a machine.
type Snapshot struct {
	SwarmID        string `json:"swarmId"`
	ConversationID string `json:"conversationId"`
	State          State  `json:"state"`
	Queued         int    `json:"queued"`
}

// Machine owns the lifecycle of one swarm and processes its events one at
// a time in arrival order.
type Machine struct {
	contexts     ContextManager
	orchestrator Orchestrator
	bus          EventBus
	access       *accessor.Accessor
	logger       *slog.Logger
	visibility   policy.Visibility

	mu             sync.RWMutex
	state          State
	swarmID        string
	conversationID string
	subscription   string

	queue *eventQueue
}

type Option func(*Machine)

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithAccessor sets the accessor used by ReadForAgent.
func WithAccessor(a *accessor.Accessor) Option {
	return func(m *Machine) { m.access = a }
}

// WithDefaultVisibility sets the visibility of newly created swarm contexts.
func WithDefaultVisibility(v policy.Visibility) Option {
	return func(m *Machine) { m.visibility = v }
}

// NewMachine creates a machine in the UNINITIALIZED state. bus may be nil.
func NewMachine(contexts ContextManager, orchestrator Orchestrator, bus EventBus, opts ...Option) *Machine {
	m := &Machine{
		contexts:     contexts,
		orchestrator: orchestrator,
		bus:          bus,
		logger:       slog.Default().With("component", "swarm"),
		visibility:   policy.VisibilityPublic,
		state:        StateUninitialized,
		queue:        newEventQueue(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.access == nil {
		m.access = accessor.New(nil, accessor.WithLogger(m.logger))
	}
	return m
}

func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) SwarmID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.swarmID
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		SwarmID:        m.swarmID,
		ConversationID: m.conversationID,
		State:          m.state,
		Queued:         m.queue.Len(),
	}
}

// Start creates the shared context and runs the initial conversation turn.
// It is a no-op unless the machine is UNINITIALIZED. A failure leaves the
// machine FAILED and is returned after the lifecycle event is emitted.
func (m *Machine) Start(ctx context.Context, conversationID, goal, initiatingUser, swarmID string) error {
	m.mu.Lock()
	if m.state != StateUninitialized {
		state, id := m.state, m.swarmID
		m.mu.Unlock()
		m.logger.Warn("start ignored", "swarm", id, "state", state)
		return nil
	}
	if swarmID == "" {
		swarmID = uuid.NewString()
	}
	m.swarmID, m.conversationID = swarmID, conversationID
	m.state = StateStarting
	m.mu.Unlock()
	m.emitTransition(ctx, StateUninitialized, StateStarting, "start", nil)

	if err := m.bootstrap(ctx, conversationID, goal, initiatingUser); err != nil {
		m.unsubscribe()
		m.transition(ctx, StateFailed, "start failed", map[string]any{"error": err.Error()})
		m.updateStatus(ctx, swarmstate.ExecutionFailed, "start failed")
		return fmt.Errorf("start swarm %s: %w", swarmID, err)
	}

	m.transition(ctx, StateIdle, "started", nil, StateStarting)
	m.updateStatus(ctx, swarmstate.ExecutionIdle, "started")
	m.kick()
	return nil
}

func (m *Machine) bootstrap(ctx context.Context, conversationID, goal, initiatingUser string) error {
	swarmID := m.SwarmID()
	now := time.Now().UTC()
	initial := &swarmstate.SwarmState{
		SwarmID:        swarmID,
		ConversationID: conversationID,
		InitiatingUser: initiatingUser,
		ChatConfig: swarmstate.ChatConfig{
			Goal:       goal,
			Blackboard: []swarmstate.BlackboardItem{},
			Stats:      swarmstate.Stats{StartedAt: &now},
		},
		Execution: swarmstate.Execution{Status: swarmstate.ExecutionStarting},
		Policy:    swarmstate.Policy{Visibility: m.visibility},
	}
	if _, err := m.contexts.CreateContext(ctx, initial); err != nil {
		return fmt.Errorf("create context: %w", err)
	}

	sub, err := m.contexts.Subscribe(swarmID, m.onContextChange)
	if err != nil {
		return fmt.Errorf("subscribe to context: %w", err)
	}
	m.mu.Lock()
	m.subscription = sub
	m.mu.Unlock()

	trigger := Trigger{
		Type:      EventSwarmStarted,
		Source:    "system",
		Data:      map[string]any{"chatId": conversationID, "goal": goal, "initiatingUser": initiatingUser},
		Timestamp: now,
	}
	return m.converse(ctx, nil, trigger, StrategyConversation)
}

// HandleEvent validates ev and queues it. Invalid events and events for
// terminated swarms are dropped.
func (m *Machine) HandleEvent(ev Event) error {
	if err := ev.Validate(); err != nil {
		m.logger.Warn("invalid event dropped", "swarm", m.SwarmID(), "type", ev.Type, "error", err)
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.SwarmID == "" {
		ev.SwarmID = m.SwarmID()
	}
	if state := m.State(); state.Terminal() {
		m.logger.Warn("event dropped", "swarm", ev.SwarmID, "type", ev.Type, "state", state)
		return fmt.Errorf("swarm %s is %s", ev.SwarmID, state)
	}

	m.queue.Enqueue(ev)
	if m.State().drains() {
		m.kick()
	}
	return nil
}

// WaitIdle blocks until the event queue has been drained.
func (m *Machine) WaitIdle(ctx context.Context) error {
	return m.queue.WaitIdle(ctx)
}

func (m *Machine) kick() {
	if !m.queue.TryLock() {
		return
	}
	go m.drain()
}

func (m *Machine) drain() {
	for {
		if !m.State().drains() {
			m.queue.Unlock()
			if m.State().drains() && m.queue.Len() > 0 {
				m.kick()
			}
			return
		}
		ev, ok := m.queue.Next()
		if !ok {
			return
		}
		m.processEvent(context.Background(), ev)
	}
}

func (m *Machine) processEvent(ctx context.Context, ev Event) {
	ctx, span := tracing.Start(ctx, "swarm.processEvent", "swarm", ev.SwarmID, "event", ev.Type)
	err := m.dispatch(ctx, ev)
	tracing.End(span, err)
	if err == nil {
		return
	}

	if IsFatal(err) {
		m.logger.Error("fatal event failure", "swarm", ev.SwarmID, "type", ev.Type, "error", err)
		m.transition(ctx, StateFailed, "fatal error", map[string]any{"error": err.Error(), "event": ev.Type})
		m.updateStatus(ctx, swarmstate.ExecutionFailed, "fatal error")
		if n := m.queue.Clear(); n > 0 {
			m.logger.Warn("pending events dropped", "swarm", ev.SwarmID, "count", n)
		}
		return
	}
	m.logger.Warn("event handling failed", "swarm", ev.SwarmID, "type", ev.Type, "error", err)
	m.transition(ctx, StateIdle, "recovered", map[string]any{"error": err.Error()}, StateRunning)
}

func (m *Machine) dispatch(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventSwarmStarted:
		m.logger.Warn("swarm already started", "swarm", ev.SwarmID, "chat", ev.str("chatId"))
		return nil
	case EventExternalMessage, EventRunCompleted:
		return m.runTurn(ctx, nil, ev, ev.Data, StrategyConversation)
	case EventRunFailed:
		return m.runTurn(ctx, nil, ev, ev.Data, StrategyReasoning)
	case EventToolApproved:
		return m.handleTool(ctx, ev, true)
	case EventToolRejected:
		return m.handleTool(ctx, ev, false)
	case EventTaskReady:
		return m.handleTaskReady(ctx, ev)
	}
	return fmt.Errorf("%w: unhandled event type %q", ErrInvalidConfiguration, ev.Type)
}

func (m *Machine) handleTool(ctx context.Context, ev Event, approved bool) error {
	state, err := m.context(ctx)
	if err != nil {
		return err
	}
	callID := ev.str("toolCallId")
	var call *swarmstate.ToolCall
	remaining := make([]swarmstate.ToolCall, 0, len(state.ChatConfig.PendingToolCalls))
	for _, tc := range state.ChatConfig.PendingToolCalls {
		if tc.ID == callID {
			c := tc
			call = &c
			continue
		}
		remaining = append(remaining, tc)
	}

	data := cloneData(ev.Data)
	data["approved"] = approved
	if call == nil {
		m.logger.Warn("tool call not pending", "swarm", state.SwarmID, "tool_call", callID)
	} else {
		data["toolName"] = call.Name
		data["botId"] = call.BotID
		partial := map[string]any{"chatConfig.pendingToolCalls": remaining}
		reason := "tool: rejected " + callID
		if approved {
			partial["chatConfig.stats.totalToolCalls"] = state.ChatConfig.Stats.TotalToolCalls + 1
			reason = "tool: approved " + callID
		}
		if state, err = m.contexts.UpdateContext(ctx, state.SwarmID, partial, reason); err != nil {
			return fmt.Errorf("remove pending tool call: %w", err)
		}
	}

	if approved {
		m.publish(ctx, BusToolCompleted, map[string]any{
			"toolCallId": callID,
			"toolName":   data["toolName"],
			"approved":   true,
		})
		return m.runTurn(ctx, state, ev, data, StrategyConversation)
	}
	return m.runTurn(ctx, state, ev, data, StrategyReasoning)
}

func (m *Machine) handleTaskReady(ctx context.Context, ev Event) error {
	state, err := m.context(ctx)
	if err != nil {
		return err
	}
	plan, err := PlanSubtasks(state.ChatConfig.Subtasks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	data := cloneData(ev.Data)
	data["readySubtasks"] = plan.Ready
	return m.runTurn(ctx, state, ev, data, StrategyReasoning)
}

func (m *Machine) runTurn(ctx context.Context, state *swarmstate.SwarmState, ev Event, data map[string]any, strategy string) error {
	m.transition(ctx, StateRunning, ev.Type, nil, StateIdle)
	trigger := Trigger{
		Type:      ev.Type,
		Source:    triggerSource(ev.Type),
		EventID:   ev.ID,
		Data:      data,
		Timestamp: ev.Timestamp,
	}
	if err := m.converse(ctx, state, trigger, strategy); err != nil {
		return err
	}
	m.transition(ctx, StateIdle, ev.Type+" handled", nil, StateRunning)
	return nil
}

func triggerSource(eventType string) string {
	switch {
	case eventType == EventExternalMessage:
		return "user"
	case strings.HasPrefix(eventType, "tool/"):
		return "tool"
	}
	return "system"
}

func (m *Machine) context(ctx context.Context) (*swarmstate.SwarmState, error) {
	state, err := m.contexts.GetContext(ctx, m.SwarmID())
	switch {
	case errors.Is(err, swarmstate.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrConversationStateNotFound, m.SwarmID())
	case err != nil:
		return nil, fmt.Errorf("get context: %w", err)
	case state == nil:
		return nil, fmt.Errorf("%w: %s", ErrConversationStateNotFound, m.SwarmID())
	}
	return state, nil
}

func (m *Machine) converse(ctx context.Context, state *swarmstate.SwarmState, trigger Trigger, strategy string) error {
	if state == nil {
		var err error
		if state, err = m.context(ctx); err != nil {
			return err
		}
	}
	res, err := m.orchestrator.OrchestrateConversation(ctx, ConversationRequest{
		Context:  ProjectConversation(state),
		Trigger:  trigger,
		Strategy: strategy,
	})
	if err != nil {
		return fmt.Errorf("orchestrate %s: %w", trigger.Type, err)
	}
	if res == nil || !res.Success {
		return fmt.Errorf("orchestrate %s: turn unsuccessful", trigger.Type)
	}
	m.logger.Debug("conversation turn completed", "swarm", state.SwarmID, "trigger", trigger.Type,
		"strategy", strategy, "messages", len(res.Messages), "duration", res.Duration)
	m.account(ctx, res.ResourcesUsed)
	return nil
}

// account moves used from remaining to consumed.
func (m *Machine) account(ctx context.Context, used swarmstate.Budget) {
	if used.IsZero() {
		return
	}
	state, err := m.context(ctx)
	if err != nil {
		m.logger.Warn("resource accounting skipped", "swarm", m.SwarmID(), "error", err)
		return
	}
	partial := map[string]any{
		"resources.consumed":            state.Resources.Consumed.Add(used),
		"resources.remaining":           state.Resources.Remaining.Sub(used),
		"chatConfig.stats.totalCredits": state.ChatConfig.Stats.TotalCredits + used.Credits,
	}
	if _, err := m.contexts.UpdateContext(ctx, state.SwarmID, partial, "resources: turn accounting"); err != nil {
		m.logger.Warn("resource accounting failed", "swarm", state.SwarmID, "error", err)
	}
}

// Pause stops draining. Events keep being queued.
func (m *Machine) Pause(ctx context.Context) error {
	if !m.transition(ctx, StatePaused, "pause", nil, StateIdle, StateRunning) {
		return fmt.Errorf("pause swarm in state %s", m.State())
	}
	m.updateStatus(ctx, swarmstate.ExecutionPaused, "pause")
	return nil
}

// Resume returns a paused machine to IDLE and drains queued events.
func (m *Machine) Resume(ctx context.Context) error {
	if !m.transition(ctx, StateIdle, "resume", nil, StatePaused) {
		return fmt.Errorf("resume swarm in state %s", m.State())
	}
	m.updateStatus(ctx, swarmstate.ExecutionIdle, "resume")
	m.kick()
	return nil
}

// Stop ends the swarm. Graceful mode waits for the current drain to finish
// and ends in STOPPED; force mode ends in TERMINATED right away. Pending
// events are dropped.
func (m *Machine) Stop(ctx context.Context, mode StopMode, reason string) (Stats, error) {
	if state := m.State(); state.Terminal() {
		m.logger.Warn("stop ignored", "swarm", m.SwarmID(), "state", state)
		return Stats{}, nil
	}
	if mode == StopGraceful {
		if err := m.queue.WaitIdle(ctx); err != nil {
			m.logger.Warn("graceful stop interrupted", "swarm", m.SwarmID(), "error", err)
		}
	}

	swarmID := m.SwarmID()
	m.unsubscribe()

	stats := m.finalStats(ctx)
	target, status := StateStopped, swarmstate.ExecutionStopped
	if mode == StopForce {
		target = StateTerminated
	}
	if swarmID != "" {
		m.updateStatus(ctx, status, "stop")
		if a, ok := m.contexts.(Archiver); ok {
			if err := a.ArchiveContext(ctx, swarmID); err != nil {
				m.logger.Warn("archive failed", "swarm", swarmID, "error", err)
			}
		}
	}
	dropped := m.queue.Clear()
	m.transition(ctx, target, reason, map[string]any{
		"mode":    string(mode),
		"stats":   stats,
		"dropped": dropped,
	})
	return stats, nil
}

// unsubscribe drops the context subscription. Failures are logged only.
func (m *Machine) unsubscribe() {
	m.mu.Lock()
	swarmID, sub := m.swarmID, m.subscription
	m.subscription = ""
	m.mu.Unlock()
	if sub == "" {
		return
	}
	if err := m.contexts.Unsubscribe(sub); err != nil {
		m.logger.Warn("unsubscribe failed", "swarm", swarmID, "error", err)
	}
}

func (m *Machine) finalStats(ctx context.Context) Stats {
	if m.SwarmID() == "" {
		return Stats{}
	}
	state, err := m.context(ctx)
	if err != nil {
		m.logger.Warn("final stats unavailable", "swarm", m.SwarmID(), "error", err)
		return Stats{}
	}
	s := Stats{
		TotalSubtasks: len(state.ChatConfig.Subtasks),
		CreditsUsed:   state.ChatConfig.Stats.TotalCredits,
		ToolCalls:     state.ChatConfig.Stats.TotalToolCalls,
	}
	if s.CreditsUsed == 0 {
		s.CreditsUsed = state.Resources.Consumed.Credits
	}
	for _, st := range state.ChatConfig.Subtasks {
		if st.Done() {
			s.CompletedSubtasks++
		}
	}
	return s
}

// ReadForAgent reads path from the current shared state on behalf of agentID.
func (m *Machine) ReadForAgent(ctx context.Context, agentID, path string, opts accessor.Options) (any, error) {
	state, err := m.context(ctx)
	if err != nil {
		return nil, err
	}
	tc := accessor.BuildTriggerContext(state, nil, accessor.BotView{ID: agentID})
	return m.access.AccessData(ctx, path, tc, state, opts)
}

func (m *Machine) onContextChange(ch swarmstate.Change) {
	ctx := context.Background()
	published := make(map[string]bool)
	for _, p := range ch.Paths {
		switch {
		case hasPathPrefix(p, "execution.status"):
			m.logger.Info("execution status changed", "swarm", ch.SwarmID, "version", ch.Version, "reason", ch.Reason)
		case hasPathPrefix(p, "chatConfig.blackboard"), hasPathPrefix(p, "blackboard.items"):
			m.logger.Debug("blackboard changed", "swarm", ch.SwarmID, "path", p, "emergent", ch.Emergent)
		default:
			for _, section := range []string{"security", "resource", "organizational"} {
				if !hasPathPrefix(p, "policy."+section) || published[section] {
					continue
				}
				published[section] = true
				m.publish(ctx, PolicyUpdatedType(section), map[string]any{
					"path":     p,
					"emergent": ch.Emergent,
					"version":  ch.Version,
				})
			}
		}
	}
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+".")
}

// transition moves to `to` when the current state is one of from (any
// non-terminal state when from is empty) and emits a lifecycle event.
func (m *Machine) transition(ctx context.Context, to State, reason string, extra map[string]any, from ...State) bool {
	m.mu.Lock()
	cur := m.state
	if cur.Terminal() || cur == to || (len(from) > 0 && !slices.Contains(from, cur)) {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.mu.Unlock()
	m.emitTransition(ctx, cur, to, reason, extra)
	return true
}

func (m *Machine) emitTransition(ctx context.Context, from, to State, reason string, extra map[string]any) {
	m.logger.Info("swarm state changed", "swarm", m.SwarmID(), "from", from, "to", to, "reason", reason)
	data := map[string]any{"from": string(from), "to": string(to), "reason": reason}
	for k, v := range extra {
		data[k] = v
	}
	m.publish(ctx, BusStateChanged, data)
}

func (m *Machine) updateStatus(ctx context.Context, status swarmstate.ExecutionStatus, reason string) {
	swarmID := m.SwarmID()
	if swarmID == "" {
		return
	}
	partial := map[string]any{"execution.status": status}
	if _, err := m.contexts.UpdateContext(ctx, swarmID, partial, "swarm: "+reason); err != nil {
		m.logger.Warn("execution status update failed", "swarm", swarmID, "status", status, "error", err)
	}
}

func (m *Machine) publish(ctx context.Context, eventType string, data map[string]any) {
	if m.bus == nil {
		return
	}
	ev := BusEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		SwarmID:   m.SwarmID(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	if err := m.bus.Publish(ctx, ev); err != nil {
		m.logger.Warn("publish event failed", "swarm", ev.SwarmID, "type", eventType, "error", err)
	}
}

func cloneData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
