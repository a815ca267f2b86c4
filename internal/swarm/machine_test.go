package swarm

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"slices"
	"syscall"
	"testing"
	"time"

	"github.com/mtzanidakis/hive/internal/accessor"
	"github.com/mtzanidakis/hive/internal/config"
	"github.com/mtzanidakis/hive/internal/policy"
	"github.com/mtzanidakis/hive/internal/store"
	"github.com/mtzanidakis/hive/internal/swarmstate"
)

type harness struct {
	m        *Machine
	contexts *fakeContexts
	orch     *fakeOrchestrator
	bus      *fakeBus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		contexts: newFakeContexts(),
		orch:     &fakeOrchestrator{errFor: map[string]error{}},
		bus:      &fakeBus{},
	}
	h.m = NewMachine(h.contexts, h.orch, h.bus)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.m.Start(context.Background(), "chat-1", "write the report", "user-1", "swarm-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func (h *harness) send(t *testing.T, ev Event) {
	t.Helper()
	if err := h.m.HandleEvent(ev); err != nil {
		t.Fatalf("handle %s: %v", ev.Type, err)
	}
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.m.WaitIdle(ctx); err != nil {
		t.Fatalf("wait idle: %v", err)
	}
}

func message(text string) Event {
	return Event{Type: EventExternalMessage, Data: map[string]any{"message": text}}
}

func TestStartTransitionsToIdle(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	if got := h.m.State(); got != StateIdle {
		t.Fatalf("expected IDLE, got %s", got)
	}
	if got := h.bus.transitions(); !slices.Equal(got, []string{"STARTING", "IDLE"}) {
		t.Errorf("unexpected transitions %v", got)
	}
	calls := h.orch.calls()
	if len(calls) != 1 || calls[0].Trigger.Type != EventSwarmStarted || calls[0].Strategy != StrategyConversation {
		t.Fatalf("expected one swarm-started turn, got %+v", calls)
	}
	s := h.contexts.state("swarm-1")
	if s.ChatConfig.Goal != "write the report" || s.InitiatingUser != "user-1" {
		t.Errorf("unexpected context %+v", s)
	}
	if s.Execution.Status != swarmstate.ExecutionIdle {
		t.Errorf("expected execution status idle, got %s", s.Execution.Status)
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	events := len(h.bus.ofType(BusStateChanged))

	if err := h.m.Start(context.Background(), "chat-2", "other", "user-2", "swarm-2"); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if h.contexts.created != 1 {
		t.Errorf("expected one context, got %d", h.contexts.created)
	}
	if got := len(h.bus.ofType(BusStateChanged)); got != events {
		t.Errorf("expected no new lifecycle events, got %d more", got-events)
	}
	if h.m.SwarmID() != "swarm-1" {
		t.Errorf("swarm id changed to %s", h.m.SwarmID())
	}
}

func TestStartFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("orchestrator exploded")
	h.orch.errFor[EventSwarmStarted] = boom

	err := h.m.Start(context.Background(), "chat-1", "goal", "user-1", "swarm-1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected start error to be returned, got %v", err)
	}
	if h.m.State() != StateFailed {
		t.Errorf("expected FAILED, got %s", h.m.State())
	}
	if got := h.bus.transitions(); got[len(got)-1] != "FAILED" {
		t.Errorf("expected FAILED lifecycle event, got %v", got)
	}
	if len(h.contexts.unsubscribed) != 1 {
		t.Errorf("expected subscription to be dropped, got %v", h.contexts.unsubscribed)
	}
	if err := h.m.HandleEvent(message("late")); err == nil {
		t.Error("expected events to be refused after failure")
	}
}

func TestEventsProcessedInOrder(t *testing.T) {
	h := newHarness(t)
	h.orch.hold = make(chan struct{})
	close(h.orch.hold)
	h.start(t)

	for _, text := range []string{"one", "two", "three", "four"} {
		h.send(t, message(text))
	}
	h.wait(t)

	calls := h.orch.calls()[1:]
	var got []string
	for _, c := range calls {
		got = append(got, c.Trigger.Data["message"].(string))
	}
	if !slices.Equal(got, []string{"one", "two", "three", "four"}) {
		t.Errorf("expected arrival order, got %v", got)
	}
	if h.orch.maxInFlight.Load() != 1 {
		t.Errorf("expected serial processing, got %d concurrent turns", h.orch.maxInFlight.Load())
	}
	if calls[0].Trigger.Source != "user" || calls[0].Trigger.EventID == "" {
		t.Errorf("unexpected trigger %+v", calls[0].Trigger)
	}
	if h.m.State() != StateIdle {
		t.Errorf("expected IDLE after drain, got %s", h.m.State())
	}
}

func TestEventsQueuedBeforeStartDrainAfterwards(t *testing.T) {
	h := newHarness(t)
	h.send(t, message("early"))
	if len(h.orch.calls()) != 0 || h.m.Snapshot().Queued != 1 {
		t.Fatal("expected event to wait for start")
	}
	h.start(t)
	h.wait(t)

	calls := h.orch.calls()
	if len(calls) != 2 || calls[1].Trigger.Data["message"] != "early" {
		t.Errorf("expected queued event after start turn, got %+v", calls)
	}
}

func TestInvalidEventsDropped(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	for _, ev := range []Event{
		{Type: EventSwarmStarted},
		{Type: EventToolApproved},
		{Type: EventRunFailed},
		{Type: EventExternalMessage},
		{Type: "mystery"},
		{},
	} {
		if err := h.m.HandleEvent(ev); err == nil {
			t.Errorf("expected %q to be rejected", ev.Type)
		}
	}
	h.wait(t)
	if n := len(h.orch.calls()); n != 1 {
		t.Errorf("expected no turns for invalid events, got %d", n-1)
	}
}

func TestToolApprovalAndRejection(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.contexts.mutate("swarm-1", func(s *swarmstate.SwarmState) {
		s.ChatConfig.PendingToolCalls = []swarmstate.ToolCall{
			{ID: "call-1", Name: "search", BotID: "bot-1"},
			{ID: "call-2", Name: "deploy", BotID: "bot-1"},
		}
	})

	h.send(t, Event{Type: EventToolApproved, Data: map[string]any{"toolCallId": "call-1"}})
	h.send(t, Event{Type: EventToolRejected, Data: map[string]any{"toolCallId": "call-2"}})
	h.wait(t)

	s := h.contexts.state("swarm-1")
	if len(s.ChatConfig.PendingToolCalls) != 0 {
		t.Errorf("expected pending calls removed, got %+v", s.ChatConfig.PendingToolCalls)
	}
	if s.ChatConfig.Stats.TotalToolCalls != 1 {
		t.Errorf("expected one counted tool call, got %d", s.ChatConfig.Stats.TotalToolCalls)
	}
	completed := h.bus.ofType(BusToolCompleted)
	if len(completed) != 1 || completed[0].Data["toolName"] != "search" {
		t.Errorf("expected one tool completion event, got %+v", completed)
	}
	calls := h.orch.calls()
	if calls[1].Strategy != StrategyConversation || calls[2].Strategy != StrategyReasoning {
		t.Errorf("unexpected strategies %s, %s", calls[1].Strategy, calls[2].Strategy)
	}
	if calls[2].Trigger.Source != "tool" || calls[2].Trigger.Data["approved"] != false {
		t.Errorf("unexpected rejection trigger %+v", calls[2].Trigger)
	}
}

func TestRunFailureWithNetworkErrorDemotesToIdle(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.orch.mu.Lock()
	h.orch.errFor[EventRunFailed] = &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	h.orch.mu.Unlock()

	h.send(t, Event{Type: EventRunFailed, Data: map[string]any{"runId": "run-1"}})
	h.wait(t)

	if h.m.State() != StateIdle {
		t.Fatalf("expected IDLE after transient failure, got %s", h.m.State())
	}
	calls := h.orch.calls()
	if calls[len(calls)-1].Strategy != StrategyReasoning {
		t.Errorf("expected reasoning strategy for failures")
	}
	if got := h.bus.transitions(); got[len(got)-1] != "IDLE" || !slices.Contains(got, "RUNNING") {
		t.Errorf("expected RUNNING then IDLE, got %v", got)
	}
}

func TestFatalEventErrorFailsSwarm(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.orch.mu.Lock()
	h.orch.errFor[EventRunCompleted] = ErrNoLeaderBot
	h.orch.mu.Unlock()

	h.send(t, Event{Type: EventRunCompleted, Data: map[string]any{"runId": "run-1"}})
	h.wait(t)

	if h.m.State() != StateFailed {
		t.Fatalf("expected FAILED, got %s", h.m.State())
	}
	if s := h.contexts.state("swarm-1"); s.Execution.Status != swarmstate.ExecutionFailed {
		t.Errorf("expected failed execution status, got %s", s.Execution.Status)
	}
}

func TestMissingContextFailsSwarm(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.contexts.mu.Lock()
	delete(h.contexts.states, "swarm-1")
	h.contexts.mu.Unlock()

	h.send(t, message("anyone there?"))
	h.wait(t)

	if h.m.State() != StateFailed {
		t.Fatalf("expected FAILED, got %s", h.m.State())
	}
}

func TestArchivedStoreContextFailsSwarm(t *testing.T) {
	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	m := NewMachine(st, &fakeOrchestrator{errFor: map[string]error{}}, &fakeBus{})
	if err := m.Start(ctx, "chat-1", "write the report", "user-1", "sw-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := st.ArchiveContext(ctx, "sw-1"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := m.HandleEvent(message("still there?")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.WaitIdle(wctx); err != nil {
		t.Fatalf("wait idle: %v", err)
	}

	if m.State() != StateFailed {
		t.Fatalf("expected FAILED, got %s", m.State())
	}
}

func TestTaskReadyCarriesReadySubtasks(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.contexts.mutate("swarm-1", func(s *swarmstate.SwarmState) {
		s.ChatConfig.Subtasks = []swarmstate.Subtask{
			{ID: "research", Status: "done"},
			{ID: "draft", DependsOn: []string{"research"}},
			{ID: "review", DependsOn: []string{"draft"}},
		}
	})

	h.send(t, Event{Type: EventTaskReady, Data: map[string]any{"taskId": "draft"}})
	h.wait(t)

	calls := h.orch.calls()
	last := calls[len(calls)-1]
	ready, _ := last.Trigger.Data["readySubtasks"].([]string)
	if !slices.Equal(ready, []string{"draft"}) || last.Strategy != StrategyReasoning {
		t.Errorf("unexpected task-ready turn %+v", last)
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ctx := context.Background()

	if err := h.m.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.send(t, message("while paused"))
	h.wait(t)
	if n := len(h.orch.calls()); n != 1 {
		t.Fatalf("expected no turns while paused, got %d", n-1)
	}
	if err := h.m.Pause(ctx); err == nil {
		t.Error("expected pausing twice to fail")
	}

	if err := h.m.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	h.wait(t)
	if n := len(h.orch.calls()); n != 2 {
		t.Errorf("expected queued event after resume, got %d turns", n-1)
	}
}

func TestStopGraceful(t *testing.T) {
	h := newHarness(t)
	h.orch.used = swarmstate.Budget{Credits: 5, Tokens: 100}
	h.start(t)
	h.contexts.mutate("swarm-1", func(s *swarmstate.SwarmState) {
		s.ChatConfig.Subtasks = []swarmstate.Subtask{{ID: "a", Status: "done"}, {ID: "b"}}
	})

	stats, err := h.m.Stop(context.Background(), StopGraceful, "user request")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	want := Stats{TotalSubtasks: 2, CompletedSubtasks: 1, CreditsUsed: 5}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}
	if h.m.State() != StateStopped {
		t.Errorf("expected STOPPED, got %s", h.m.State())
	}
	if len(h.contexts.unsubscribed) != 1 || len(h.contexts.archived) != 1 {
		t.Errorf("expected unsubscribe and archive, got %v %v", h.contexts.unsubscribed, h.contexts.archived)
	}
	last := h.bus.ofType(BusStateChanged)
	if ev := last[len(last)-1]; ev.Data["to"] != "STOPPED" || ev.Data["mode"] != "graceful" {
		t.Errorf("unexpected terminal event %+v", ev)
	}

	if _, err := h.m.Stop(context.Background(), StopForce, "again"); err != nil {
		t.Errorf("second stop: %v", err)
	}
	if h.m.State() != StateStopped {
		t.Errorf("expected terminal state to stick, got %s", h.m.State())
	}
}

func TestStopForceWithUnreachableContext(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.contexts.mu.Lock()
	h.contexts.getErr = errors.New("context store down")
	h.contexts.mu.Unlock()

	stats, err := h.m.Stop(context.Background(), StopForce, "shutdown")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
	if h.m.State() != StateTerminated {
		t.Errorf("expected TERMINATED, got %s", h.m.State())
	}
}

func TestResourceAccounting(t *testing.T) {
	h := newHarness(t)
	h.orch.used = swarmstate.Budget{Credits: 3, Tokens: 40, Time: 1200}
	h.start(t)
	h.send(t, message("again"))
	h.wait(t)

	s := h.contexts.state("swarm-1")
	if s.Resources.Consumed != (swarmstate.Budget{Credits: 6, Tokens: 80, Time: 2400}) {
		t.Errorf("unexpected consumed %+v", s.Resources.Consumed)
	}
	if s.Resources.Remaining.Credits != -6 {
		t.Errorf("expected remaining to shrink, got %+v", s.Resources.Remaining)
	}
	if s.ChatConfig.Stats.TotalCredits != 6 {
		t.Errorf("expected total credits 6, got %d", s.ChatConfig.Stats.TotalCredits)
	}
}

func TestPolicyChangeEmitsEvent(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	_, err := h.contexts.UpdateContext(context.Background(), "swarm-1", map[string]any{
		"policy.security.level":   "strict",
		"policy.security.reviewer": "bot-2",
		"chatConfig.goal":          "new goal",
	}, "agent:bot-1 tightened policy")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	evs := h.bus.ofType(PolicyUpdatedType("security"))
	if len(evs) != 1 {
		t.Fatalf("expected one security policy event, got %d", len(evs))
	}
	if evs[0].Data["emergent"] != true || evs[0].SwarmID != "swarm-1" {
		t.Errorf("unexpected policy event %+v", evs[0])
	}
	if len(h.bus.ofType(PolicyUpdatedType("resource"))) != 0 {
		t.Error("unexpected resource policy event")
	}
}

func TestReadForAgent(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.contexts.mutate("swarm-1", func(s *swarmstate.SwarmState) {
		s.Execution.Agents = []swarmstate.BotParticipant{{
			ID: "bot-1",
			Config: swarmstate.BotConfig{AgentSpec: swarmstate.AgentSpec{
				Resources: []policy.ResourceGrant{{Type: policy.ResourceDocument}},
			}},
		}}
	})

	v, err := h.m.ReadForAgent(context.Background(), "bot-1", "goal", accessor.Options{})
	if err != nil || v != "write the report" {
		t.Errorf("expected goal, got %v %v", v, err)
	}
	_, err = h.m.ReadForAgent(context.Background(), "bot-9", "goal", accessor.Options{})
	if accessor.UnauthorizedCode(err) != accessor.CodeAgentNotInSwarm {
		t.Errorf("expected AgentNotInSwarm, got %v", err)
	}
}

func TestConversationProjection(t *testing.T) {
	s := &swarmstate.SwarmState{
		SwarmID: "s",
		Execution: swarmstate.Execution{Agents: []swarmstate.BotParticipant{
			{ID: "p", Status: swarmstate.BotProcessing},
			{ID: "w", Status: swarmstate.BotWaiting},
			{ID: "c", Status: swarmstate.BotCompleted},
			{ID: "e", Status: swarmstate.BotError},
		}},
	}
	cc := ProjectConversation(s)
	p := cc.Participants
	if !p[0].IsProcessing || !p[1].IsWaiting || !p[2].HasResponded || !p[3].Unavailable {
		t.Errorf("unexpected availability flags %+v", p)
	}
	if p[0].IsWaiting || p[3].HasResponded {
		t.Errorf("flags must be exclusive, got %+v", p)
	}
	if cc.LeaderBotID != "p" {
		t.Errorf("expected first agent as leader, got %s", cc.LeaderBotID)
	}
}
