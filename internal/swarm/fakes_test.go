package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtzanidakis/hive/internal/swarmstate"
)

type fakeContexts struct {
	mu       sync.Mutex
	states   map[string]*swarmstate.SwarmState
	subs     map[string]func(swarmstate.Change)
	subOwner map[string]string
	nextSub  int

	created      int
	unsubscribed []string
	archived     []string
	getErr       error
}

func newFakeContexts() *fakeContexts {
	return &fakeContexts{
		states:   make(map[string]*swarmstate.SwarmState),
		subs:     make(map[string]func(swarmstate.Change)),
		subOwner: make(map[string]string),
	}
}

func (f *fakeContexts) CreateContext(_ context.Context, s *swarmstate.SwarmState) (*swarmstate.SwarmState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	c, err := swarmstate.Clone(s)
	if err != nil {
		return nil, err
	}
	c.Version = 1
	f.states[s.SwarmID] = c
	return c, nil
}

func (f *fakeContexts) GetContext(_ context.Context, id string) (*swarmstate.SwarmState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", swarmstate.ErrNotFound, id)
	}
	return swarmstate.Clone(s)
}

func (f *fakeContexts) UpdateContext(_ context.Context, id string, partial map[string]any, reason string) (*swarmstate.SwarmState, error) {
	f.mu.Lock()
	s, ok := f.states[id]
	if !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", swarmstate.ErrNotFound, id)
	}
	next, paths, err := swarmstate.ApplyPatch(s, partial)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	next.Version = s.Version + 1
	f.states[id] = next
	var fns []func(swarmstate.Change)
	for subID, fn := range f.subs {
		if f.subOwner[subID] == id {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()

	ch := swarmstate.Change{
		SwarmID:  id,
		Version:  next.Version,
		Paths:    paths,
		Reason:   reason,
		Emergent: swarmstate.IsEmergentReason(reason),
		At:       time.Now(),
	}
	for _, fn := range fns {
		fn(ch)
	}
	return swarmstate.Clone(next)
}

func (f *fakeContexts) Subscribe(id string, fn func(swarmstate.Change)) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	subID := fmt.Sprintf("sub-%d", f.nextSub)
	f.subs[subID] = fn
	f.subOwner[subID] = id
	return subID, nil
}

func (f *fakeContexts) Unsubscribe(subID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[subID]; !ok {
		return errors.New("unknown subscription")
	}
	delete(f.subs, subID)
	f.unsubscribed = append(f.unsubscribed, subID)
	return nil
}

func (f *fakeContexts) ArchiveContext(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, id)
	return nil
}

func (f *fakeContexts) mutate(id string, fn func(*swarmstate.SwarmState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.states[id])
}

func (f *fakeContexts) state(id string) *swarmstate.SwarmState {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, _ := swarmstate.Clone(f.states[id])
	return c
}

type fakeOrchestrator struct {
	mu       sync.Mutex
	requests []ConversationRequest
	errFor   map[string]error
	used     swarmstate.Budget
	hold     chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeOrchestrator) OrchestrateConversation(_ context.Context, req ConversationRequest) (*ConversationResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.hold != nil {
		<-f.hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errFor[req.Trigger.Type]; err != nil {
		return nil, err
	}
	return &ConversationResult{Success: true, Messages: []string{"ok"}, ResourcesUsed: f.used}, nil
}

func (f *fakeOrchestrator) calls() []ConversationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ConversationRequest(nil), f.requests...)
}

type fakeBus struct {
	mu     sync.Mutex
	events []BusEvent
}

func (f *fakeBus) Publish(_ context.Context, ev BusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeBus) ofType(t string) []BusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []BusEvent
	for _, ev := range f.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// transitions returns the "to" states of every lifecycle event.
func (f *fakeBus) transitions() []string {
	var out []string
	for _, ev := range f.ofType(BusStateChanged) {
		out = append(out, ev.Data["to"].(string))
	}
	return out
}
