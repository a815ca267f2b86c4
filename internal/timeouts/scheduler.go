package timeouts

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/hive/internal/config"
	"github.com/mtzanidakis/hive/internal/navigator"
	"github.com/mtzanidakis/hive/internal/swarm"
)

// Entry is one armed location timeout.
type Entry struct {
	ID       string             `json:"id"`
	SwarmID  string             `json:"swarmId"`
	Location navigator.Location `json:"location"`
	Timeout  navigator.Timeout  `json:"timeout"`
	Deadline time.Time          `json:"deadline"`
}

// Event converts an expired entry into a task-ready event for its swarm.
func (e Entry) Event(now time.Time) swarm.Event {
	data := map[string]any{
		"reason":     "timeout",
		"timeoutId":  e.ID,
		"action":     e.Timeout.Action,
		"locationId": e.Location.ID,
		"routineId":  e.Location.RoutineID,
		"nodeId":     e.Location.NodeID,
	}
	if fb := e.Timeout.FallbackLocation; fb != nil {
		data["fallbackLocation"] = map[string]any{
			"id":        fb.ID,
			"routineId": fb.RoutineID,
			"nodeId":    fb.NodeID,
		}
	}
	return swarm.Event{
		ID:        uuid.New().String(),
		Type:      swarm.EventTaskReady,
		SwarmID:   e.SwarmID,
		Timestamp: now,
		Data:      data,
	}
}

// Handler receives each expired entry once.
type Handler func(ctx context.Context, e Entry)

// Scheduler polls armed timeouts and fires the handler for expired ones.
type Scheduler struct {
	handler Handler
	now     func() time.Time

	mu           sync.Mutex
	entries      map[string]Entry
	pollInterval time.Duration
	reloadCh     chan struct{}
}

func New(cfg config.SchedulerConfig, handler Handler) *Scheduler {
	return &Scheduler{
		handler:      handler,
		now:          time.Now,
		entries:      make(map[string]Entry),
		pollInterval: cfg.PollInterval,
		reloadCh:     make(chan struct{}, 1),
	}
}

// UpdateConfig changes the poll interval and signals the run loop to reset
// its ticker.
func (s *Scheduler) UpdateConfig(pollInterval time.Duration) {
	s.mu.Lock()
	s.pollInterval = pollInterval
	s.mu.Unlock()
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

// Arm registers the timeouts of a location and returns their ids.
func (s *Scheduler) Arm(swarmID string, loc navigator.Location, timeouts []navigator.Timeout) []string {
	now := s.now()
	ids := make([]string, 0, len(timeouts))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range timeouts {
		e := Entry{
			ID:       uuid.New().String(),
			SwarmID:  swarmID,
			Location: loc,
			Timeout:  t,
			Deadline: now.Add(t.Duration),
		}
		s.entries[e.ID] = e
		ids = append(ids, e.ID)
	}
	return ids
}

// Cancel drops one entry. It reports whether the entry was armed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

// CancelLocation drops every entry armed for loc in swarmID, typically when
// execution leaves the location.
func (s *Scheduler) CancelLocation(swarmID string, loc navigator.Location) int {
	return s.cancelWhere(func(e Entry) bool {
		return e.SwarmID == swarmID && e.Location == loc
	})
}

// CancelSwarm drops every entry of swarmID.
func (s *Scheduler) CancelSwarm(swarmID string) int {
	return s.cancelWhere(func(e Entry) bool { return e.SwarmID == swarmID })
}

func (s *Scheduler) cancelWhere(match func(Entry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if match(e) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Pending returns armed entries ordered by deadline.
func (s *Scheduler) Pending() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.Unlock()
	sortByDeadline(out)
	return out
}

func (s *Scheduler) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollInterval <= 0 {
		s.pollInterval = 5 * time.Second
	}
	return s.pollInterval
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	slog.Info("timeout scheduler started", "poll_interval", s.interval())

	for {
		select {
		case <-ctx.Done():
			slog.Info("timeout scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.interval())
			slog.Info("timeout scheduler config reloaded", "poll_interval", s.interval())
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll fires every entry whose deadline has passed, earliest first.
func (s *Scheduler) poll(ctx context.Context) int {
	now := s.now()
	s.mu.Lock()
	var due []Entry
	for id, e := range s.entries {
		if !e.Deadline.After(now) {
			due = append(due, e)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	sortByDeadline(due)
	for _, e := range due {
		slog.Info("location timeout expired",
			"swarm", e.SwarmID,
			"location", e.Location.ID,
			"action", e.Timeout.Action)
		s.handler(ctx, e)
	}
	return len(due)
}

func sortByDeadline(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Deadline.Equal(entries[j].Deadline) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Deadline.Before(entries[j].Deadline)
	})
}
