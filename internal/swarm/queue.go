package swarm

import (
	"context"
	"sync"
)

// eventQueue is a per-swarm FIFO with a single drain owner.
type eventQueue struct {
	mu       sync.Mutex
	pending  []Event
	draining bool
	idle     chan struct{}
}

func newEventQueue() *eventQueue {
	q := &eventQueue{idle: make(chan struct{})}
	close(q.idle)
	return q
}

func (q *eventQueue) Enqueue(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, ev)
}

// TryLock claims drain ownership. It fails when another drain is active.
func (q *eventQueue) TryLock() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return false
	}
	q.draining = true
	q.idle = make(chan struct{})
	return true
}

// Next pops the oldest event. When the queue is empty it releases drain
// ownership in the same critical section, so an Enqueue racing with the
// end of a drain always finds TryLock available.
func (q *eventQueue) Next() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.release()
		return Event{}, false
	}
	ev := q.pending[0]
	q.pending = q.pending[1:]
	return ev, true
}

// Unlock releases drain ownership, leaving pending events queued.
func (q *eventQueue) Unlock() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.release()
}

func (q *eventQueue) release() {
	if q.draining {
		q.draining = false
		close(q.idle)
	}
}

func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear drops every pending event and returns how many were dropped.
func (q *eventQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	return n
}

// WaitIdle blocks until no drain is active.
func (q *eventQueue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		ch, draining := q.idle, q.draining
		q.mu.Unlock()
		if !draining {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
