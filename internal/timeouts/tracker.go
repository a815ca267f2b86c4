package timeouts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mtzanidakis/hive/internal/navigator"
)

// LocationReport says a swarm's routine execution reached Location.
// Routine, when set, is prepared first so its timeouts can be resolved.
type LocationReport struct {
	Navigator string             `json:"navigator,omitempty"`
	Location  navigator.Location `json:"location"`
	Routine   map[string]any     `json:"routine,omitempty"`
}

// Tracker keeps the timeouts of the location each swarm routine occupies
// armed, and disarms them when execution moves on.
type Tracker struct {
	navigators *navigator.Registry
	scheduler  *Scheduler

	mu      sync.Mutex
	current map[string]navigator.Location
}

func NewTracker(navigators *navigator.Registry, scheduler *Scheduler) *Tracker {
	return &Tracker{
		navigators: navigators,
		scheduler:  scheduler,
		current:    make(map[string]navigator.Location),
	}
}

// Report handles a location report and returns the number of armed timeouts.
func (t *Tracker) Report(ctx context.Context, swarmID string, rep LocationReport) (int, error) {
	var nav navigator.Navigator
	if rep.Routine != nil {
		prepared, _, err := t.navigators.Prepare(ctx, rep.Routine)
		if err != nil {
			return 0, err
		}
		nav = prepared
	} else {
		n, ok := t.navigators.Navigator(rep.Navigator)
		if !ok {
			return 0, fmt.Errorf("%w: %s", navigator.ErrNoNavigator, rep.Navigator)
		}
		nav = n
	}

	timeouts, err := nav.LocationTimeouts(rep.Location)
	if err != nil {
		return 0, err
	}
	end, err := nav.IsEndLocation(rep.Location)
	if err != nil {
		return 0, err
	}

	key := swarmID + "/" + rep.Location.RoutineID
	t.mu.Lock()
	if prev, ok := t.current[key]; ok {
		t.scheduler.CancelLocation(swarmID, prev)
	}
	if end {
		delete(t.current, key)
	} else {
		t.current[key] = rep.Location
	}
	t.mu.Unlock()

	if end || len(timeouts) == 0 {
		return 0, nil
	}
	return len(t.scheduler.Arm(swarmID, rep.Location, timeouts)), nil
}

// Forget disarms everything armed for swarmID.
func (t *Tracker) Forget(swarmID string) {
	t.mu.Lock()
	for key := range t.current {
		if strings.HasPrefix(key, swarmID+"/") {
			delete(t.current, key)
		}
	}
	t.mu.Unlock()
	t.scheduler.CancelSwarm(swarmID)
}
