package navigator

import "time"

// Location addresses one node of one routine.
type Location struct {
	ID        string `json:"id"`
	RoutineID string `json:"routineId"`
	NodeID    string `json:"nodeId"`
}

// NewLocation builds a location whose id is derived from its routine and node.
func NewLocation(routineID, nodeID string) Location {
	return Location{ID: routineID + "_" + nodeID, RoutineID: routineID, NodeID: nodeID}
}

// Trigger lets an event move execution out of a location.
type Trigger struct {
	Event     string `json:"event"`
	Condition string `json:"condition,omitempty"`
}

// Timeout actions.
const (
	TimeoutInterrupt = "interrupt"
	TimeoutNotify    = "notify"
)

// Timeout is a deadline declared on a location. Enforcement belongs to the
// caller; see the timeouts package.
type Timeout struct {
	Duration         time.Duration `json:"duration"`
	Action           string        `json:"action"`
	FallbackLocation *Location     `json:"fallbackLocation,omitempty"`
}

// StepInfo describes the node behind a location.
type StepInfo struct {
	Location    Location       `json:"location"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type"`
	Config      map[string]any `json:"config,omitempty"`
}

// Event is an occurrence tested against location triggers.
type Event struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}
