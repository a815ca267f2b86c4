package swarm

import (
	"fmt"
	"time"
)

// Inbound event types.
const (
	EventSwarmStarted    = "swarm/started"
	EventExternalMessage = "external/message"
	EventToolApproved    = "tool/approved"
	EventToolRejected    = "tool/rejected"
	EventTaskReady       = "internal/task_ready"
	EventRunCompleted    = "internal/run_completed"
	EventRunFailed       = "internal/run_failed"
)

// Outbound bus event types.
const (
	BusStateChanged  = "swarm/state_changed"
	BusToolCompleted = "swarm/tool/completed"
)

// PolicyUpdatedType returns the bus event type for a changed policy section.
func PolicyUpdatedType(section string) string {
	return "swarm/policy/" + section + "_updated"
}

// Event is an inbound occurrence for one swarm.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	SwarmID   string         `json:"swarmId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

func (e Event) str(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Validate checks the fields each event type requires.
func (e Event) Validate() error {
	require := func(key string) error {
		if e.str(key) == "" {
			return fmt.Errorf("%s event missing %s", e.Type, key)
		}
		return nil
	}
	switch e.Type {
	case EventSwarmStarted:
		return require("chatId")
	case EventExternalMessage:
		return require("message")
	case EventToolApproved, EventToolRejected:
		return require("toolCallId")
	case EventRunCompleted, EventRunFailed:
		return require("runId")
	case EventTaskReady:
		return nil
	case "":
		return fmt.Errorf("event without type")
	}
	return fmt.Errorf("unknown event type %q", e.Type)
}
