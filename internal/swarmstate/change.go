package swarmstate

import (
	"strings"
	"time"
)

// EmergentReasonPrefix marks context updates initiated by an agent rather
// than by the swarm machinery.
const EmergentReasonPrefix = "agent:"

// Change is a context-change notification.
type Change struct {
	SwarmID  string    `json:"swarmId"`
	Version  int64     `json:"version"`
	Paths    []string  `json:"paths"`
	Reason   string    `json:"reason,omitempty"`
	Emergent bool      `json:"emergent"`
	At       time.Time `json:"at"`
}

// IsEmergentReason reports whether an update reason denotes an agent-initiated change.
func IsEmergentReason(reason string) bool {
	return strings.HasPrefix(reason, EmergentReasonPrefix)
}
