package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicSwarmInput(swarmID string) string {
	return fmt.Sprintf("swarm.%s.input", swarmID)
}

func TopicSwarmApproval(swarmID string) string {
	return fmt.Sprintf("swarm.%s.approval", swarmID)
}

func TopicEventsSwarm(swarmID string) string {
	return fmt.Sprintf("events.swarm.%s", swarmID)
}

func TopicEventsAccess(swarmID string) string {
	return fmt.Sprintf("events.swarm.%s.access", swarmID)
}

const (
	TopicEventsAll      = "events.>"
	TopicSwarmInputs    = "swarm.*.input"
	TopicSwarmApprovals = "swarm.*.approval"
)

func TopicSwarmOrchestrate(swarmID string) string {
	return fmt.Sprintf("swarm.%s.orchestrate", swarmID)
}

func TopicSwarmLocation(swarmID string) string {
	return fmt.Sprintf("swarm.%s.location", swarmID)
}

const TopicSwarmLocations = "swarm.*.location"
