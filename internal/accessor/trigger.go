package accessor

import (
	"time"

	"github.com/mtzanidakis/hive/internal/policy"
	"github.com/mtzanidakis/hive/internal/swarmstate"
)

// Event is the occurrence a trigger context is built around.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// BotView is the requesting agent as seen by the access pipeline.
type BotView struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name,omitempty"`
	Role        string                 `json:"role,omitempty"`
	Resources   []policy.ResourceGrant `json:"resources,omitempty"`
	Performance swarmstate.Performance `json:"performance"`
}

// SwarmView is the aggregate swarm summary exposed to triggers.
type SwarmView struct {
	ID        string                     `json:"id"`
	Version   int64                      `json:"version"`
	Status    swarmstate.ExecutionStatus `json:"state,omitempty"`
	Goal      string                     `json:"goal,omitempty"`
	Agents    []string                   `json:"agents,omitempty"`
	Resources ResourceView               `json:"resources"`
}

type ResourceView struct {
	Allocated swarmstate.Budget `json:"allocated"`
	Consumed  swarmstate.Budget `json:"consumed"`
	Remaining swarmstate.Budget `json:"remaining"`
}

// TriggerContext carries everything AccessData needs about the requester.
type TriggerContext struct {
	Event      Event          `json:"event"`
	Bot        BotView        `json:"bot"`
	Swarm      SwarmView      `json:"swarm"`
	Blackboard map[string]any `json:"blackboard"`
}

// BuildTriggerContext projects state for bot. A nil event is replaced by a
// synthetic "none" event stamped with the current time. The bot's
// participant record, when registered, fills in grants missing from bot.
func BuildTriggerContext(state *swarmstate.SwarmState, event *Event, bot BotView) TriggerContext {
	ev := Event{Type: "none", Data: map[string]any{}, Timestamp: time.Now()}
	if event != nil {
		ev = *event
		if ev.Data == nil {
			ev.Data = map[string]any{}
		}
	}

	if p, ok := state.Agent(bot.ID); ok {
		if bot.Name == "" {
			bot.Name = p.Name
		}
		if bot.Role == "" {
			bot.Role = p.Config.AgentSpec.Role
		}
		if bot.Resources == nil {
			bot.Resources = p.Config.AgentSpec.Resources
		}
		bot.Performance = p.Performance
	}

	agents := make([]string, 0, len(state.Execution.Agents))
	for _, a := range state.Execution.Agents {
		agents = append(agents, a.ID)
	}

	return TriggerContext{
		Event: ev,
		Bot:   bot,
		Swarm: SwarmView{
			ID:        state.SwarmID,
			Version:   state.Version,
			Status:    state.Execution.Status,
			Goal:      state.ChatConfig.Goal,
			Agents:    agents,
			Resources: AggregateResources(state.Resources),
		},
		Blackboard: FilterBlackboard(state.ChatConfig.Blackboard, bot.Resources),
	}
}

// AggregateResources computes the swarm-wide budget view. Credits and time
// are summed from explicit allocations when present; tokens have no
// per-allocation breakdown and always come from consumed + remaining.
func AggregateResources(r swarmstate.Resources) ResourceView {
	total := r.Consumed.Add(r.Remaining)
	allocated := total
	if len(r.Allocated) > 0 {
		allocated.Credits, allocated.Time = 0, 0
		for _, a := range r.Allocated {
			allocated.Credits += a.Limits.Credits
			allocated.Time += a.Limits.Time
		}
	}
	return ResourceView{Allocated: allocated, Consumed: r.Consumed, Remaining: r.Remaining}
}

// FilterBlackboard returns the items grants allow reading, keyed by id.
func FilterBlackboard(items []swarmstate.BlackboardItem, grants []policy.ResourceGrant) map[string]any {
	out := make(map[string]any)
	for _, item := range items {
		if policy.CanReadBlackboardItem(grants, item.ID) {
			out[item.ID] = item.Value
		}
	}
	return out
}
