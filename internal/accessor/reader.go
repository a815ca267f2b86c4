package accessor

import (
	"context"

	"github.com/mtzanidakis/hive/internal/swarmstate"
)

// ReadPath is the default Reader. It resolves path against the agent-facing
// view of state and falls back to the raw state document. Unknown paths
// resolve to nil.
func ReadPath(_ context.Context, state *swarmstate.SwarmState, path string) (any, error) {
	doc, err := swarmstate.Document(state)
	if err != nil {
		return nil, err
	}
	if v, ok := swarmstate.Lookup(View(doc), path); ok {
		return v, nil
	}
	if v, ok := swarmstate.Lookup(doc, path); ok {
		return v, nil
	}
	return nil, nil
}

// View reshapes a state document into the paths agents address:
// goal, subtasks, records, stats, blackboard.<id> and swarm.*.
func View(doc map[string]any) map[string]any {
	chat, _ := doc["chatConfig"].(map[string]any)
	exec, _ := doc["execution"].(map[string]any)

	blackboard := make(map[string]any)
	if items, ok := chat["blackboard"].([]any); ok {
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				if id, ok := m["id"].(string); ok {
					blackboard[id] = m["value"]
				}
			}
		}
	}

	return map[string]any{
		"goal":       chat["goal"],
		"subtasks":   chat["subtasks"],
		"records":    chat["records"],
		"stats":      chat["stats"],
		"blackboard": blackboard,
		"swarm": map[string]any{
			"id":        doc["swarmId"],
			"version":   doc["version"],
			"state":     exec["status"],
			"agents":    exec["agents"],
			"resources": doc["resources"],
		},
	}
}
