package swarm

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mtzanidakis/hive/internal/swarmstate"
)

// SubtaskPlan orders a swarm's subtasks by their dependencies.
type SubtaskPlan struct {
	Tiers  [][]string          // subtasks in a tier have no dependencies on each other
	Ready  []string            // open subtasks whose dependencies are all done
	Inputs map[string][]string // subtask -> subtasks it depends on
}

// PlanSubtasks validates the dependency graph of subtasks and groups them
// into tiers. It fails on unknown references and cycles.
func PlanSubtasks(subtasks []swarmstate.Subtask) (*SubtaskPlan, error) {
	byID := make(map[string]swarmstate.Subtask, len(subtasks))
	for _, s := range subtasks {
		if s.ID == "" {
			return nil, errors.New("subtask without id")
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate subtask %q", s.ID)
		}
		byID[s.ID] = s
	}

	edges := make(map[string][]string)
	inDegree := make(map[string]int, len(subtasks))
	inputs := make(map[string][]string)
	for _, s := range subtasks {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("subtask %q depends on unknown subtask %q", s.ID, dep)
			}
			edges[dep] = append(edges[dep], s.ID)
			inDegree[s.ID]++
			inputs[s.ID] = append(inputs[s.ID], dep)
		}
	}

	// Kahn's algorithm, grouping by depth
	depth := make(map[string]int)
	var queue []string
	for _, s := range subtasks {
		if inDegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}
	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range edges[id] {
			inDegree[next]--
			if d := depth[id] + 1; d > depth[next] {
				depth[next] = d
			}
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed != len(subtasks) {
		return nil, errors.New("subtask dependencies contain a cycle")
	}

	maxDepth := -1
	for _, s := range subtasks {
		if depth[s.ID] > maxDepth {
			maxDepth = depth[s.ID]
		}
	}
	tiers := make([][]string, maxDepth+1)
	for _, s := range subtasks {
		tiers[depth[s.ID]] = append(tiers[depth[s.ID]], s.ID)
	}

	var ready []string
	for _, s := range subtasks {
		if s.Done() {
			continue
		}
		open := false
		for _, dep := range s.DependsOn {
			if !byID[dep].Done() {
				open = true
				break
			}
		}
		if !open {
			ready = append(ready, s.ID)
		}
	}
	sort.Strings(ready)

	return &SubtaskPlan{Tiers: tiers, Ready: ready, Inputs: inputs}, nil
}
