package accessor

import (
	"testing"
	"time"

	"github.com/mtzanidakis/hive/internal/policy"
	"github.com/mtzanidakis/hive/internal/swarmstate"
)

func TestAggregateResourcesWithAllocations(t *testing.T) {
	r := swarmstate.Resources{
		Allocated: []swarmstate.Allocation{
			{ID: "a1", Limits: swarmstate.Budget{Credits: 100, Tokens: 999, Time: 60000}},
			{ID: "a2", Limits: swarmstate.Budget{Credits: 50, Tokens: 1, Time: 30000}},
		},
		Consumed:  swarmstate.Budget{Credits: 10, Tokens: 200, Time: 1000},
		Remaining: swarmstate.Budget{Credits: 5, Tokens: 300, Time: 2000},
	}
	got := AggregateResources(r).Allocated
	if got.Credits != 150 || got.Time != 90000 {
		t.Errorf("expected summed limits, got %+v", got)
	}
	if got.Tokens != 500 {
		t.Errorf("expected tokens from consumed+remaining, got %d", got.Tokens)
	}
}

func TestAggregateResourcesWithoutAllocations(t *testing.T) {
	r := swarmstate.Resources{
		Consumed:  swarmstate.Budget{Credits: 10, Tokens: 200, Time: 1000},
		Remaining: swarmstate.Budget{Credits: 5, Tokens: 300, Time: 2000},
	}
	got := AggregateResources(r).Allocated
	want := swarmstate.Budget{Credits: 15, Tokens: 500, Time: 3000}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestBuildTriggerContextDefaults(t *testing.T) {
	s := newState()
	before := time.Now()
	tc := BuildTriggerContext(s, nil, BotView{ID: "bot-a"})
	if tc.Event.Type != "none" || tc.Event.Data == nil || tc.Event.Timestamp.Before(before) {
		t.Errorf("expected synthetic none event, got %+v", tc.Event)
	}
	if tc.Bot.Performance.TasksFailed != 0 || tc.Bot.Performance.ResourceEfficiency != 0 {
		t.Errorf("expected zeroed performance, got %+v", tc.Bot.Performance)
	}
	if len(tc.Blackboard) != 2 {
		t.Errorf("expected full blackboard for blanket grant, got %v", tc.Blackboard)
	}
	if tc.Swarm.ID != "swarm-1" || len(tc.Swarm.Agents) != 2 {
		t.Errorf("unexpected swarm view %+v", tc.Swarm)
	}
}

func TestBuildTriggerContextNoGrantsEmptyBlackboard(t *testing.T) {
	s := newState()
	tc := BuildTriggerContext(s, &Event{Type: "message"}, BotView{ID: "bot-doc"})
	if len(tc.Blackboard) != 0 {
		t.Errorf("expected empty blackboard, got %v", tc.Blackboard)
	}
	if tc.Blackboard == nil {
		t.Error("expected an empty map, not nil")
	}
	if tc.Event.Type != "message" || tc.Event.Data == nil {
		t.Errorf("expected supplied event with data map, got %+v", tc.Event)
	}
}

func TestBuildTriggerContextScopedBlackboardGrant(t *testing.T) {
	s := newState()
	bot := BotView{ID: "ghost", Resources: []policy.ResourceGrant{
		{Type: policy.ResourceBlackboard, Scope: "notes", Permissions: []string{"read"}},
		{Type: policy.ResourceBlackboard, Scope: "api*", Permissions: []string{"read"}},
	}}
	tc := BuildTriggerContext(s, nil, bot)
	if len(tc.Blackboard) != 1 || tc.Blackboard["notes"] != "hello" {
		t.Errorf("expected exact scope match only, got %v", tc.Blackboard)
	}
}
