// Package swarmstate holds the shared-state data model of a swarm and the
// helpers that address it by dotted path.
package swarmstate

import (
	"errors"
	"time"

	"github.com/mtzanidakis/hive/internal/policy"
)

// ErrNotFound is returned by context managers when a swarm has no stored
// state.
var ErrNotFound = errors.New("swarm context not found")

// ExecutionStatus is the status recorded in the shared context.
type ExecutionStatus string

const (
	ExecutionStarting ExecutionStatus = "starting"
	ExecutionRunning  ExecutionStatus = "running"
	ExecutionIdle     ExecutionStatus = "idle"
	ExecutionPaused   ExecutionStatus = "paused"
	ExecutionStopped  ExecutionStatus = "stopped"
	ExecutionFailed   ExecutionStatus = "failed"
)

// BotStatus is a participant's conversational status.
type BotStatus string

const (
	BotProcessing BotStatus = "processing"
	BotWaiting    BotStatus = "waiting"
	BotCompleted  BotStatus = "completed"
	BotError      BotStatus = "error"
)

// SwarmState is the root aggregate for one swarm instance.
type SwarmState struct {
	SwarmID        string     `json:"swarmId"`
	Version        int64      `json:"version"`
	ConversationID string     `json:"conversationId,omitempty"`
	InitiatingUser string     `json:"initiatingUser,omitempty"`
	ChatConfig     ChatConfig `json:"chatConfig"`
	Execution      Execution  `json:"execution"`
	Resources      Resources  `json:"resources"`
	Policy         Policy     `json:"policy"`
}

type ChatConfig struct {
	Goal             string                              `json:"goal,omitempty"`
	Subtasks         []Subtask                           `json:"subtasks,omitempty"`
	Blackboard       []BlackboardItem                    `json:"blackboard,omitempty"`
	Records          []Record                            `json:"records,omitempty"`
	Stats            Stats                               `json:"stats"`
	Secrets          map[string]policy.SensitivityConfig `json:"secrets,omitempty"`
	SubtaskLeaders   map[string]string                   `json:"subtaskLeaders,omitempty"`
	Limits           Limits                              `json:"limits"`
	Scheduling       Scheduling                          `json:"scheduling"`
	PendingToolCalls []ToolCall                          `json:"pendingToolCalls,omitempty"`
}

// BlackboardItem is one entry of the shared blackboard. Ids are unique.
type BlackboardItem struct {
	ID        string    `json:"id"`
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

type Subtask struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
	AssigneeID  string   `json:"assignee_bot_id,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Priority    string   `json:"priority,omitempty"`
}

// Done reports whether the subtask reached a completed status.
func (s Subtask) Done() bool {
	return s.Status == "done" || s.Status == "completed"
}

type Record struct {
	ID          string    `json:"id"`
	RoutineID   string    `json:"routine_id,omitempty"`
	RoutineName string    `json:"routine_name,omitempty"`
	CallerBotID string    `json:"caller_bot_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Stats struct {
	TotalToolCalls int        `json:"totalToolCalls"`
	TotalCredits   int64      `json:"totalCredits"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	LastCycleEnd   *time.Time `json:"lastProcessingCycleEndedAt,omitempty"`
}

type Limits struct {
	MaxCredits      int64 `json:"maxCredits,omitempty"`
	MaxDurationMs   int64 `json:"maxDurationMs,omitempty"`
	MaxToolCalls    int   `json:"maxToolCalls,omitempty"`
	MaxConcurrency  int   `json:"maxConcurrency,omitempty"`
	MaxRecordsStore int   `json:"maxRecords,omitempty"`
}

type Scheduling struct {
	Strategy    string `json:"strategy,omitempty"`
	LeaderBotID string `json:"leaderBotId,omitempty"`
}

type ToolCall struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	BotID       string         `json:"botId,omitempty"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	RequestedAt time.Time      `json:"requestedAt"`
}

type Execution struct {
	Status ExecutionStatus  `json:"status,omitempty"`
	Agents []BotParticipant `json:"agents,omitempty"`
}

// BotParticipant is an agent registered in the execution phase of a swarm.
type BotParticipant struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Status      BotStatus   `json:"status,omitempty"`
	Config      BotConfig   `json:"config"`
	Performance Performance `json:"performance"`
}

type BotConfig struct {
	AgentSpec AgentSpec `json:"agentSpec"`
}

type AgentSpec struct {
	Role      string                 `json:"role,omitempty"`
	Resources []policy.ResourceGrant `json:"resources,omitempty"`
}

type Performance struct {
	TasksCompleted        int     `json:"tasksCompleted"`
	TasksFailed           int     `json:"tasksFailed"`
	AverageCompletionTime float64 `json:"averageCompletionTime"`
	ResourceEfficiency    float64 `json:"resourceEfficiency"`
}

// Budget is an amount of credits, tokens and time (milliseconds).
type Budget struct {
	Credits int64 `json:"credits"`
	Tokens  int64 `json:"tokens"`
	Time    int64 `json:"time"`
}

// Add returns the component-wise sum of b and o.
func (b Budget) Add(o Budget) Budget {
	return Budget{Credits: b.Credits + o.Credits, Tokens: b.Tokens + o.Tokens, Time: b.Time + o.Time}
}

// Sub returns the component-wise difference of b and o.
func (b Budget) Sub(o Budget) Budget {
	return Budget{Credits: b.Credits - o.Credits, Tokens: b.Tokens - o.Tokens, Time: b.Time - o.Time}
}

// IsZero reports whether every component is zero.
func (b Budget) IsZero() bool {
	return b == Budget{}
}

type Allocation struct {
	ID          string    `json:"id"`
	ConsumerID  string    `json:"consumerId,omitempty"`
	Limits      Budget    `json:"limits"`
	AllocatedAt time.Time `json:"allocatedAt"`
}

type Resources struct {
	Allocated []Allocation `json:"allocated,omitempty"`
	Consumed  Budget       `json:"consumed"`
	Remaining Budget       `json:"remaining"`
}

type Policy struct {
	Visibility     policy.Visibility `json:"visibility,omitempty"`
	ACL            []string          `json:"acl,omitempty"`
	Security       map[string]any    `json:"security,omitempty"`
	Resource       map[string]any    `json:"resource,omitempty"`
	Organizational map[string]any    `json:"organizational,omitempty"`
}

// Agent returns the execution-phase participant with the given id.
func (s *SwarmState) Agent(id string) (BotParticipant, bool) {
	if s == nil || id == "" {
		return BotParticipant{}, false
	}
	for _, a := range s.Execution.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return BotParticipant{}, false
}

// LeaderBotID returns the configured leader, falling back to the first agent.
func (s *SwarmState) LeaderBotID() string {
	if s.ChatConfig.Scheduling.LeaderBotID != "" {
		return s.ChatConfig.Scheduling.LeaderBotID
	}
	if len(s.Execution.Agents) > 0 {
		return s.Execution.Agents[0].ID
	}
	return ""
}
