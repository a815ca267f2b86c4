package swarm

import (
	"github.com/mtzanidakis/hive/internal/swarmstate"
)

// Participant is an agent's availability as seen by the orchestrator.
type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role,omitempty"`
	IsProcessing bool   `json:"isProcessing"`
	IsWaiting    bool   `json:"isWaiting"`
	HasResponded bool   `json:"hasResponded"`
	Unavailable  bool   `json:"unavailable"`
}

// ConversationContext is the projection of a swarm state handed to the
// orchestrator for one turn.
type ConversationContext struct {
	SwarmID        string               `json:"swarmId"`
	ConversationID string               `json:"conversationId"`
	Version        int64                `json:"version"`
	Goal           string               `json:"goal"`
	LeaderBotID    string               `json:"leaderBotId,omitempty"`
	Participants   []Participant        `json:"participants"`
	Subtasks       []swarmstate.Subtask `json:"subtasks,omitempty"`
	Remaining      swarmstate.Budget    `json:"remaining"`
}

// ProjectConversation maps a swarm state to a conversation context.
func ProjectConversation(s *swarmstate.SwarmState) ConversationContext {
	cc := ConversationContext{
		SwarmID:        s.SwarmID,
		ConversationID: s.ConversationID,
		Version:        s.Version,
		Goal:           s.ChatConfig.Goal,
		LeaderBotID:    s.LeaderBotID(),
		Subtasks:       s.ChatConfig.Subtasks,
		Remaining:      s.Resources.Remaining,
		Participants:   make([]Participant, 0, len(s.Execution.Agents)),
	}
	for _, a := range s.Execution.Agents {
		cc.Participants = append(cc.Participants, Participant{
			ID:           a.ID,
			Name:         a.Name,
			Role:         a.Config.AgentSpec.Role,
			IsProcessing: a.Status == swarmstate.BotProcessing,
			IsWaiting:    a.Status == swarmstate.BotWaiting,
			HasResponded: a.Status == swarmstate.BotCompleted,
			Unavailable:  a.Status == swarmstate.BotError,
		})
	}
	return cc
}
