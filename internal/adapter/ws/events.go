package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventOpinion       = "deliberation.opinion"
	EventOpinionFailed = "deliberation.opinion_failed"
	EventRoundStatus   = "deliberation.round"
	EventEscalated     = "deliberation.escalated"
	EventHumanDecision = "deliberation.human_decision"
	EventConcluded     = "deliberation.concluded"
)

// OpinionEvent is broadcast when a role submits an opinion.
type OpinionEvent struct {
	DeliberationID string  `json:"deliberation_id"`
	Round          int     `json:"round"`
	RoleID         string  `json:"role_id"`
	Stance         string  `json:"stance"`
	Confidence     float64 `json:"confidence"`
}

// OpinionFailedEvent is broadcast when a role's opinion call fails for the round.
type OpinionFailedEvent struct {
	DeliberationID string `json:"deliberation_id"`
	Round          int    `json:"round"`
	RoleID         string `json:"role_id"`
	Error          string `json:"error"`
}

// RoundStatusEvent is broadcast when a round starts or advances.
type RoundStatusEvent struct {
	DeliberationID string `json:"deliberation_id"`
	Round          int    `json:"round"`
	Status         string `json:"status"`
}

// EscalatedEvent is broadcast when a deliberation is escalated to a human.
type EscalatedEvent struct {
	DeliberationID  string  `json:"deliberation_id"`
	Round           int     `json:"round"`
	Reason          string  `json:"reason"`
	OppositionRatio float64 `json:"opposition_ratio"`
}

// HumanDecisionEvent is broadcast when a human decision is received.
type HumanDecisionEvent struct {
	DeliberationID string `json:"deliberation_id"`
	Decision       string `json:"decision"`
}

// ConcludedEvent is broadcast when a deliberation reaches its terminal outcome.
type ConcludedEvent struct {
	DeliberationID string   `json:"deliberation_id"`
	Status         string   `json:"status"`
	FinalRound     int      `json:"final_round"`
	ConsensusCount int      `json:"consensus_count"`
	OpenIssues     []string `json:"open_issues,omitempty"`
}

// BroadcastEvent marshals a typed event and routes it to the observers of
// its deliberation. Every event payload above carries a deliberation_id;
// the envelope lifts it so the hub can filter without knowing the payload
// types.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	var ref struct {
		DeliberationID string `json:"deliberation_id"`
	}
	_ = json.Unmarshal(data, &ref)

	h.Broadcast(ctx, Message{
		Type:           eventType,
		DeliberationID: ref.DeliberationID,
		Payload:        json.RawMessage(data),
	})
}
