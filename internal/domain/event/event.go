// Package event defines the immutable deliberation event and the append-only
// log that is the single source of truth for a deliberation run.
package event

import (
	"encoding/json"
	"time"

	"github.com/councild/councild/internal/domain/vote"
)

// Kind identifies the kind of deliberation event.
type Kind string

const (
	KindOpinionSubmitted       Kind = "deliberation.opinion_submitted"
	KindVoteCast               Kind = "deliberation.vote_cast"
	KindRoundAdvanced          Kind = "deliberation.round_advanced"
	KindConsensusReached       Kind = "deliberation.consensus_reached"
	KindDeadlockDetected       Kind = "deliberation.deadlock_detected"
	KindHumanDecisionRequested Kind = "deliberation.human_decision_requested"
	KindHumanDecisionReceived  Kind = "deliberation.human_decision_received"
	KindConcluded              Kind = "deliberation.concluded"
)

// Terminal reports whether the kind closes the deliberation. Once a terminal
// event is appended, the log rejects all further appends.
func (k Kind) Terminal() bool {
	return k == KindConcluded
}

// Event is a single immutable record in a deliberation's history.
// Seq is assigned by the log on append and is strictly increasing.
type Event struct {
	Seq       uint64          `json:"seq"`
	Round     int             `json:"round"`
	RoleID    string          `json:"role_id,omitempty"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// OpinionPayload is the payload of an OpinionSubmitted event.
type OpinionPayload struct {
	Stance     vote.Stance `json:"stance"`
	Rationale  string      `json:"rationale"`
	Confidence float64     `json:"confidence"`
}

// VotePayload is the payload of a VoteCast event.
type VotePayload struct {
	Stance vote.Stance `json:"stance"`
}

// RoundAdvancedPayload carries the round summary folded into derived state
// when a round ends without a terminal decision.
type RoundAdvancedPayload struct {
	ConsensusPoints []string `json:"consensus_points,omitempty"`
	OpenIssues      []string `json:"open_issues,omitempty"`
}

// EscalationPayload is the payload of DeadlockDetected and
// HumanDecisionRequested events.
type EscalationPayload struct {
	Reason string     `json:"reason"`
	Tally  vote.Tally `json:"tally"`
}

// HumanDecisionPayload is the payload of a HumanDecisionReceived event.
type HumanDecisionPayload struct {
	Decision        string   `json:"decision"`
	ConsensusPoints []string `json:"consensus_points,omitempty"`
	OpenIssues      []string `json:"open_issues,omitempty"`
	Note            string   `json:"note,omitempty"`
}

// ConcludedPayload is the payload of the terminal Concluded event.
type ConcludedPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Marshal encodes a payload struct for embedding in an Event. A payload that
// cannot be marshaled is a programming error; Marshal returns nil RawMessage
// in that case and callers treat it as an empty payload.
func Marshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
