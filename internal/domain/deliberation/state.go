// Package deliberation holds the derived deliberation state, the pure
// projection that computes it from the event log, and the routing rules that
// pick the next transition after each round.
package deliberation

import (
	"encoding/json"
	"slices"

	"github.com/councild/councild/internal/domain/event"
	"github.com/councild/councild/internal/domain/vote"
)

// Status is the lifecycle state a deliberation derives from its history.
type Status string

const (
	StatusDeliberating  Status = "deliberating"
	StatusAwaitingHuman Status = "awaiting_human_decision"
	StatusConcluded     Status = "concluded"
)

// Opinion is a role's latest structured output.
type Opinion struct {
	Stance     vote.Stance `json:"stance"`
	Rationale  string      `json:"rationale"`
	Confidence float64     `json:"confidence"`
	Round      int         `json:"round"`
}

type voteRecord struct {
	round  int
	roleID string
	stance vote.Stance
}

// State is derived from the event log and never stored independently.
// Recomputing it from the full log at any point yields the same value.
type State struct {
	CurrentRound    int                `json:"current_round"`
	Opinions        map[string]Opinion `json:"opinions"`
	ConsensusPoints []string           `json:"consensus_points"`
	OpenIssues      []string           `json:"open_issues"`
	Status          Status             `json:"status"`
	Outcome         *Outcome           `json:"outcome,omitempty"`

	votes []voteRecord
}

// Project folds the event sequence into a State. The fold is pure and
// deterministic: it depends only on the events and their order, so replaying
// the full log from sequence 0 always reproduces the same state.
func Project(events []event.Event) *State {
	st := &State{
		Opinions: make(map[string]Opinion),
		Status:   StatusDeliberating,
	}
	for i := range events {
		st.fold(&events[i])
	}
	return st
}

func (s *State) fold(ev *event.Event) {
	// A terminal status freezes folding significance for anything after it.
	if s.Status == StatusConcluded {
		return
	}

	switch ev.Kind {
	case event.KindOpinionSubmitted:
		var p event.OpinionPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		s.Opinions[ev.RoleID] = Opinion{
			Stance:     p.Stance,
			Rationale:  p.Rationale,
			Confidence: p.Confidence,
			Round:      ev.Round,
		}

	case event.KindVoteCast:
		var p event.VotePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		// One vote per role per round; the latest recorded stance wins.
		for i := range s.votes {
			if s.votes[i].round == ev.Round && s.votes[i].roleID == ev.RoleID {
				s.votes[i].stance = p.Stance
				return
			}
		}
		s.votes = append(s.votes, voteRecord{round: ev.Round, roleID: ev.RoleID, stance: p.Stance})

	case event.KindRoundAdvanced:
		s.CurrentRound++
		var p event.RoundAdvancedPayload
		if len(ev.Payload) > 0 {
			_ = json.Unmarshal(ev.Payload, &p)
		}
		s.mergeConsensusPoints(p.ConsensusPoints)
		if p.OpenIssues != nil {
			s.OpenIssues = slices.Clone(p.OpenIssues)
		}
		s.Status = StatusDeliberating

	case event.KindConsensusReached:
		s.OpenIssues = nil

	case event.KindDeadlockDetected, event.KindHumanDecisionRequested:
		s.Status = StatusAwaitingHuman

	case event.KindHumanDecisionReceived:
		var p event.HumanDecisionPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		s.mergeConsensusPoints(p.ConsensusPoints)
		if p.OpenIssues != nil {
			s.OpenIssues = slices.Clone(p.OpenIssues)
		}
		s.Status = StatusDeliberating

	case event.KindConcluded:
		var p event.ConcludedPayload
		_ = json.Unmarshal(ev.Payload, &p)
		s.Status = StatusConcluded
		s.Outcome = &Outcome{
			Status:          OutcomeStatus(p.Status),
			ConsensusPoints: slices.Clone(s.ConsensusPoints),
			OpenIssues:      slices.Clone(s.OpenIssues),
			FinalRound:      s.CurrentRound,
		}
	}
}

func (s *State) mergeConsensusPoints(points []string) {
	for _, p := range points {
		if p == "" || slices.Contains(s.ConsensusPoints, p) {
			continue
		}
		s.ConsensusPoints = append(s.ConsensusPoints, p)
	}
}

// VotesForRound returns the stances cast in the given round, in the order
// the votes were recorded.
func (s *State) VotesForRound(round int) []vote.Stance {
	var out []vote.Stance
	for _, v := range s.votes {
		if v.round == round {
			out = append(out, v.stance)
		}
	}
	return out
}

// TallyRound aggregates the given round's votes into a tally. Prior rounds'
// votes are retained in the history for audit but never counted here.
func TallyRound(s *State, round int) vote.Tally {
	return vote.Count(s.VotesForRound(round))
}
