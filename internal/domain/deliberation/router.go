package deliberation

import "github.com/councild/councild/internal/domain/vote"

// DecisionKind tags the routing decision variant.
type DecisionKind string

const (
	DecisionContinue        DecisionKind = "continue"
	DecisionEscalateToHuman DecisionKind = "escalate_to_human"
	DecisionConclude        DecisionKind = "conclude"
)

// Decision is the router's tagged verdict for what happens after a round.
// Status is set only when Kind is DecisionConclude.
type Decision struct {
	Kind   DecisionKind  `json:"kind"`
	Status OutcomeStatus `json:"status,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// Route applies the transition rules to the state reached after a completed
// round, in fixed priority order:
//
//  1. round budget exhausted concludes with max_rounds_exhausted
//  2. deadlock escalates to a human decision
//  3. consensus concludes with consensus
//  4. otherwise the deliberation advances to another round
//
// Deadlock is checked before consensus: when a pathological threshold
// configuration satisfies both, unresolved opposition wins and the run is
// escalated rather than concluded on a bare quorum.
func Route(s *State, verdict vote.Verdict, maxRounds int) Decision {
	if s.CurrentRound >= maxRounds {
		return Decision{
			Kind:   DecisionConclude,
			Status: OutcomeMaxRoundsExhausted,
			Reason: "round budget exhausted",
		}
	}
	if verdict.IsDeadlock {
		return Decision{
			Kind:   DecisionEscalateToHuman,
			Reason: "opposition ratio above deadlock threshold",
		}
	}
	if verdict.IsConsensus {
		return Decision{
			Kind:   DecisionConclude,
			Status: OutcomeConsensus,
			Reason: "approval ratio met consensus quorum",
		}
	}
	return Decision{Kind: DecisionContinue}
}
