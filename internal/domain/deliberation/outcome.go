package deliberation

// OutcomeStatus is the terminal status of a concluded deliberation.
type OutcomeStatus string

const (
	OutcomeConsensus          OutcomeStatus = "consensus"
	OutcomeDeadlockEscalated  OutcomeStatus = "deadlock_escalated"
	OutcomeHumanOverridden    OutcomeStatus = "human_overridden"
	OutcomeTimeout            OutcomeStatus = "timeout"
	OutcomeMaxRoundsExhausted OutcomeStatus = "max_rounds_exhausted"
	OutcomeCancelled          OutcomeStatus = "cancelled"
)

// Outcome is the final, immutable result of a concluded deliberation. It is
// handed to the outcome sink; this core neither formats nor delivers reports.
type Outcome struct {
	Status          OutcomeStatus `json:"status"`
	ConsensusPoints []string      `json:"consensus_points,omitempty"`
	OpenIssues      []string      `json:"open_issues,omitempty"`
	FinalRound      int           `json:"final_round"`
}
