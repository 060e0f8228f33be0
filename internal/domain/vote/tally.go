// Package vote defines stances, per-round vote tallies and the threshold
// evaluation that decides between deadlock and consensus.
package vote

// Stance is a reviewer's position on the proposal.
type Stance string

const (
	StanceApprove Stance = "approve"
	StanceOppose  Stance = "oppose"
	StanceAbstain Stance = "abstain"
)

// ValidStance reports whether s is a known stance.
func ValidStance(s string) bool {
	switch Stance(s) {
	case StanceApprove, StanceOppose, StanceAbstain:
		return true
	}
	return false
}

// Tally aggregates the votes of a single round.
type Tally struct {
	ApproveCount    int     `json:"approve_count"`
	OpposeCount     int     `json:"oppose_count"`
	AbstainCount    int     `json:"abstain_count"`
	TotalVoters     int     `json:"total_voters"`
	OppositionRatio float64 `json:"opposition_ratio"`
	ApprovalRatio   float64 `json:"approval_ratio"`
}

// Count builds a Tally from the given stances. A round with no voters yields
// zero ratios; that is a defined edge case, not a fault.
func Count(stances []Stance) Tally {
	t := Tally{TotalVoters: len(stances)}
	for _, s := range stances {
		switch s {
		case StanceApprove:
			t.ApproveCount++
		case StanceOppose:
			t.OpposeCount++
		default:
			t.AbstainCount++
		}
	}
	if t.TotalVoters > 0 {
		t.OppositionRatio = float64(t.OpposeCount) / float64(t.TotalVoters)
		t.ApprovalRatio = float64(t.ApproveCount) / float64(t.TotalVoters)
	}
	return t
}

// Thresholds holds the configured routing thresholds.
type Thresholds struct {
	DeadlockOppositionRatio float64 `yaml:"deadlock_opposition_ratio"`
	ConsensusQuorum         float64 `yaml:"consensus_quorum"`
}

// Verdict is the result of evaluating a tally against thresholds.
type Verdict struct {
	IsDeadlock  bool `json:"is_deadlock"`
	IsConsensus bool `json:"is_consensus"`
}

// Evaluate checks the tally against the configured thresholds. Both
// conditions are reported; callers must treat deadlock as taking precedence
// when both hold, since unresolved opposition is the more urgent signal.
func Evaluate(t Tally, th Thresholds) Verdict {
	return Verdict{
		IsDeadlock:  t.OppositionRatio > th.DeadlockOppositionRatio,
		IsConsensus: t.ApprovalRatio >= th.ConsensusQuorum,
	}
}
