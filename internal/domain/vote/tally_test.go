package vote_test

import (
	"testing"

	"github.com/councild/councild/internal/domain/vote"
)

func TestCount(t *testing.T) {
	tally := vote.Count([]vote.Stance{
		vote.StanceApprove,
		vote.StanceApprove,
		vote.StanceOppose,
		vote.StanceAbstain,
	})

	if tally.TotalVoters != 4 {
		t.Fatalf("expected 4 voters, got %d", tally.TotalVoters)
	}
	if tally.ApproveCount != 2 || tally.OpposeCount != 1 || tally.AbstainCount != 1 {
		t.Fatalf("unexpected counts: %+v", tally)
	}
	if tally.OppositionRatio != 0.25 {
		t.Fatalf("expected opposition ratio 0.25, got %f", tally.OppositionRatio)
	}
	if tally.ApprovalRatio != 0.5 {
		t.Fatalf("expected approval ratio 0.5, got %f", tally.ApprovalRatio)
	}
}

func TestCountNoVoters(t *testing.T) {
	tally := vote.Count(nil)

	if tally.TotalVoters != 0 {
		t.Fatalf("expected 0 voters, got %d", tally.TotalVoters)
	}
	if tally.OppositionRatio != 0 || tally.ApprovalRatio != 0 {
		t.Fatalf("expected zero ratios, got %+v", tally)
	}

	// Zero ratios must trigger neither verdict under normal thresholds.
	v := vote.Evaluate(tally, vote.Thresholds{DeadlockOppositionRatio: 0.3, ConsensusQuorum: 0.8})
	if v.IsDeadlock || v.IsConsensus {
		t.Fatalf("expected no verdict for empty tally, got %+v", v)
	}
}

func TestEvaluate(t *testing.T) {
	th := vote.Thresholds{DeadlockOppositionRatio: 0.3, ConsensusQuorum: 0.8}

	tests := []struct {
		name      string
		stances   []vote.Stance
		deadlock  bool
		consensus bool
	}{
		{
			name:      "unanimous approval",
			stances:   []vote.Stance{vote.StanceApprove, vote.StanceApprove, vote.StanceApprove, vote.StanceApprove},
			consensus: true,
		},
		{
			name: "opposition exactly at threshold is not deadlock",
			// 3/10 opposed == 0.3, threshold is strict greater-than.
			stances: []vote.Stance{
				vote.StanceOppose, vote.StanceOppose, vote.StanceOppose,
				vote.StanceAbstain, vote.StanceAbstain, vote.StanceAbstain,
				vote.StanceAbstain, vote.StanceAbstain, vote.StanceAbstain, vote.StanceAbstain,
			},
		},
		{
			name:     "opposition above threshold is deadlock",
			stances:  []vote.Stance{vote.StanceOppose, vote.StanceApprove},
			deadlock: true,
		},
		{
			name: "approval exactly at quorum is consensus",
			// 4/5 approve == 0.8, quorum is inclusive.
			stances: []vote.Stance{
				vote.StanceApprove, vote.StanceApprove, vote.StanceApprove,
				vote.StanceApprove, vote.StanceAbstain,
			},
			consensus: true,
		},
		{
			name:    "abstentions dilute approval",
			stances: []vote.Stance{vote.StanceApprove, vote.StanceAbstain, vote.StanceAbstain},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := vote.Evaluate(vote.Count(tt.stances), th)
			if v.IsDeadlock != tt.deadlock {
				t.Errorf("IsDeadlock = %v, want %v", v.IsDeadlock, tt.deadlock)
			}
			if v.IsConsensus != tt.consensus {
				t.Errorf("IsConsensus = %v, want %v", v.IsConsensus, tt.consensus)
			}
		})
	}
}

func TestEvaluateBothConditions(t *testing.T) {
	// A pathological threshold pair can satisfy deadlock and consensus at
	// once; Evaluate reports both and leaves precedence to the router.
	th := vote.Thresholds{DeadlockOppositionRatio: 0.1, ConsensusQuorum: 0.5}
	stances := []vote.Stance{
		vote.StanceApprove, vote.StanceApprove, vote.StanceApprove, vote.StanceOppose,
	}

	v := vote.Evaluate(vote.Count(stances), th)
	if !v.IsDeadlock || !v.IsConsensus {
		t.Fatalf("expected both conditions, got %+v", v)
	}
}

func TestValidStance(t *testing.T) {
	for _, s := range []string{"approve", "oppose", "abstain"} {
		if !vote.ValidStance(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []string{"", "Approve", "yes", "veto"} {
		if vote.ValidStance(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}
