package deliberation_test

import (
	"testing"

	"github.com/councild/councild/internal/domain/deliberation"
	"github.com/councild/councild/internal/domain/event"
	"github.com/councild/councild/internal/domain/vote"
)

func TestRouteMaxRoundsWinsOverEverything(t *testing.T) {
	st := stateAtRound(10)

	// Even a unanimous consensus verdict cannot outrun the budget.
	dec := deliberation.Route(st, vote.Verdict{IsConsensus: true}, 10)
	if dec.Kind != deliberation.DecisionConclude {
		t.Fatalf("expected conclude, got %s", dec.Kind)
	}
	if dec.Status != deliberation.OutcomeMaxRoundsExhausted {
		t.Fatalf("expected max_rounds_exhausted, got %s", dec.Status)
	}
}

func TestRouteDeadlockPrecedesConsensus(t *testing.T) {
	st := deliberation.Project(nil)

	dec := deliberation.Route(st, vote.Verdict{IsDeadlock: true, IsConsensus: true}, 10)
	if dec.Kind != deliberation.DecisionEscalateToHuman {
		t.Fatalf("expected escalate when both conditions hold, got %s", dec.Kind)
	}
}

func TestRouteConsensus(t *testing.T) {
	st := deliberation.Project(nil)

	dec := deliberation.Route(st, vote.Verdict{IsConsensus: true}, 10)
	if dec.Kind != deliberation.DecisionConclude {
		t.Fatalf("expected conclude, got %s", dec.Kind)
	}
	if dec.Status != deliberation.OutcomeConsensus {
		t.Fatalf("expected consensus status, got %s", dec.Status)
	}
}

func TestRouteContinue(t *testing.T) {
	st := deliberation.Project(nil)

	dec := deliberation.Route(st, vote.Verdict{}, 10)
	if dec.Kind != deliberation.DecisionContinue {
		t.Fatalf("expected continue, got %s", dec.Kind)
	}
}

// stateAtRound projects a history of n advanced rounds.
func stateAtRound(n int) *deliberation.State {
	events := make([]event.Event, n)
	for i := range events {
		events[i] = event.Event{Seq: uint64(i), Round: i, Kind: event.KindRoundAdvanced}
	}
	return deliberation.Project(events)
}
