// Package humandecision defines the port for the asynchronous human
// decision source consulted when a deliberation deadlocks.
package humandecision

import (
	"context"
	"time"
)

// Decision is the action a human decision-maker takes on an escalated
// deliberation.
type Decision string

const (
	// DecisionContinue re-enters the round loop; the resumed round still
	// counts toward the round budget.
	DecisionContinue Decision = "continue"

	// DecisionResolve concludes the deliberation with the human-supplied
	// consensus and open-issue content.
	DecisionResolve Decision = "resolve"

	// DecisionTerminate cancels the deliberation outright.
	DecisionTerminate Decision = "terminate"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionContinue, DecisionResolve, DecisionTerminate:
		return true
	}
	return false
}

// Response is the payload delivered by the human decision source.
type Response struct {
	Decision        Decision `json:"decision"`
	ConsensusPoints []string `json:"consensus_points,omitempty"`
	OpenIssues      []string `json:"open_issues,omitempty"`
	Note            string   `json:"note,omitempty"`
}

// Source blocks one deliberation pending an external decision. Await returns
// domain.ErrHumanDecisionTimeout when no decision arrives within the window;
// waiting must not stall other deliberations.
type Source interface {
	Await(ctx context.Context, deliberationID string, timeout time.Duration) (*Response, error)
}
