// Package summary defines the port for the round summarizer, a non-voting
// collaborator that distills each round into consensus points and remaining
// open issues.
package summary

import (
	"context"

	"github.com/councild/councild/internal/domain/event"
)

// RoundDigest is the summarizer's structured output for one round.
type RoundDigest struct {
	ConsensusPoints []string `json:"consensus_points"`
	OpenIssues      []string `json:"open_issues"`
}

// Summarizer condenses a completed round's events. A failed summary is not
// fatal; the round advances without updating the derived point lists.
type Summarizer interface {
	SummarizeRound(ctx context.Context, proposal string, history []event.Event, round int) (*RoundDigest, error)
}
