// Package opinion defines the port for the external opinion provider that
// produces one structured opinion per role per round.
package opinion

import (
	"context"

	"github.com/councild/councild/internal/domain/event"
	"github.com/councild/councild/internal/domain/role"
	"github.com/councild/councild/internal/domain/vote"
)

// Request carries everything a provider needs to produce one opinion.
type Request struct {
	Role     role.Role
	Proposal string
	History  []event.Event
	Round    int
}

// Result is a role's structured output for the current round.
type Result struct {
	Stance     vote.Stance `json:"stance"`
	Rationale  string      `json:"rationale"`
	Confidence float64     `json:"confidence"`
}

// Provider obtains a model-generated opinion for a role. Implementations
// must be safe for concurrent calls on distinct roles.
type Provider interface {
	GetOpinion(ctx context.Context, req Request) (*Result, error)
}
