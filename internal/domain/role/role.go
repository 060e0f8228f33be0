// Package role defines participant roles and the registry that resolves the
// active role set from configuration.
package role

import (
	"fmt"

	"github.com/councild/councild/internal/domain"
)

// Spec is one role's raw configuration entry.
// CanVote is a pointer so that an unspecified value defaults to MustSpeak.
type Spec struct {
	ID          string   `yaml:"id" json:"id"`
	Enabled     *bool    `yaml:"enabled" json:"enabled,omitempty"`
	MustSpeak   bool     `yaml:"must_speak" json:"must_speak"`
	CanVote     *bool    `yaml:"can_vote" json:"can_vote,omitempty"`
	Prompt      string   `yaml:"prompt" json:"prompt"`
	Model       string   `yaml:"model" json:"model,omitempty"`
	Temperature *float64 `yaml:"temperature" json:"temperature,omitempty"`
}

// Role is a resolved participant with its instruction text loaded.
type Role struct {
	ID          string  `json:"id"`
	Enabled     bool    `json:"enabled"`
	MustSpeak   bool    `json:"must_speak"`
	CanVote     bool    `json:"can_vote"`
	PromptRef   string   `json:"prompt_ref"`
	Instruction string   `json:"-"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// PromptSource resolves a prompt reference to its instruction text.
type PromptSource interface {
	ResolvePrompt(ref string) (string, error)
}

// Resolve validates the specs and returns the resolved role set in
// configuration order. The result is snapshotted into a deliberation at
// creation time; the role set never changes mid-run.
func Resolve(specs []Spec, prompts PromptSource) ([]Role, error) {
	seen := make(map[string]bool, len(specs))
	roles := make([]Role, 0, len(specs))

	for _, sp := range specs {
		if sp.ID == "" {
			return nil, fmt.Errorf("%w: role with empty id", domain.ErrConfiguration)
		}
		if seen[sp.ID] {
			return nil, fmt.Errorf("%w: duplicate role id %q", domain.ErrConfiguration, sp.ID)
		}
		seen[sp.ID] = true

		enabled := true
		if sp.Enabled != nil {
			enabled = *sp.Enabled
		}
		canVote := sp.MustSpeak
		if sp.CanVote != nil {
			canVote = *sp.CanVote
		}

		if canVote && !enabled {
			return nil, fmt.Errorf("%w: role %q has can_vote=true but is disabled", domain.ErrConfiguration, sp.ID)
		}

		r := Role{
			ID:          sp.ID,
			Enabled:     enabled,
			MustSpeak:   sp.MustSpeak,
			CanVote:     canVote,
			PromptRef:   sp.Prompt,
			Model:       sp.Model,
			Temperature: sp.Temperature,
		}

		if enabled {
			if sp.Prompt == "" {
				return nil, fmt.Errorf("%w: role %q has no prompt reference", domain.ErrConfiguration, sp.ID)
			}
			instruction, err := prompts.ResolvePrompt(sp.Prompt)
			if err != nil {
				return nil, fmt.Errorf("%w: role %q prompt %q: %v", domain.ErrConfiguration, sp.ID, sp.Prompt, err)
			}
			r.Instruction = instruction
		}

		roles = append(roles, r)
	}

	return roles, nil
}

// Eligible holds the per-round participant subsets. Speakers are the roles
// the turn executor obtains an opinion from: enabled roles that either must
// speak or hold a vote. Enabled roles with neither (the clerk pattern)
// participate only through round summaries.
type Eligible struct {
	Speakers  []Role
	MustSpeak []Role
	Voting    []Role
}

// EligibleForRound filters the enabled roles into speaking, must-speak and
// voting subsets. Pure; the eligible set does not depend on the round number.
func EligibleForRound(roles []Role) Eligible {
	var e Eligible
	for _, r := range roles {
		if !r.Enabled {
			continue
		}
		if r.MustSpeak || r.CanVote {
			e.Speakers = append(e.Speakers, r)
		}
		if r.MustSpeak {
			e.MustSpeak = append(e.MustSpeak, r)
		}
		if r.CanVote {
			e.Voting = append(e.Voting, r)
		}
	}
	return e
}
