package role_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/councild/councild/internal/domain"
	"github.com/councild/councild/internal/domain/role"
)

type mapPrompts map[string]string

func (m mapPrompts) ResolvePrompt(ref string) (string, error) {
	text, ok := m[ref]
	if !ok {
		return "", fmt.Errorf("no such prompt %q", ref)
	}
	return text, nil
}

func boolPtr(b bool) *bool { return &b }

func TestResolveDefaults(t *testing.T) {
	prompts := mapPrompts{"architect.txt": "review structure"}

	roles, err := role.Resolve([]role.Spec{
		{ID: "architect", MustSpeak: true, Prompt: "architect.txt"},
	}, prompts)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	r := roles[0]
	if !r.Enabled {
		t.Fatal("expected enabled by default")
	}
	if !r.CanVote {
		t.Fatal("expected can_vote to default to must_speak")
	}
	if r.Instruction != "review structure" {
		t.Fatalf("instruction not loaded: %q", r.Instruction)
	}
}

func TestResolveCanVoteOverride(t *testing.T) {
	prompts := mapPrompts{"clerk.txt": "summarize"}

	roles, err := role.Resolve([]role.Spec{
		{ID: "clerk", CanVote: boolPtr(false), Prompt: "clerk.txt"},
	}, prompts)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if roles[0].CanVote {
		t.Fatal("explicit can_vote=false ignored")
	}
}

func TestResolveValidation(t *testing.T) {
	prompts := mapPrompts{"a.txt": "x"}

	tests := []struct {
		name  string
		specs []role.Spec
	}{
		{"empty id", []role.Spec{{ID: "", Prompt: "a.txt"}}},
		{"duplicate id", []role.Spec{
			{ID: "a", Prompt: "a.txt"},
			{ID: "a", Prompt: "a.txt"},
		}},
		{"voting but disabled", []role.Spec{
			{ID: "a", Enabled: boolPtr(false), CanVote: boolPtr(true), Prompt: "a.txt"},
		}},
		{"enabled without prompt", []role.Spec{{ID: "a"}}},
		{"enabled with unresolvable prompt", []role.Spec{{ID: "a", Prompt: "missing.txt"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := role.Resolve(tt.specs, prompts)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestResolveDisabledRoleSkipsPrompt(t *testing.T) {
	// A disabled role need not have a resolvable prompt.
	roles, err := role.Resolve([]role.Spec{
		{ID: "dormant", Enabled: boolPtr(false), Prompt: "missing.txt"},
	}, mapPrompts{})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if roles[0].Enabled {
		t.Fatal("expected disabled")
	}
}

func TestEligibleForRound(t *testing.T) {
	roles := []role.Role{
		{ID: "architect", Enabled: true, MustSpeak: true, CanVote: true},
		{ID: "observer", Enabled: true, CanVote: true},
		{ID: "clerk", Enabled: true},
		{ID: "dormant", MustSpeak: true},
	}

	e := role.EligibleForRound(roles)

	if len(e.Speakers) != 2 {
		t.Fatalf("expected 2 speakers, got %d", len(e.Speakers))
	}
	if e.Speakers[0].ID != "architect" || e.Speakers[1].ID != "observer" {
		t.Fatalf("speaker order not preserved: %v", e.Speakers)
	}
	if len(e.MustSpeak) != 1 || e.MustSpeak[0].ID != "architect" {
		t.Fatalf("unexpected must-speak set: %v", e.MustSpeak)
	}
	if len(e.Voting) != 2 {
		t.Fatalf("expected 2 voters, got %d", len(e.Voting))
	}
}

func TestResolveKeepsExplicitZeroTemperature(t *testing.T) {
	prompts := mapPrompts{"a.txt": "x", "b.txt": "y"}
	zero := 0.0

	roles, err := role.Resolve([]role.Spec{
		{ID: "a", MustSpeak: true, Prompt: "a.txt", Temperature: &zero},
		{ID: "b", MustSpeak: true, Prompt: "b.txt"},
	}, prompts)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if roles[0].Temperature == nil || *roles[0].Temperature != 0 {
		t.Fatalf("expected explicit temperature 0, got %v", roles[0].Temperature)
	}
	if roles[1].Temperature != nil {
		t.Fatalf("expected unset temperature, got %v", *roles[1].Temperature)
	}
}
