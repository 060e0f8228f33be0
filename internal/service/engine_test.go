package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/councild/councild/internal/config"
	"github.com/councild/councild/internal/domain/deliberation"
	"github.com/councild/councild/internal/domain/event"
	"github.com/councild/councild/internal/domain/vote"
	"github.com/councild/councild/internal/port/humandecision"
	"github.com/councild/councild/internal/port/opinion"
	"github.com/councild/councild/internal/port/summary"
)

var resolveResponse = humandecision.Response{
	Decision:        humandecision.DecisionResolve,
	ConsensusPoints: []string{"split the difference"},
	Note:            "resolved by test",
}

var continueResponse = humandecision.Response{
	Decision: humandecision.DecisionContinue,
	Note:     "one more round",
}

// scriptedProvider returns per-role, per-round stances. Unscripted rounds
// fall back to the default stance.
type scriptedProvider struct {
	mu       sync.Mutex
	rounds   map[int]map[string]vote.Stance
	failing  map[string]bool
	fallback vote.Stance
	calls    map[string]int
	block    chan struct{} // when set, GetOpinion blocks until closed
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		rounds:   make(map[int]map[string]vote.Stance),
		failing:  make(map[string]bool),
		fallback: vote.StanceApprove,
		calls:    make(map[string]int),
	}
}

func (p *scriptedProvider) script(round int, roleID string, s vote.Stance) {
	if p.rounds[round] == nil {
		p.rounds[round] = make(map[string]vote.Stance)
	}
	p.rounds[round][roleID] = s
}

func (p *scriptedProvider) GetOpinion(ctx context.Context, req opinion.Request) (*opinion.Result, error) {
	p.mu.Lock()
	p.calls[req.Role.ID]++
	block := p.block
	failing := p.failing[req.Role.ID]
	stance, scripted := p.rounds[req.Round][req.Role.ID]
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return nil, fmt.Errorf("model unavailable")
	}
	if !scripted {
		stance = p.fallback
	}
	return &opinion.Result{Stance: stance, Rationale: "reviewed", Confidence: 0.9}, nil
}

type fakeSummarizer struct {
	digest summary.RoundDigest
	err    error
}

func (f *fakeSummarizer) SummarizeRound(context.Context, string, []event.Event, int) (*summary.RoundDigest, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := f.digest
	return &d, nil
}

type captureSink struct {
	mu       sync.Mutex
	outcomes map[string]deliberation.Outcome
}

func (c *captureSink) Publish(_ context.Context, id string, out deliberation.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]deliberation.Outcome)
	}
	c.outcomes[id] = out
	return nil
}

func testDeliberationConfig() config.Deliberation {
	return config.Deliberation{
		MaxRounds:           10,
		RoundTimeoutMinutes: 1,
		MaxParallel:         4,
		ProviderRetries:     0,
		Thresholds: vote.Thresholds{
			DeadlockOppositionRatio: 0.3,
			ConsensusQuorum:         0.8,
		},
	}
}

func TestDeliberateConsensusFirstRound(t *testing.T) {
	provider := newScriptedProvider()
	engine := NewEngine(provider, testDeliberationConfig())

	sink := &captureSink{}
	engine.SetOutcomeSink(sink)

	out, err := engine.Deliberate(context.Background(), &StartRequest{
		DeliberationID: "d1",
		Proposal:       "adopt the queue",
		Roles:          speakerBench("architect", "security", "cost_control", "innovator"),
	})
	if err != nil {
		t.Fatalf("deliberate failed: %v", err)
	}

	if out.Status != deliberation.OutcomeConsensus {
		t.Fatalf("expected consensus, got %s", out.Status)
	}
	if out.FinalRound != 0 {
		t.Fatalf("expected conclusion in round 0, got %d", out.FinalRound)
	}
	if got := sink.outcomes["d1"]; got.Status != deliberation.OutcomeConsensus {
		t.Fatalf("sink did not receive the outcome: %+v", got)
	}
}

func TestDeliberateAdvancesThenConcludes(t *testing.T) {
	provider := newScriptedProvider()
	// Round 0: split bench, neither verdict fires.
	provider.script(0, "architect", vote.StanceApprove)
	provider.script(0, "security", vote.StanceAbstain)
	provider.script(0, "cost_control", vote.StanceAbstain)
	provider.script(0, "innovator", vote.StanceApprove)
	// Round 1 falls back to unanimous approval.

	engine := NewEngine(provider, testDeliberationConfig())
	engine.SetSummarizer(&fakeSummarizer{digest: summary.RoundDigest{
		ConsensusPoints: []string{"queue is the right shape"},
		OpenIssues:      []string{"sizing"},
	}})

	out, err := engine.Deliberate(context.Background(), &StartRequest{
		Proposal: "adopt the queue",
		Roles:    speakerBench("architect", "security", "cost_control", "innovator"),
	})
	if err != nil {
		t.Fatalf("deliberate failed: %v", err)
	}

	if out.Status != deliberation.OutcomeConsensus {
		t.Fatalf("expected consensus, got %s", out.Status)
	}
	if out.FinalRound != 1 {
		t.Fatalf("expected conclusion in round 1, got %d", out.FinalRound)
	}
	if len(out.ConsensusPoints) == 0 || out.ConsensusPoints[0] != "queue is the right shape" {
		t.Fatalf("round digest missing from outcome: %v", out.ConsensusPoints)
	}
	// Consensus clears whatever was still open.
	if len(out.OpenIssues) != 0 {
		t.Fatalf("expected no open issues after consensus, got %v", out.OpenIssues)
	}
}

func TestDeliberateMaxRoundsExhausted(t *testing.T) {
	provider := newScriptedProvider()
	provider.fallback = vote.StanceAbstain // never consensus, never deadlock

	cfg := testDeliberationConfig()
	cfg.MaxRounds = 2
	engine := NewEngine(provider, cfg)

	out, err := engine.Deliberate(context.Background(), &StartRequest{
		Proposal: "stall forever",
		Roles:    speakerBench("architect", "security"),
	})
	if err != nil {
		t.Fatalf("deliberate failed: %v", err)
	}

	if out.Status != deliberation.OutcomeMaxRoundsExhausted {
		t.Fatalf("expected max_rounds_exhausted, got %s", out.Status)
	}
	// Exactly rounds 0 and 1 ran; never a third.
	if got := provider.calls["architect"]; got != 2 {
		t.Fatalf("expected 2 rounds of calls, got %d", got)
	}
}

func TestDeliberateDeadlockWithoutGate(t *testing.T) {
	provider := newScriptedProvider()
	provider.fallback = vote.StanceOppose

	engine := NewEngine(provider, testDeliberationConfig())

	out, err := engine.Deliberate(context.Background(), &StartRequest{
		Proposal: "contested",
		Roles:    speakerBench("architect", "security"),
	})
	if err != nil {
		t.Fatalf("deliberate failed: %v", err)
	}
	if out.Status != deliberation.OutcomeDeadlockEscalated {
		t.Fatalf("expected deadlock_escalated, got %s", out.Status)
	}
}

func TestDeliberateHumanResolves(t *testing.T) {
	provider := newScriptedProvider()
	provider.fallback = vote.StanceOppose

	gate := NewHumanGate()
	engine := NewEngine(provider, testDeliberationConfig())
	engine.SetHumanSource(gate)

	go func() {
		for range 100 {
			time.Sleep(5 * time.Millisecond)
			if engine.ResolveHumanDecision("d-human", &resolveResponse) {
				return
			}
		}
	}()

	out, err := engine.Deliberate(context.Background(), &StartRequest{
		DeliberationID: "d-human",
		Proposal:       "contested",
		Roles:          speakerBench("architect", "security"),
	})
	if err != nil {
		t.Fatalf("deliberate failed: %v", err)
	}

	if out.Status != deliberation.OutcomeHumanOverridden {
		t.Fatalf("expected human_overridden, got %s", out.Status)
	}
	if len(out.ConsensusPoints) == 0 || out.ConsensusPoints[0] != "split the difference" {
		t.Fatalf("human resolution content missing: %v", out.ConsensusPoints)
	}
}

func TestDeliberateHumanContinues(t *testing.T) {
	provider := newScriptedProvider()
	// Round 0 deadlocks, round 1 approves unanimously.
	provider.script(0, "architect", vote.StanceOppose)
	provider.script(0, "security", vote.StanceOppose)

	gate := NewHumanGate()
	engine := NewEngine(provider, testDeliberationConfig())
	engine.SetHumanSource(gate)

	go func() {
		for range 100 {
			time.Sleep(5 * time.Millisecond)
			if engine.ResolveHumanDecision("d-continue", &continueResponse) {
				return
			}
		}
	}()

	out, err := engine.Deliberate(context.Background(), &StartRequest{
		DeliberationID: "d-continue",
		Proposal:       "contested then agreed",
		Roles:          speakerBench("architect", "security"),
	})
	if err != nil {
		t.Fatalf("deliberate failed: %v", err)
	}

	if out.Status != deliberation.OutcomeConsensus {
		t.Fatalf("expected consensus after human continue, got %s", out.Status)
	}
	if out.FinalRound != 1 {
		t.Fatalf("expected conclusion in round 1, got %d", out.FinalRound)
	}
}

func TestDeliberateHumanTimeout(t *testing.T) {
	provider := newScriptedProvider()
	provider.fallback = vote.StanceOppose

	cfg := testDeliberationConfig()
	cfg.RoundTimeoutMinutes = 0 // window elapses immediately

	engine := NewEngine(provider, cfg)
	engine.SetHumanSource(NewHumanGate())

	out, err := engine.Deliberate(context.Background(), &StartRequest{
		Proposal: "nobody answers",
		Roles:    speakerBench("architect", "security"),
	})
	if err != nil {
		t.Fatalf("deliberate failed: %v", err)
	}
	if out.Status != deliberation.OutcomeTimeout {
		t.Fatalf("expected timeout, got %s", out.Status)
	}
}

func TestDeliberateAllRolesFailEscalates(t *testing.T) {
	provider := newScriptedProvider()
	provider.failing["architect"] = true
	provider.failing["security"] = true

	engine := NewEngine(provider, testDeliberationConfig())

	out, err := engine.Deliberate(context.Background(), &StartRequest{
		Proposal: "unreachable models",
		Roles:    speakerBench("architect", "security"),
	})
	if err != nil {
		t.Fatalf("deliberate failed: %v", err)
	}
	if out.Status != deliberation.OutcomeDeadlockEscalated {
		t.Fatalf("expected deadlock_escalated when no opinions land, got %s", out.Status)
	}
}

func TestDeliberatePartialFailureTalliesSurvivors(t *testing.T) {
	provider := newScriptedProvider()
	provider.failing["security"] = true
	// Three survivors all approve: 3/3 meets the quorum.

	engine := NewEngine(provider, testDeliberationConfig())

	out, err := engine.Deliberate(context.Background(), &StartRequest{
		Proposal: "mostly healthy bench",
		Roles:    speakerBench("architect", "security", "cost_control", "innovator"),
	})
	if err != nil {
		t.Fatalf("deliberate failed: %v", err)
	}
	if out.Status != deliberation.OutcomeConsensus {
		t.Fatalf("expected consensus over the surviving voters, got %s", out.Status)
	}
}

func TestCancelActiveDeliberation(t *testing.T) {
	provider := newScriptedProvider()
	provider.block = make(chan struct{})

	engine := NewEngine(provider, testDeliberationConfig())

	done := make(chan *deliberation.Outcome, 1)
	go func() {
		out, err := engine.Deliberate(context.Background(), &StartRequest{
			DeliberationID: "d-cancel",
			Proposal:       "long running",
			Roles:          speakerBench("architect"),
		})
		if err != nil {
			t.Errorf("deliberate failed: %v", err)
		}
		done <- out
	}()

	// Wait for the run to register, then cancel it.
	for range 100 {
		if _, err := engine.Snapshot("d-cancel"); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := engine.Cancel("d-cancel", "operator abort"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	close(provider.block)

	select {
	case out := <-done:
		if out.Status != deliberation.OutcomeCancelled {
			t.Fatalf("expected cancelled, got %s", out.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("deliberation did not finish after cancel")
	}
}

func TestDeliberateRejectsEmptyBench(t *testing.T) {
	engine := NewEngine(newScriptedProvider(), testDeliberationConfig())

	if _, err := engine.Deliberate(context.Background(), &StartRequest{Proposal: "x"}); err == nil {
		t.Fatal("expected error for empty role bench")
	}
	if _, err := engine.Deliberate(context.Background(), &StartRequest{
		Roles: speakerBench("architect"),
	}); err == nil {
		t.Fatal("expected error for empty proposal")
	}
}
