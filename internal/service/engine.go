// Package service implements the deliberation engine: the round loop that
// drives reviewer turns, tallies votes, routes transitions and records the
// terminal outcome.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/councild/councild/internal/adapter/otel"
	"github.com/councild/councild/internal/adapter/ws"
	"github.com/councild/councild/internal/config"
	"github.com/councild/councild/internal/domain"
	"github.com/councild/councild/internal/domain/deliberation"
	"github.com/councild/councild/internal/domain/event"
	"github.com/councild/councild/internal/domain/role"
	"github.com/councild/councild/internal/domain/vote"
	"github.com/councild/councild/internal/logger"
	"github.com/councild/councild/internal/port/broadcast"
	"github.com/councild/councild/internal/port/eventstore"
	"github.com/councild/councild/internal/port/humandecision"
	"github.com/councild/councild/internal/port/opinion"
	"github.com/councild/councild/internal/port/outcomesink"
	"github.com/councild/councild/internal/port/summary"
)

// instance is one active deliberation: its immutable inputs and its event
// log. The role snapshot is fixed at creation; it is never re-read from
// shared configuration mid-run.
type instance struct {
	id       string
	proposal string
	roles    []role.Role
	log      *event.Log
}

// Engine runs deliberations. Independent deliberations share no mutable
// state and run fully in parallel; within one deliberation rounds are
// strictly sequential and the log has a single logical writer.
type Engine struct {
	provider   opinion.Provider
	cfg        config.Deliberation
	summarizer summary.Summarizer
	humans     humandecision.Source
	store      eventstore.Store
	sink       outcomesink.Sink
	hub        broadcast.Broadcaster
	metrics    *otel.Metrics

	mu     sync.RWMutex
	active map[string]*instance
}

// NewEngine creates an Engine with the given opinion provider and round
// loop configuration. Collaborators are attached with the Set methods.
func NewEngine(provider opinion.Provider, cfg config.Deliberation) *Engine {
	return &Engine{
		provider: provider,
		cfg:      cfg,
		active:   make(map[string]*instance),
	}
}

// SetSummarizer attaches the round summarizer collaborator.
func (e *Engine) SetSummarizer(s summary.Summarizer) { e.summarizer = s }

// SetHumanSource attaches the human decision source.
func (e *Engine) SetHumanSource(h humandecision.Source) { e.humans = h }

// SetEventStore attaches durable append-through persistence for events.
func (e *Engine) SetEventStore(s eventstore.Store) { e.store = s }

// SetOutcomeSink attaches the sink that receives terminal outcomes.
func (e *Engine) SetOutcomeSink(s outcomesink.Sink) { e.sink = s }

// SetBroadcaster attaches the real-time event broadcaster.
func (e *Engine) SetBroadcaster(b broadcast.Broadcaster) { e.hub = b }

// SetMetrics attaches the metric instruments.
func (e *Engine) SetMetrics(m *otel.Metrics) { e.metrics = m }

// StartRequest holds the inputs for one deliberation run.
type StartRequest struct {
	DeliberationID string      // assigned if empty
	Proposal       string      // the proposal text under review
	Roles          []role.Role // resolved role snapshot
}

// Deliberate runs one deliberation from round 0 to its terminal outcome.
// It blocks until concluded; cancel ctx to cancel the deliberation, which
// still yields a well-formed outcome with the cancelled status. The only
// error paths are structural (bad inputs, log corruption); every other
// abort still produces an outcome.
func (e *Engine) Deliberate(ctx context.Context, req *StartRequest) (*deliberation.Outcome, error) {
	if req == nil || req.Proposal == "" {
		return nil, fmt.Errorf("%w: empty proposal", domain.ErrConfiguration)
	}
	eligible := role.EligibleForRound(req.Roles)
	if len(eligible.Speakers) == 0 {
		return nil, fmt.Errorf("%w: no eligible speaking roles", domain.ErrConfiguration)
	}

	id := req.DeliberationID
	if id == "" {
		id = uuid.NewString()
	}

	inst := &instance{
		id:       id,
		proposal: req.Proposal,
		roles:    req.Roles,
		log:      event.NewLog(),
	}

	e.mu.Lock()
	if _, dup := e.active[id]; dup {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: deliberation %s already running", domain.ErrConfiguration, id)
	}
	e.active[id] = inst
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, id)
		e.mu.Unlock()
	}()

	ctx = logger.WithDeliberationID(ctx, id)
	ctx, span := otel.StartDeliberationSpan(ctx, id, len(eligible.Speakers))
	defer span.End()

	started := time.Now()
	slog.Info("deliberation started",
		"deliberation_id", id,
		"speakers", len(eligible.Speakers),
		"voters", len(eligible.Voting),
		"max_rounds", e.cfg.MaxRounds,
	)

	out, err := e.runLoop(ctx, inst, eligible)
	if out != nil {
		if e.metrics != nil {
			e.metrics.DeliberationsDone.Add(context.WithoutCancel(ctx), 1)
			e.metrics.DeliberationDuration.Record(context.WithoutCancel(ctx), time.Since(started).Seconds())
		}
		slog.Info("deliberation concluded",
			"deliberation_id", id,
			"status", out.Status,
			"final_round", out.FinalRound,
			"consensus_points", len(out.ConsensusPoints),
			"open_issues", len(out.OpenIssues),
		)
	}
	return out, err
}

func (e *Engine) runLoop(ctx context.Context, inst *instance, eligible role.Eligible) (*deliberation.Outcome, error) {
	executor := newTurnExecutor(e.provider, e.cfg.MaxParallel, e.cfg.ProviderRetries)

	for {
		if ctx.Err() != nil {
			return e.conclude(ctx, inst, deliberation.OutcomeCancelled, "cancelled")
		}

		st := deliberation.Project(inst.log.All())
		if st.Status == deliberation.StatusConcluded {
			// An external cancel appended the terminal event.
			return e.finish(ctx, inst)
		}
		if dec := deliberation.Route(st, vote.Verdict{}, e.cfg.MaxRounds); dec.Kind == deliberation.DecisionConclude {
			return e.conclude(ctx, inst, dec.Status, dec.Reason)
		}

		round := st.CurrentRound
		e.broadcast(ctx, ws.EventRoundStatus, ws.RoundStatusEvent{
			DeliberationID: inst.id, Round: round, Status: "started",
		})

		roundCtx, roundSpan := otel.StartRoundSpan(ctx, inst.id, round)
		results := executor.executeRound(roundCtx, inst.proposal, inst.log.All(), eligible.Speakers, round)
		roundSpan.End()

		usable, err := e.recordRound(ctx, inst, round, results)
		if err != nil {
			if errors.Is(err, domain.ErrConcludedDeliberation) {
				return e.finish(ctx, inst)
			}
			return nil, err
		}
		if e.metrics != nil {
			e.metrics.RoundsExecuted.Add(ctx, 1)
		}

		st = deliberation.Project(inst.log.All())
		tally := deliberation.TallyRound(st, round)
		verdict := vote.Evaluate(tally, e.cfg.Thresholds)

		if usable == 0 {
			// Deadlock-class failure: the round produced nothing to tally.
			slog.Warn("round yielded no usable opinions, escalating",
				"deliberation_id", inst.id, "round", round)
			out, err := e.escalate(ctx, inst, round, tally, domain.ErrNoQuorum.Error())
			if out != nil || err != nil {
				return out, err
			}
			continue
		}

		dec := deliberation.Route(st, verdict, e.cfg.MaxRounds)
		switch dec.Kind {
		case deliberation.DecisionConclude:
			if dec.Status == deliberation.OutcomeConsensus {
				if _, err := e.append(ctx, inst, event.Event{
					Round:   round,
					Kind:    event.KindConsensusReached,
					Payload: event.Marshal(event.EscalationPayload{Reason: dec.Reason, Tally: tally}),
				}); err != nil && !errors.Is(err, domain.ErrConcludedDeliberation) {
					return nil, err
				}
			}
			return e.conclude(ctx, inst, dec.Status, dec.Reason)

		case deliberation.DecisionEscalateToHuman:
			out, err := e.escalate(ctx, inst, round, tally, dec.Reason)
			if out != nil || err != nil {
				return out, err
			}

		case deliberation.DecisionContinue:
			if err := e.advanceRound(ctx, inst, round); err != nil {
				if errors.Is(err, domain.ErrConcludedDeliberation) {
					return e.finish(ctx, inst)
				}
				return nil, err
			}
		}
	}
}

// recordRound appends the round's events in speaker (registry) order and
// returns the number of usable opinions. Per-role failures are logged as
// conditions and never abort the round.
func (e *Engine) recordRound(ctx context.Context, inst *instance, round int, results []turnResult) (int, error) {
	usable := 0
	for _, res := range results {
		if res.err != nil {
			slog.Warn("role opinion failed, round continues",
				"deliberation_id", inst.id,
				"round", round,
				"role_id", res.role.ID,
				"error", res.err,
			)
			if e.metrics != nil {
				e.metrics.OpinionFailures.Add(ctx, 1)
			}
			e.broadcast(ctx, ws.EventOpinionFailed, ws.OpinionFailedEvent{
				DeliberationID: inst.id, Round: round, RoleID: res.role.ID, Error: res.err.Error(),
			})
			continue
		}

		if _, err := e.append(ctx, inst, event.Event{
			Round:  round,
			RoleID: res.role.ID,
			Kind:   event.KindOpinionSubmitted,
			Payload: event.Marshal(event.OpinionPayload{
				Stance:     res.opinion.Stance,
				Rationale:  res.opinion.Rationale,
				Confidence: res.opinion.Confidence,
			}),
		}); err != nil {
			return usable, err
		}

		if res.role.CanVote {
			if _, err := e.append(ctx, inst, event.Event{
				Round:   round,
				RoleID:  res.role.ID,
				Kind:    event.KindVoteCast,
				Payload: event.Marshal(event.VotePayload{Stance: res.opinion.Stance}),
			}); err != nil {
				return usable, err
			}
		}

		usable++
		if e.metrics != nil {
			e.metrics.OpinionsSubmitted.Add(ctx, 1)
		}
		e.broadcast(ctx, ws.EventOpinion, ws.OpinionEvent{
			DeliberationID: inst.id,
			Round:          round,
			RoleID:         res.role.ID,
			Stance:         string(res.opinion.Stance),
			Confidence:     res.opinion.Confidence,
		})
	}
	return usable, nil
}

// escalate records the deadlock, requests a human decision and waits for
// it. Returns (nil, nil) when the human asks for another round; any other
// path yields the terminal outcome.
func (e *Engine) escalate(ctx context.Context, inst *instance, round int, tally vote.Tally, reason string) (*deliberation.Outcome, error) {
	payload := event.Marshal(event.EscalationPayload{Reason: reason, Tally: tally})
	for _, kind := range []event.Kind{event.KindDeadlockDetected, event.KindHumanDecisionRequested} {
		if _, err := e.append(ctx, inst, event.Event{Round: round, Kind: kind, Payload: payload}); err != nil {
			if errors.Is(err, domain.ErrConcludedDeliberation) {
				return e.finish(ctx, inst)
			}
			return nil, err
		}
	}

	if e.metrics != nil {
		e.metrics.Escalations.Add(ctx, 1)
	}
	e.broadcast(ctx, ws.EventEscalated, ws.EscalatedEvent{
		DeliberationID:  inst.id,
		Round:           round,
		Reason:          reason,
		OppositionRatio: tally.OppositionRatio,
	})

	if e.humans == nil {
		return e.conclude(ctx, inst, deliberation.OutcomeDeadlockEscalated, reason)
	}

	slog.Info("awaiting human decision",
		"deliberation_id", inst.id,
		"round", round,
		"timeout", e.cfg.RoundTimeout(),
	)

	resp, err := e.humans.Await(ctx, inst.id, e.cfg.RoundTimeout())
	switch {
	case errors.Is(err, domain.ErrHumanDecisionTimeout):
		return e.conclude(ctx, inst, deliberation.OutcomeTimeout, "human decision window elapsed")
	case err != nil:
		return e.conclude(ctx, inst, deliberation.OutcomeCancelled, "cancelled while awaiting human decision")
	}

	e.broadcast(ctx, ws.EventHumanDecision, ws.HumanDecisionEvent{
		DeliberationID: inst.id, Decision: string(resp.Decision),
	})

	if _, err := e.append(ctx, inst, event.Event{
		Round: round,
		Kind:  event.KindHumanDecisionReceived,
		Payload: event.Marshal(event.HumanDecisionPayload{
			Decision:        string(resp.Decision),
			ConsensusPoints: resp.ConsensusPoints,
			OpenIssues:      resp.OpenIssues,
			Note:            resp.Note,
		}),
	}); err != nil {
		if errors.Is(err, domain.ErrConcludedDeliberation) {
			return e.finish(ctx, inst)
		}
		return nil, err
	}

	switch resp.Decision {
	case humandecision.DecisionResolve:
		return e.conclude(ctx, inst, deliberation.OutcomeHumanOverridden, "resolved by human decision")
	case humandecision.DecisionTerminate:
		return e.conclude(ctx, inst, deliberation.OutcomeCancelled, "terminated by human decision")
	default:
		// Continue: the resumed round still counts toward the budget.
		if _, err := e.append(ctx, inst, event.Event{Round: round, Kind: event.KindRoundAdvanced}); err != nil {
			if errors.Is(err, domain.ErrConcludedDeliberation) {
				return e.finish(ctx, inst)
			}
			return nil, err
		}
		return nil, nil
	}
}

// advanceRound summarizes the round (when a summarizer is attached) and
// appends the RoundAdvanced event carrying the digest.
func (e *Engine) advanceRound(ctx context.Context, inst *instance, round int) error {
	var payload event.RoundAdvancedPayload
	if e.summarizer != nil {
		digest, err := e.summarizer.SummarizeRound(ctx, inst.proposal, inst.log.All(), round)
		if err != nil {
			slog.Warn("round summary failed, advancing without digest",
				"deliberation_id", inst.id, "round", round, "error", err)
		} else {
			payload.ConsensusPoints = digest.ConsensusPoints
			payload.OpenIssues = digest.OpenIssues
		}
	}

	_, err := e.append(ctx, inst, event.Event{
		Round:   round,
		Kind:    event.KindRoundAdvanced,
		Payload: event.Marshal(payload),
	})
	if err != nil {
		return err
	}

	e.broadcast(ctx, ws.EventRoundStatus, ws.RoundStatusEvent{
		DeliberationID: inst.id, Round: round, Status: "advanced",
	})
	return nil
}

// conclude appends the terminal event and reports the outcome. Losing the
// append race to an external cancel is fine; the log's terminal event wins.
func (e *Engine) conclude(ctx context.Context, inst *instance, status deliberation.OutcomeStatus, reason string) (*deliberation.Outcome, error) {
	_, err := e.append(ctx, inst, event.Event{
		Round:   deliberation.Project(inst.log.All()).CurrentRound,
		Kind:    event.KindConcluded,
		Payload: event.Marshal(event.ConcludedPayload{Status: string(status), Reason: reason}),
	})
	if err != nil && !errors.Is(err, domain.ErrConcludedDeliberation) {
		return nil, err
	}
	return e.finish(ctx, inst)
}

// finish projects the terminal outcome from the log and hands it to the
// outcome sink and observers. Publication survives a cancelled run context.
func (e *Engine) finish(ctx context.Context, inst *instance) (*deliberation.Outcome, error) {
	st := deliberation.Project(inst.log.All())
	if st.Outcome == nil {
		return nil, fmt.Errorf("deliberation %s finished without terminal event", inst.id)
	}
	out := st.Outcome

	pubCtx := context.WithoutCancel(ctx)
	if e.sink != nil {
		if err := e.sink.Publish(pubCtx, inst.id, *out); err != nil {
			slog.Error("outcome publish failed", "deliberation_id", inst.id, "error", err)
		}
	}
	e.broadcast(pubCtx, ws.EventConcluded, ws.ConcludedEvent{
		DeliberationID: inst.id,
		Status:         string(out.Status),
		FinalRound:     out.FinalRound,
		ConsensusCount: len(out.ConsensusPoints),
		OpenIssues:     out.OpenIssues,
	})
	return out, nil
}

// append writes the event to the deliberation's log and, when persistence
// is attached, appends it through to the durable store.
func (e *Engine) append(ctx context.Context, inst *instance, ev event.Event) (uint64, error) {
	seq, err := inst.log.Append(ev)
	if err != nil {
		return 0, err
	}
	if e.store != nil {
		stored := inst.log.Read(seq)[0]
		if err := e.store.Append(context.WithoutCancel(ctx), inst.id, stored); err != nil {
			slog.Warn("event store append failed",
				"deliberation_id", inst.id, "seq", seq, "error", err)
		}
	}
	return seq, nil
}

func (e *Engine) broadcast(ctx context.Context, eventType string, payload any) {
	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, eventType, payload)
	}
}

// Cancel concludes an active deliberation with the cancelled status. Events
// from calls still in flight are rejected by the log once the terminal event
// lands. Returns domain.ErrNotFound if the deliberation is not active.
func (e *Engine) Cancel(deliberationID, reason string) error {
	e.mu.RLock()
	inst, ok := e.active[deliberationID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: deliberation %s", domain.ErrNotFound, deliberationID)
	}

	if reason == "" {
		reason = "cancelled"
	}
	_, err := inst.log.Append(event.Event{
		Round:   deliberation.Project(inst.log.All()).CurrentRound,
		Kind:    event.KindConcluded,
		Payload: event.Marshal(event.ConcludedPayload{Status: string(deliberation.OutcomeCancelled), Reason: reason}),
	})
	if err != nil {
		return err
	}

	// Unblock the run loop if it is parked on the human gate.
	if g, ok := e.humans.(interface {
		Resolve(string, *humandecision.Response) bool
	}); ok && g != nil {
		g.Resolve(deliberationID, &humandecision.Response{Decision: humandecision.DecisionTerminate})
	}

	slog.Info("deliberation cancelled", "deliberation_id", deliberationID, "reason", reason)
	return nil
}

// Events returns the event history of an active deliberation.
func (e *Engine) Events(deliberationID string) ([]event.Event, error) {
	e.mu.RLock()
	inst, ok := e.active[deliberationID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: deliberation %s", domain.ErrNotFound, deliberationID)
	}
	return inst.log.All(), nil
}

// Snapshot projects the current derived state of an active deliberation.
func (e *Engine) Snapshot(deliberationID string) (*deliberation.State, error) {
	e.mu.RLock()
	inst, ok := e.active[deliberationID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: deliberation %s", domain.ErrNotFound, deliberationID)
	}
	return deliberation.Project(inst.log.All()), nil
}

// ResolveHumanDecision delivers a human decision to a deliberation parked
// on the engine's human gate. Returns false when the deliberation is not
// awaiting one or the gate is not resolvable.
func (e *Engine) ResolveHumanDecision(deliberationID string, resp *humandecision.Response) bool {
	g, ok := e.humans.(interface {
		Resolve(string, *humandecision.Response) bool
	})
	if !ok || g == nil {
		return false
	}
	return g.Resolve(deliberationID, resp)
}
