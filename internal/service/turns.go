package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"

	"github.com/councild/councild/internal/adapter/otel"
	"github.com/councild/councild/internal/domain"
	"github.com/councild/councild/internal/domain/event"
	"github.com/councild/councild/internal/domain/role"
	"github.com/councild/councild/internal/logger"
	"github.com/councild/councild/internal/port/opinion"
)

// turnResult is one role's outcome for a round: either an opinion or the
// failure that remains after retries. Failures are values here, never faults
// that could abort sibling calls.
type turnResult struct {
	role    role.Role
	opinion *opinion.Result
	err     error
}

// turnExecutor fans out opinion calls over the eligible roles of a round.
// Calls run concurrently under a weighted semaphore; the round boundary is a
// join barrier, so results are only consumed once every role has finished or
// failed. Result order is registry order regardless of completion order,
// which keeps appended events (and therefore replays) deterministic.
type turnExecutor struct {
	provider opinion.Provider
	sem      *semaphore.Weighted
	retries  int
}

func newTurnExecutor(provider opinion.Provider, maxParallel, retries int) *turnExecutor {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if retries < 0 {
		retries = 0
	}
	return &turnExecutor{
		provider: provider,
		sem:      semaphore.NewWeighted(int64(maxParallel)),
		retries:  retries,
	}
}

// executeRound obtains one opinion per speaker for the given round. The
// returned slice is indexed in speaker (registry) order.
func (t *turnExecutor) executeRound(ctx context.Context, proposal string, history []event.Event, speakers []role.Role, round int) []turnResult {
	results := make([]turnResult, len(speakers))

	var wg sync.WaitGroup
	for i, r := range speakers {
		wg.Add(1)
		go func(i int, r role.Role) {
			defer wg.Done()

			if err := t.sem.Acquire(ctx, 1); err != nil {
				results[i] = turnResult{role: r, err: err}
				return
			}
			defer t.sem.Release(1)

			res, err := t.opinionWithRetry(ctx, opinion.Request{
				Role:     r,
				Proposal: proposal,
				History:  history,
				Round:    round,
			})
			results[i] = turnResult{role: r, opinion: res, err: err}
		}(i, r)
	}
	wg.Wait()

	return results
}

// opinionWithRetry calls the provider with a bounded exponential backoff.
// Retries are local: only the final success or failure is ever recorded.
func (t *turnExecutor) opinionWithRetry(ctx context.Context, req opinion.Request) (*opinion.Result, error) {
	spanCtx, span := otel.StartOpinionSpan(ctx, req.Role.ID, req.Round)
	defer span.End()

	attempt := 0
	res, err := backoff.Retry(spanCtx, func() (*opinion.Result, error) {
		attempt++
		r, err := t.provider.GetOpinion(spanCtx, req)
		if err != nil {
			slog.Debug("opinion attempt failed",
				"deliberation_id", logger.DeliberationID(spanCtx),
				"role_id", req.Role.ID,
				"round", req.Round,
				"attempt", attempt,
				"error", err,
			)
			return nil, err
		}
		return r, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(t.retries+1)),
		backoff.WithMaxElapsedTime(2*time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: role %s: %v", domain.ErrRoleOpinionFailed, req.Role.ID, err)
	}
	return res, nil
}
