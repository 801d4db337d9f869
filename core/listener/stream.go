package listener

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/berkus/teloxide/core/update"
	"github.com/berkus/teloxide/errs"
	"github.com/berkus/teloxide/lib/observability"
)

type stepOutcome uint8

const (
	stepYield stepOutcome = iota
	stepContinue
	stepEnded
)

type fetchOutcome struct {
	batch []update.Update
	err   error
}

type fetchCall struct {
	done chan fetchOutcome
}

// Next implements Stream. Pulls are serialized; each pull runs state
// transitions until one item is produced or the sequence has ended. Empty
// batches loop internally, so Next blocks through quiet long-poll rounds
// instead of returning.
func (p *Poller) Next(ctx context.Context) (Result, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.pullMu.Lock()
	defer p.pullMu.Unlock()
	for {
		res, outcome := p.step(ctx)
		switch outcome {
		case stepYield:
			if res.Err != nil {
				p.streamErrors.Add(1)
				p.metrics.recordStreamError(ctx)
			} else {
				p.delivered.Add(1)
				p.metrics.recordDelivered(ctx)
			}
			return res, true
		case stepEnded:
			return Result{}, false
		}
	}
}

// step advances the engine by one transition. Invariants: the pending buffer
// outranks everything including stop; no fetch starts once stop is requested;
// at most one fetch is in flight, surviving pulls that detach from it.
func (p *Poller) step(ctx context.Context) (Result, stepOutcome) {
	if p.state == stateDone {
		return Result{}, stepEnded
	}

	select {
	case <-ctx.Done():
		// An expired pull never starts or resolves work; it surfaces the
		// expiry and leaves the engine exactly as it found it.
		return Result{Err: errs.Canceled("poll", ctx.Err())}, stepYield
	default:
	}

	if p.pending.Length() > 0 {
		return p.popPending(), stepYield
	}

	if p.signal.requested() {
		p.finish(ctx)
		return Result{}, stepEnded
	}

	if p.inflight == nil {
		res, outcome, proceed := p.awaitTurn(ctx)
		if !proceed {
			return res, outcome
		}
		p.beginFetch(ctx)
	}

	select {
	case out := <-p.inflight.done:
		p.inflight = nil
		return p.resolveFetch(ctx, out)
	case <-p.signal.wait():
		// Stop wins the race. The issued call keeps running on its own
		// context; its eventual result is discarded on the next transition.
		// The cursor never advanced, so nothing is lost.
		return Result{}, stepContinue
	case <-ctx.Done():
		// Detach from the in-flight call without aborting it; the next pull
		// reattaches, or the stop path discards it.
		observability.Log().Debug("listener pull detached",
			observability.F("state", p.state.String()),
			observability.F("cursor", p.cursor.Load()),
		)
		return Result{Err: errs.Canceled("poll", ctx.Err())}, stepYield
	}
}

// awaitTurn serves the spacing agreed before the next call: the inter-call
// delay after a success, the backoff delay after a recoverable failure.
// Stop and ctx expiry cut the wait short.
func (p *Poller) awaitTurn(ctx context.Context) (Result, stepOutcome, bool) {
	wait := p.nextFetchAt.Sub(p.clock())
	if wait <= 0 {
		return Result{}, stepContinue, true
	}
	select {
	case <-ctx.Done():
		return Result{Err: errs.Canceled("poll", ctx.Err())}, stepYield, false
	case <-p.signal.wait():
		return Result{}, stepContinue, false
	case <-time.After(wait):
		return Result{}, stepContinue, true
	}
}

func (p *Poller) beginFetch(ctx context.Context) {
	req := FetchRequest{
		Offset:         p.cursor.Load(),
		Limit:          p.limit,
		Timeout:        p.waitTimeout,
		AllowedUpdates: p.takeHint(),
	}
	call := &fetchCall{done: make(chan fetchOutcome, 1)}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.waitTimeout+fetchGraceTimeout)
	p.state = stateFetching
	p.inflight = call
	p.fetches.Add(1)
	go func() {
		defer cancel()
		batch, err := p.fetcher.FetchUpdates(fctx, req)
		call.done <- fetchOutcome{batch: batch, err: err}
	}()
}

func (p *Poller) resolveFetch(ctx context.Context, out fetchOutcome) (Result, stepOutcome) {
	if out.err != nil {
		return p.resolveFetchError(ctx, out.err)
	}

	p.bo.Reset()
	p.failures.Store(0)
	p.nextFetchAt = p.clock().Add(p.interCallDelay)

	batch := p.dropStale(out.batch)
	if len(batch) == 0 {
		// A quiet long-poll round: not an error, does not touch backoff.
		p.state = stateIdle
		p.metrics.recordFetch(ctx, fetchResultEmpty)
		return Result{}, stepContinue
	}

	maxID := batch[0].ID
	for _, u := range batch[1:] {
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	// Advancing the cursor acknowledges the whole batch: the head is handed
	// to the consumer now, the tail through the pending buffer.
	p.cursor.Store(maxID + 1)

	first := batch[0]
	for i := 1; i < len(batch); i++ {
		u := batch[i]
		p.pending.Add(&u)
	}
	p.pendingDepth.Store(int32(p.pending.Length()))
	if p.pending.Length() > 0 {
		p.state = stateDraining
	} else {
		p.state = stateIdle
	}
	p.metrics.recordFetch(ctx, fetchResultOK)
	p.metrics.recordFetched(ctx, len(batch))
	return Result{Update: &first}, stepYield
}

func (p *Poller) resolveFetchError(ctx context.Context, err error) (Result, stepOutcome) {
	if errs.IsFatal(err) {
		p.state = stateDone
		p.metrics.recordFetch(ctx, fetchResultFatal)
		observability.Log().Error("listener fetch failed fatally",
			observability.F("cursor", p.cursor.Load()),
			observability.F("error", err.Error()),
		)
		return Result{Err: err}, stepYield
	}

	failures := p.failures.Add(1)
	delay := p.bo.NextBackOff()
	if delay == backoff.Stop {
		p.state = stateDone
		p.metrics.recordFetch(ctx, fetchResultExhausted)
		observability.Log().Error("listener retry policy exhausted",
			observability.F("failures", failures),
			observability.F("cursor", p.cursor.Load()),
			observability.F("error", err.Error()),
		)
		terminal := errs.New("poll", errs.CodeUnavailable,
			errs.WithClass(errs.ClassFatal),
			errs.WithMessage("retry policy exhausted"),
			errs.WithCause(err),
		)
		return Result{Err: terminal}, stepYield
	}
	if ra, ok := errs.RetryAfterOf(err); ok && ra > delay {
		delay = ra
	}
	p.nextFetchAt = p.clock().Add(delay)
	p.state = stateIdle
	p.metrics.recordFetch(ctx, fetchResultRecoverable)
	p.metrics.recordBackoff(ctx, delay)
	observability.Log().Error("listener fetch failed, will retry",
		observability.F("failures", failures),
		observability.F("delay", delay.String()),
		observability.F("cursor", p.cursor.Load()),
		observability.F("error", err.Error()),
	)
	return Result{Err: err}, stepYield
}

// dropStale filters ids below the cursor. The remote contract forbids
// resending acknowledged ids, but a range redelivered after an abandoned
// call can still contain them.
func (p *Poller) dropStale(batch []update.Update) []update.Update {
	cursor := p.cursor.Load()
	if cursor == 0 || len(batch) == 0 {
		return batch
	}
	filtered := batch[:0]
	for _, u := range batch {
		if u.ID >= cursor {
			filtered = append(filtered, u)
		}
	}
	if dropped := len(batch) - len(filtered); dropped > 0 {
		observability.Log().Debug("listener dropped stale updates",
			observability.F("count", dropped),
			observability.F("cursor", cursor),
		)
	}
	return filtered
}

func (p *Poller) popPending() Result {
	u, _ := p.pending.Remove().(*update.Update)
	p.pendingDepth.Store(int32(p.pending.Length()))
	if p.pending.Length() == 0 {
		if p.signal.requested() {
			p.state = stateStopping
		} else {
			p.state = stateIdle
		}
	}
	return Result{Update: u}
}

// finish is the single exit of the cooperative-stop path: discard any
// abandoned in-flight call, mark the signal fully stopped, go terminal.
func (p *Poller) finish(ctx context.Context) {
	if p.inflight != nil {
		p.metrics.recordFetch(ctx, fetchResultAbandoned)
		p.inflight = nil
	}
	p.state = stateDone
	p.signal.markStopped()
	observability.Log().Info("listener stopped",
		observability.F("cursor", p.cursor.Load()),
		observability.F("delivered", p.delivered.Load()),
		observability.F("fetches", p.fetches.Load()),
	)
}
