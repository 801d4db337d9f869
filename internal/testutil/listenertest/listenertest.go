// Package listenertest provides scripted fakes for exercising update
// listeners in tests: a fetcher that replays prepared batches and failures
// while recording every request, and a replayable backoff policy.
package listenertest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/berkus/teloxide/core/listener"
	"github.com/berkus/teloxide/core/update"
)

// exhaustedHold simulates the remote holding a quiet long-poll round once the
// script has run out, keeping retry loops in tests from spinning hot.
const exhaustedHold = 5 * time.Millisecond

// Step scripts the outcome of a single fetch call. Release, when set, holds
// the call open until the channel is closed, modelling a remote that has
// nothing to say yet.
type Step struct {
	Batch   []update.Update
	Err     error
	Hold    time.Duration
	Release <-chan struct{}
}

// ScriptedFetcher replays a fixed sequence of fetch outcomes and records the
// requests it receives. Once the script is exhausted it keeps answering with
// empty batches, like a remote with no traffic. Safe for concurrent use.
type ScriptedFetcher struct {
	mu    sync.Mutex
	steps []Step
	next  int
	reqs  []listener.FetchRequest
	times []time.Time
}

// NewScriptedFetcher builds a fetcher that replays the given steps in order.
func NewScriptedFetcher(steps ...Step) *ScriptedFetcher {
	return &ScriptedFetcher{steps: steps}
}

// FetchUpdates implements listener.Fetcher.
func (f *ScriptedFetcher) FetchUpdates(ctx context.Context, req listener.FetchRequest) ([]update.Update, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, cloneRequest(req))
	f.times = append(f.times, time.Now())
	var step Step
	scripted := f.next < len(f.steps)
	if scripted {
		step = f.steps[f.next]
		f.next++
	}
	f.mu.Unlock()

	if !scripted {
		step = Step{Hold: exhaustedHold}
	}
	if step.Release != nil {
		select {
		case <-step.Release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Hold > 0 {
		select {
		case <-time.After(step.Hold):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return append([]update.Update(nil), step.Batch...), nil
}

// Calls reports how many fetch calls have started.
func (f *ScriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

// Requests returns a copy of every request received so far, in call order.
func (f *ScriptedFetcher) Requests() []listener.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]listener.FetchRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}

// Offsets returns the cursor offset of every request received so far.
func (f *ScriptedFetcher) Offsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.reqs))
	for _, req := range f.reqs {
		out = append(out, req.Offset)
	}
	return out
}

// CallTimes returns when each fetch call started.
func (f *ScriptedFetcher) CallTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.times))
	copy(out, f.times)
	return out
}

// AwaitCalls blocks until at least n fetch calls have started or the timeout
// elapses, failing the test in the latter case.
func (f *ScriptedFetcher) AwaitCalls(t testing.TB, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for f.Calls() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d fetch calls, saw %d", n, f.Calls())
		}
		time.Sleep(time.Millisecond)
	}
}

func cloneRequest(req listener.FetchRequest) listener.FetchRequest {
	out := req
	if req.AllowedUpdates != nil {
		out.AllowedUpdates = append([]update.Kind{}, req.AllowedUpdates...)
	}
	return out
}

// RecordingBackOff replays a scripted sequence of retry delays and records
// how the policy is consumed. Once the delays run out, NextBackOff returns
// backoff.Stop. Reset rewinds the sequence to the beginning.
type RecordingBackOff struct {
	mu     sync.Mutex
	delays []time.Duration
	next   int
	calls  int
	resets int
}

// NewRecordingBackOff builds a policy that hands out the given delays in
// order.
func NewRecordingBackOff(delays ...time.Duration) *RecordingBackOff {
	return &RecordingBackOff{delays: delays}
}

// NextBackOff implements backoff.BackOff.
func (b *RecordingBackOff) NextBackOff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.next >= len(b.delays) {
		return backoff.Stop
	}
	d := b.delays[b.next]
	b.next++
	return d
}

// Reset implements backoff.BackOff.
func (b *RecordingBackOff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	b.next = 0
}

// Calls reports how many times NextBackOff was consulted.
func (b *RecordingBackOff) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Resets reports how many times the policy was reset.
func (b *RecordingBackOff) Resets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

// MessageUpdate builds a private-chat text message update with the given id.
func MessageUpdate(id int64, text string) update.Update {
	return update.Update{
		ID: id,
		Message: &update.Message{
			ID:   id,
			From: &update.User{ID: 7, FirstName: "tester"},
			Date: 1700000000 + id,
			Chat: update.Chat{ID: 1000, Type: "private"},
			Text: text,
		},
	}
}

// Batch builds a batch of message updates with the given ids, in order.
func Batch(ids ...int64) []update.Update {
	batch := make([]update.Update, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, MessageUpdate(id, fmt.Sprintf("message %d", id)))
	}
	return batch
}
