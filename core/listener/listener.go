// Package listener provides the update-listener contract and its long-polling
// implementation: a cursor-tracking fetch loop exposed as a lazily consumed,
// cooperatively stoppable stream of updates.
package listener

import (
	"context"
	"time"

	"github.com/berkus/teloxide/core/update"
)

// Result is one item of an update stream: either an update or the failure
// that interrupted fetching. Exactly one of the two fields is set.
type Result struct {
	Update *update.Update
	Err    error
}

// Stream yields results one at a time. Next blocks until an item is
// available or the sequence has permanently ended (ok=false). A pull whose
// ctx expires surfaces the expiry as an error item, not as end of sequence;
// pulling again with a live context resumes the stream. Once Next returns
// ok=false it returns ok=false forever.
type Stream interface {
	Next(ctx context.Context) (Result, bool)
}

// UpdateListener is the surface a dispatcher consumes: a result stream plus
// the cooperative-stop and tuning-hint operations shared by polling and
// push-style implementations.
type UpdateListener interface {
	Stream

	// StopToken returns a shared handle requesting cooperative stop. Stop
	// never blocks and never discards already-fetched updates; the stream
	// ends within a bounded number of pulls once the pending buffer drains.
	StopToken() StopToken

	// HintAllowedUpdates advises which update kinds the listener should ask
	// for. Purely an optimization hint: implementations may ignore it and
	// consumers must not rely on the filter for correctness.
	HintAllowedUpdates(kinds ...update.Kind)

	// TimeoutHint suggests how often the stream is expected to produce a
	// result, so external shutdown checks can be scheduled. ok=false means
	// the listener has no meaningful cadence (push-style delivery).
	TimeoutHint() (time.Duration, bool)
}

// FetchRequest carries the cursor and tuning parameters for one fetch call.
type FetchRequest struct {
	// Offset is the smallest update id the call may return. Zero means the
	// remote chooses the starting point.
	Offset int64

	// Limit caps the batch size. Zero applies the remote default.
	Limit int

	// Timeout is how long the remote may hold the call open waiting for new
	// updates. Zero requests an immediate, possibly empty, response.
	Timeout time.Duration

	// AllowedUpdates is the advisory kind filter. Nil means "not specified
	// this call" (the remote keeps whatever filter it has); an empty
	// non-nil slice clears the filter.
	AllowedUpdates []update.Kind
}

// Fetcher performs one remote round trip per call. Batches come back ordered
// by ascending update id and non-overlapping across calls. Implementations
// classify their own failures (errs.Class decides retry versus terminate)
// and must return promptly once ctx is done.
type Fetcher interface {
	FetchUpdates(ctx context.Context, req FetchRequest) ([]update.Update, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req FetchRequest) ([]update.Update, error)

// FetchUpdates calls f.
func (f FetcherFunc) FetchUpdates(ctx context.Context, req FetchRequest) ([]update.Update, error) {
	return f(ctx, req)
}
