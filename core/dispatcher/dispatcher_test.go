package dispatcher_test

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/berkus/teloxide/core/dispatcher"
	"github.com/berkus/teloxide/core/listener"
	"github.com/berkus/teloxide/core/update"
	"github.com/berkus/teloxide/errs"
	"github.com/berkus/teloxide/internal/testutil/listenertest"
)

// recorder collects handled update ids and reported errors across goroutines.
type recorder struct {
	mu   sync.Mutex
	ids  []int64
	errs []error
}

func (r *recorder) handle(_ context.Context, u *update.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, u.ID)
	return nil
}

func (r *recorder) onError(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) sortedIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]int64(nil), r.ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func pollUpdate(id int64) update.Update {
	return update.Update{ID: id, Poll: &update.Poll{ID: "p1", Question: "still there?"}}
}

func callbackUpdate(id int64) update.Update {
	return update.Update{ID: id, CallbackQuery: &update.CallbackQuery{ID: "cb", Data: "ping"}}
}

func TestDispatcherRoutesByKind(t *testing.T) {
	ch := make(chan update.Update, 3)
	ch <- listenertest.MessageUpdate(1, "hello")
	ch <- callbackUpdate(2)
	ch <- listenertest.MessageUpdate(3, "bye")
	close(ch)

	var messages, callbacks recorder
	d := dispatcher.New().
		Handle(update.KindMessage, messages.handle).
		Handle(update.KindCallbackQuery, callbacks.handle)

	require.NoError(t, d.Run(context.Background(), listener.FromChannel(ch)))
	require.Equal(t, []int64{1, 3}, messages.sortedIDs())
	require.Equal(t, []int64{2}, callbacks.sortedIDs())
}

func TestDispatcherDefaultHandlerCatchesRest(t *testing.T) {
	ch := make(chan update.Update, 3)
	ch <- listenertest.MessageUpdate(1, "routed")
	ch <- pollUpdate(2)
	ch <- callbackUpdate(3)
	close(ch)

	var messages, rest recorder
	d := dispatcher.New().
		Handle(update.KindMessage, messages.handle).
		HandleDefault(rest.handle)

	require.NoError(t, d.Run(context.Background(), listener.FromChannel(ch)))
	require.Equal(t, []int64{1}, messages.sortedIDs())
	require.Equal(t, []int64{2, 3}, rest.sortedIDs())
}

func TestDispatcherDropsUnroutedKinds(t *testing.T) {
	ch := make(chan update.Update, 2)
	ch <- listenertest.MessageUpdate(1, "kept")
	ch <- pollUpdate(2)
	close(ch)

	var messages recorder
	d := dispatcher.New().Handle(update.KindMessage, messages.handle)

	require.NoError(t, d.Run(context.Background(), listener.FromChannel(ch)))
	require.Equal(t, []int64{1}, messages.sortedIDs())
}

func TestDispatcherHintsRegisteredKinds(t *testing.T) {
	fetcher := listenertest.NewScriptedFetcher()
	p := listener.Polling(fetcher)

	var sink recorder
	d := dispatcher.New().
		Handle(update.KindPoll, sink.handle).
		Handle(update.KindMessage, sink.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, p) }()

	fetcher.AwaitCalls(t, 1, time.Second)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancellation")
	}

	reqs := fetcher.Requests()
	require.NotEmpty(t, reqs)
	require.Equal(t, []update.Kind{update.KindMessage, update.KindPoll}, reqs[0].AllowedUpdates,
		"the hint lists registered kinds in stable order")
}

func TestDispatcherCancelDrainsBufferedUpdates(t *testing.T) {
	ch := make(chan update.Update, 3)
	for id := int64(1); id <= 3; id++ {
		ch <- listenertest.MessageUpdate(id, "buffered")
	}

	var sink recorder
	d := dispatcher.New().HandleDefault(sink.handle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, d.Run(ctx, listener.FromChannel(ch)))
	require.Equal(t, []int64{1, 2, 3}, sink.sortedIDs(),
		"updates fetched before cancellation are still handled")
}

func TestDispatcherReturnsFatalStreamError(t *testing.T) {
	fetchErr := errs.New("poll", errs.CodeAuth, errs.WithHTTP(401), errs.WithMessage("unauthorized"))
	p := listener.Polling(listenertest.NewScriptedFetcher(
		listenertest.Step{Err: fetchErr},
	))

	var sink recorder
	d := dispatcher.New(dispatcher.WithErrorHandler(sink.onError)).
		HandleDefault(sink.handle)

	err := d.Run(context.Background(), p)
	require.ErrorIs(t, err, fetchErr)
	require.True(t, errs.IsFatal(err))
	require.NotEmpty(t, sink.errors(), "the fatal error is also reported to the error sink")
}

func TestDispatcherReportsHandlerErrors(t *testing.T) {
	ch := make(chan update.Update, 2)
	ch <- listenertest.MessageUpdate(1, "fails")
	ch <- listenertest.MessageUpdate(2, "works")
	close(ch)

	var sink recorder
	failing := func(ctx context.Context, u *update.Update) error {
		if u.ID == 1 {
			return errs.New("handle", errs.CodeRemote, errs.WithMessage("downstream unavailable"))
		}
		return sink.handle(ctx, u)
	}
	d := dispatcher.New(dispatcher.WithErrorHandler(sink.onError)).
		Handle(update.KindMessage, failing)

	require.NoError(t, d.Run(context.Background(), listener.FromChannel(ch)),
		"handler failures do not terminate the run")
	require.Equal(t, []int64{2}, sink.sortedIDs())

	reported := sink.errors()
	require.Len(t, reported, 1)
	require.Contains(t, reported[0].Error(), "message handler")
}

func TestDispatcherContainsHandlerPanics(t *testing.T) {
	ch := make(chan update.Update, 2)
	ch <- listenertest.MessageUpdate(1, "boom")
	ch <- listenertest.MessageUpdate(2, "fine")
	close(ch)

	var sink recorder
	panicky := func(ctx context.Context, u *update.Update) error {
		if u.ID == 1 {
			panic("handler exploded")
		}
		return sink.handle(ctx, u)
	}
	d := dispatcher.New(dispatcher.WithErrorHandler(sink.onError)).
		Handle(update.KindMessage, panicky)

	require.NoError(t, d.Run(context.Background(), listener.FromChannel(ch)))
	require.Equal(t, []int64{2}, sink.sortedIDs())

	reported := sink.errors()
	require.Len(t, reported, 1)
	require.Contains(t, reported[0].Error(), "handler panic")
}

func TestDispatcherBoundsHandlerConcurrency(t *testing.T) {
	ch := make(chan update.Update, 4)
	for id := int64(1); id <= 4; id++ {
		ch <- listenertest.MessageUpdate(id, "slow")
	}
	close(ch)

	var active, peak atomic.Int32
	slow := func(context.Context, *update.Update) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return nil
	}
	d := dispatcher.New(dispatcher.WithWorkers(1)).
		Handle(update.KindMessage, slow)

	require.NoError(t, d.Run(context.Background(), listener.FromChannel(ch)))
	require.Equal(t, int32(1), peak.Load())
}

func TestDispatcherRunTwiceFails(t *testing.T) {
	ch := make(chan update.Update)
	close(ch)

	d := dispatcher.New().HandleDefault(func(context.Context, *update.Update) error { return nil })
	require.NoError(t, d.Run(context.Background(), listener.FromChannel(ch)))

	err := d.Run(context.Background(), listener.FromChannel(ch))
	require.Error(t, err)
	require.Equal(t, errs.CodeInvalid, errs.CodeOf(err))
}
