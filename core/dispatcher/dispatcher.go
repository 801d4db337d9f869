// Package dispatcher pulls updates from a listener and routes them by kind
// to registered handlers on a bounded worker pool.
package dispatcher

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/berkus/teloxide/core/listener"
	"github.com/berkus/teloxide/core/update"
	"github.com/berkus/teloxide/errs"
	"github.com/berkus/teloxide/lib/observability"
)

// HandlerFunc processes one update. Handlers for distinct updates run
// concurrently; a handler that needs per-chat ordering serializes on its own.
type HandlerFunc func(ctx context.Context, u *update.Update) error

// ErrorHandler consumes stream errors and handler failures.
type ErrorHandler func(ctx context.Context, err error)

// Dispatcher consumes an update listener and fans updates out to per-kind
// handlers. Register handlers with Handle and HandleDefault, then call Run
// exactly once. A context cancellation converts into a cooperative stop of
// the listener, so updates fetched before the cancellation are still handled.
type Dispatcher struct {
	workers int
	onError ErrorHandler

	metrics *dispatchMetrics

	mu       sync.Mutex
	handlers map[update.Kind]HandlerFunc
	fallback HandlerFunc
	running  bool
}

// Option adjusts one dispatcher parameter at construction time.
type Option func(*Dispatcher)

// WithWorkers bounds how many handlers may run concurrently. Defaults to
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithErrorHandler replaces the default error sink, which logs through the
// observability facade.
func WithErrorHandler(f ErrorHandler) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.onError = f
		}
	}
}

// New constructs a dispatcher with no handlers registered.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		workers:  runtime.GOMAXPROCS(0),
		handlers: make(map[update.Kind]HandlerFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.onError == nil {
		d.onError = logError
	}
	d.metrics = newDispatchMetrics()
	return d
}

func logError(_ context.Context, err error) {
	observability.Log().Error("dispatcher error", observability.F("error", err.Error()))
}

// Handle registers the handler invoked for updates of the given kind,
// replacing any previous registration. Must be called before Run.
func (d *Dispatcher) Handle(kind update.Kind, h HandlerFunc) *Dispatcher {
	if h == nil {
		panic("dispatcher: handler must not be nil")
	}
	if !kind.Valid() {
		panic(fmt.Sprintf("dispatcher: unknown update kind %q", kind))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		panic("dispatcher: Handle must be called before Run")
	}
	d.handlers[kind] = h
	return d
}

// HandleDefault registers the handler for kinds without a dedicated handler.
// With a default handler installed the dispatcher no longer narrows the
// listener's update filter. Must be called before Run.
func (d *Dispatcher) HandleDefault(h HandlerFunc) *Dispatcher {
	if h == nil {
		panic("dispatcher: handler must not be nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		panic("dispatcher: HandleDefault must be called before Run")
	}
	d.fallback = h
	return d
}

// Run consumes the listener until its stream ends. Cancelling ctx requests a
// cooperative stop; Run then drains the remaining updates, waits for all
// handlers to return, and reports a clean stop as nil. A fatal stream error
// terminates the stream on the listener side and is returned after the drain.
func (d *Dispatcher) Run(ctx context.Context, l listener.UpdateListener) error {
	if l == nil {
		panic("dispatcher: listener must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := d.markRunning(); err != nil {
		return err
	}

	token := l.StopToken()
	if kinds := d.subscribedKinds(); kinds != nil {
		l.HintAllowedUpdates(kinds...)
	}

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			token.Stop()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	// Pulls run on a detached context: cancellation was converted into a
	// stop request above, and the stream is drained rather than abandoned.
	runCtx := context.WithoutCancel(ctx)

	workers := pool.New().WithMaxGoroutines(d.workers)
	var fatal error
	for {
		res, ok := l.Next(runCtx)
		if !ok {
			break
		}
		if res.Err != nil {
			d.metrics.recordStreamError(runCtx)
			if fatal == nil && errs.IsFatal(res.Err) {
				fatal = res.Err
			}
			d.onError(runCtx, res.Err)
			continue
		}
		if res.Update == nil {
			continue
		}
		d.dispatch(runCtx, workers, res.Update)
	}
	workers.Wait()

	observability.Log().Info("dispatcher finished",
		observability.F("clean", fatal == nil),
	)
	return fatal
}

func (d *Dispatcher) dispatch(ctx context.Context, workers *pool.Pool, u *update.Update) {
	kind := u.Kind()
	handler := d.handlerFor(kind)
	if handler == nil {
		d.metrics.recordUnrouted(ctx, kind)
		observability.Log().Debug("dispatcher dropped unrouted update",
			observability.F("kind", string(kind)),
			observability.F("update_id", u.ID),
		)
		return
	}
	workers.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				d.metrics.recordHandlerError(ctx, kind)
				d.onError(ctx, fmt.Errorf("handler panic on %s update %d: %v", kind, u.ID, r))
			}
		}()
		start := time.Now()
		err := handler(ctx, u)
		d.metrics.recordDispatched(ctx, kind, time.Since(start))
		if err != nil {
			d.metrics.recordHandlerError(ctx, kind)
			d.onError(ctx, fmt.Errorf("%s handler: %w", kind, err))
		}
	})
}

func (d *Dispatcher) handlerFor(kind update.Kind) HandlerFunc {
	if h, ok := d.handlers[kind]; ok {
		return h
	}
	return d.fallback
}

// subscribedKinds reports the kind filter to hint at the listener, nil when
// the dispatcher wants every kind.
func (d *Dispatcher) subscribedKinds() []update.Kind {
	if d.fallback != nil || len(d.handlers) == 0 {
		return nil
	}
	kinds := make([]update.Kind, 0, len(d.handlers))
	for kind := range d.handlers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (d *Dispatcher) markRunning() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errs.New("dispatch", errs.CodeInvalid,
			errs.WithMessage("dispatcher already running"))
	}
	d.running = true
	return nil
}
