package listener

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/eapache/queue"

	"github.com/berkus/teloxide/config"
	"github.com/berkus/teloxide/core/update"
)

// Polling defaults, applied when neither options nor settings override them.
const (
	defaultWaitTimeout    = 10 * time.Second
	defaultBackoffInitial = 1 * time.Second
	defaultBackoffMax     = 30 * time.Second

	// fetchGraceTimeout bounds how long an abandoned fetch may keep running
	// beyond the long-poll hold before its context expires.
	fetchGraceTimeout = 30 * time.Second
)

// Engine states. Fetching persists across pulls when a pull detaches from an
// in-flight call (its context expired); Done is terminal.
type pollState uint8

const (
	stateIdle pollState = iota
	stateDraining
	stateFetching
	stateStopping
	stateDone
)

func (s pollState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDraining:
		return "draining"
	case stateFetching:
		return "fetching"
	case stateStopping:
		return "stopping"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Poller drives the cursor-tracking long-polling loop behind the
// UpdateListener contract. One fetch is in flight at a time; the cursor
// advances only when a successful batch is handed to the consumer, so a
// failed fetch retries the identical range. A stopped or terminated Poller
// cannot be restarted; construct a fresh one instead.
type Poller struct {
	fetcher Fetcher
	bo      backoff.BackOff
	clock   func() time.Time

	waitTimeout    time.Duration
	interCallDelay time.Duration
	limit          int

	signal  *stopSignal
	metrics *pollerMetrics

	// pullMu serializes Next so the single-fetch-in-flight invariant holds
	// even when consumers misuse the stream from several goroutines.
	pullMu      sync.Mutex
	state       pollState
	pending     *queue.Queue
	inflight    *fetchCall
	nextFetchAt time.Time

	hintMu  sync.Mutex
	hint    []update.Kind
	hintSet bool

	cursor       atomic.Int64
	failures     atomic.Int32
	pendingDepth atomic.Int32
	fetches      atomic.Uint64
	delivered    atomic.Uint64
	streamErrors atomic.Uint64
}

// Option adjusts one tuning parameter at construction time.
type Option func(*Poller)

// WithWaitTimeout sets how long the remote may hold one fetch open. Zero
// selects short polling.
func WithWaitTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d >= 0 {
			p.waitTimeout = d
		}
	}
}

// WithInterCallDelay enforces a minimum spacing between fetch calls.
func WithInterCallDelay(d time.Duration) Option {
	return func(p *Poller) {
		if d >= 0 {
			p.interCallDelay = d
		}
	}
}

// WithLimit caps the batch size requested from the remote.
func WithLimit(n int) Option {
	return func(p *Poller) {
		if n >= 0 {
			p.limit = n
		}
	}
}

// WithBackOff replaces the retry policy applied after recoverable fetch
// failures. The policy is reset on every successful fetch; returning
// backoff.Stop from NextBackOff terminates the stream.
func WithBackOff(bo backoff.BackOff) Option {
	return func(p *Poller) {
		if bo != nil {
			p.bo = bo
		}
	}
}

// WithAllowedUpdates pre-arms the advisory kind filter sent on the first
// fetch. The remote persists the filter across subsequent calls.
func WithAllowedUpdates(kinds ...update.Kind) Option {
	return func(p *Poller) {
		p.hint = append([]update.Kind(nil), kinds...)
		p.hintSet = true
	}
}

// WithClock overrides the time source used for fetch pacing.
func WithClock(clock func() time.Time) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithSettings applies a polling configuration section wholesale. Explicit
// options may still override individual parameters afterwards.
func WithSettings(cfg config.PollingSettings) Option {
	return func(p *Poller) {
		if cfg.WaitTimeout >= 0 {
			p.waitTimeout = cfg.WaitTimeout
		}
		if cfg.InterCallDelay >= 0 {
			p.interCallDelay = cfg.InterCallDelay
		}
		if cfg.Limit >= 0 {
			p.limit = cfg.Limit
		}
		if len(cfg.AllowedUpdates) > 0 {
			kinds := make([]update.Kind, 0, len(cfg.AllowedUpdates))
			for _, k := range cfg.AllowedUpdates {
				kinds = append(kinds, update.Kind(k))
			}
			p.hint = kinds
			p.hintSet = true
		}
		p.bo = newDefaultBackOff(cfg.BackoffInitial, cfg.BackoffMax)
	}
}

// Polling constructs a long-polling listener over the fetcher. The returned
// Poller yields updates in ascending id order, retries recoverable failures
// with bounded backoff, and honors cooperative stop without discarding
// updates it already fetched.
func Polling(fetcher Fetcher, opts ...Option) *Poller {
	if fetcher == nil {
		panic("listener: fetcher must not be nil")
	}
	p := &Poller{
		fetcher:     fetcher,
		clock:       time.Now,
		waitTimeout: defaultWaitTimeout,
		signal:      newStopSignal(),
		state:       stateIdle,
		pending:     queue.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.bo == nil {
		p.bo = newDefaultBackOff(defaultBackoffInitial, defaultBackoffMax)
	}
	p.metrics = newPollerMetrics(p)
	return p
}

// PollingDefault constructs a Poller with the remote-friendly defaults:
// long polling with the default hold, no batch cap, no inter-call delay.
func PollingDefault(fetcher Fetcher) *Poller {
	return Polling(fetcher)
}

func newDefaultBackOff(initial, max time.Duration) backoff.BackOff {
	if initial <= 0 {
		initial = defaultBackoffInitial
	}
	if max <= 0 {
		max = defaultBackoffMax
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = max
	// Zero randomization keeps retry delays monotone in the failure count.
	bo.RandomizationFactor = 0
	return bo
}

// StopToken returns the cooperative stop handle for this Poller. All copies
// share one signal.
func (p *Poller) StopToken() StopToken {
	return StopToken{signal: p.signal}
}

// HintAllowedUpdates arms the advisory kind filter for the next fetch call.
// The filter is handed to the fetcher once; the remote persists it, so it is
// not re-sent on subsequent calls. Safe to call concurrently with Next.
func (p *Poller) HintAllowedUpdates(kinds ...update.Kind) {
	p.hintMu.Lock()
	defer p.hintMu.Unlock()
	p.hint = append([]update.Kind(nil), kinds...)
	p.hintSet = true
}

// TimeoutHint reports the expected worst-case spacing between results: the
// long-poll hold plus the configured inter-call delay.
func (p *Poller) TimeoutHint() (time.Duration, bool) {
	return p.waitTimeout + p.interCallDelay, true
}

func (p *Poller) takeHint() []update.Kind {
	p.hintMu.Lock()
	defer p.hintMu.Unlock()
	if !p.hintSet {
		return nil
	}
	hint := p.hint
	p.hint = nil
	p.hintSet = false
	if hint == nil {
		hint = []update.Kind{}
	}
	return hint
}

// Stats is a point-in-time snapshot of the engine's counters.
type Stats struct {
	Cursor       int64
	Pending      int
	Failures     int
	Fetches      uint64
	Delivered    uint64
	StreamErrors uint64
	Stopped      bool
}

// Stats reports the engine's current counters without blocking the stream.
func (p *Poller) Stats() Stats {
	return Stats{
		Cursor:       p.cursor.Load(),
		Pending:      int(p.pendingDepth.Load()),
		Failures:     int(p.failures.Load()),
		Fetches:      p.fetches.Load(),
		Delivered:    p.delivered.Load(),
		StreamErrors: p.streamErrors.Load(),
		Stopped:      p.signal.stopped(),
	}
}
