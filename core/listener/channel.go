package listener

import (
	"context"
	"sync"
	"time"

	"github.com/berkus/teloxide/core/update"
	"github.com/berkus/teloxide/errs"
	"github.com/berkus/teloxide/lib/observability"
)

// ChannelListener adapts a channel of updates to the UpdateListener
// contract, the push-delivery counterpart of the Poller. The sequence ends
// when the channel closes or stop is requested; on stop, updates already
// buffered in the channel are drained before the end is reported.
type ChannelListener struct {
	ch     <-chan update.Update
	signal *stopSignal

	mu   sync.Mutex
	done bool
}

// FromChannel wraps an update channel in a listener. The caller retains the
// producing side and signals natural end of stream by closing it.
func FromChannel(updates <-chan update.Update) *ChannelListener {
	if updates == nil {
		panic("listener: updates channel must not be nil")
	}
	return &ChannelListener{ch: updates, signal: newStopSignal()}
}

// Next implements Stream.
func (l *ChannelListener) Next(ctx context.Context) (Result, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return Result{}, false
	}
	for {
		if l.signal.requested() {
			// Drain what the producer already delivered, then end.
			select {
			case u, ok := <-l.ch:
				if !ok {
					l.finish()
					return Result{}, false
				}
				return l.deliver(u)
			default:
				l.finish()
				return Result{}, false
			}
		}
		select {
		case u, ok := <-l.ch:
			if !ok {
				l.finish()
				return Result{}, false
			}
			return l.deliver(u)
		case <-l.signal.wait():
			// Re-enter in drain mode.
		case <-ctx.Done():
			return Result{Err: errs.Canceled("channel", ctx.Err())}, true
		}
	}
}

func (l *ChannelListener) deliver(u update.Update) (Result, bool) {
	observability.Telemetry().IncCounter("listener.channel.delivered", 1, nil)
	return Result{Update: &u}, true
}

// finish latches the terminal state. The stop flag only advances to stopped
// when termination was actually requested; natural channel close leaves it
// untouched, same as a fatal fetch error on the polling side.
func (l *ChannelListener) finish() {
	l.done = true
	if l.signal.requested() {
		l.signal.markStopped()
	}
}

// StopToken implements UpdateListener.
func (l *ChannelListener) StopToken() StopToken {
	return StopToken{signal: l.signal}
}

// HintAllowedUpdates implements UpdateListener. Push producers choose their
// own filter, so the hint is ignored.
func (l *ChannelListener) HintAllowedUpdates(...update.Kind) {}

// TimeoutHint implements UpdateListener. Push delivery has no cadence.
func (l *ChannelListener) TimeoutHint() (time.Duration, bool) {
	return 0, false
}
