package listener

import (
	"sync"
	"sync/atomic"
)

// Stop protocol states. The external transition is running to requested via
// StopToken.Stop; the engine moves requested to stopped once it observes the
// flag with an empty pending buffer.
const (
	stopRunning int32 = iota
	stopRequested
	stopStopped
)

// stopSignal is the shared flag between the engine (reader) and every
// StopToken copy (writers). Monotonic, so reads need no locking.
type stopSignal struct {
	state atomic.Int32
	once  sync.Once
	done  chan struct{}
}

func newStopSignal() *stopSignal {
	return &stopSignal{done: make(chan struct{})}
}

func (s *stopSignal) requestStop() {
	s.once.Do(func() {
		s.state.CompareAndSwap(stopRunning, stopRequested)
		close(s.done)
	})
}

func (s *stopSignal) markStopped() {
	s.state.Store(stopStopped)
}

func (s *stopSignal) requested() bool {
	return s.state.Load() != stopRunning
}

func (s *stopSignal) stopped() bool {
	return s.state.Load() == stopStopped
}

// wait returns a channel closed once stop has been requested.
func (s *stopSignal) wait() <-chan struct{} {
	return s.done
}

// neverStopped backs tokens that were never attached to a listener.
var neverStopped = make(chan struct{})

// StopToken requests cooperative termination of the listener that issued it.
// Tokens are cheap to copy and safe for concurrent use; every copy shares
// the same underlying signal. The zero token is inert.
type StopToken struct {
	signal *stopSignal
}

// Stop requests termination. Updates the listener already fetched are still
// delivered before the stream ends. Stop never blocks; calls after the first
// are no-ops. There is no wait-for-completion operation: consumers confirm
// the stop by observing end of sequence on the stream.
func (t StopToken) Stop() {
	if t.signal != nil {
		t.signal.requestStop()
	}
}

// IsStopRequested reports whether Stop was called on any copy of this token.
func (t StopToken) IsStopRequested() bool {
	return t.signal != nil && t.signal.requested()
}

// Done returns a channel closed once stop has been requested, for use in
// select loops. Zero tokens return a channel that never closes.
func (t StopToken) Done() <-chan struct{} {
	if t.signal == nil {
		return neverStopped
	}
	return t.signal.wait()
}
