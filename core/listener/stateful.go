package listener

import (
	"context"
	"time"

	"github.com/berkus/teloxide/core/update"
)

// StatefulListener assembles an UpdateListener from caller-supplied
// callbacks. It is the seam for custom transports that already produce
// updates some other way (a webhook receiver, a replay log) and only need
// the listener surface. NextFunc and StopTokenFunc are required; the hint
// and timeout callbacks default to "ignored" and "no hint".
type StatefulListener struct {
	NextFunc        func(ctx context.Context) (Result, bool)
	StopTokenFunc   func() StopToken
	HintFunc        func(kinds ...update.Kind)
	TimeoutHintFunc func() (time.Duration, bool)
}

// Next implements Stream. A StatefulListener without a NextFunc reports a
// permanently ended sequence.
func (s *StatefulListener) Next(ctx context.Context) (Result, bool) {
	if s == nil || s.NextFunc == nil {
		return Result{}, false
	}
	return s.NextFunc(ctx)
}

// StopToken implements UpdateListener. Without a StopTokenFunc it returns
// an inert zero token.
func (s *StatefulListener) StopToken() StopToken {
	if s == nil || s.StopTokenFunc == nil {
		return StopToken{}
	}
	return s.StopTokenFunc()
}

// HintAllowedUpdates implements UpdateListener; the hint is dropped unless a
// HintFunc was supplied.
func (s *StatefulListener) HintAllowedUpdates(kinds ...update.Kind) {
	if s == nil || s.HintFunc == nil {
		return
	}
	s.HintFunc(kinds...)
}

// TimeoutHint implements UpdateListener.
func (s *StatefulListener) TimeoutHint() (time.Duration, bool) {
	if s == nil || s.TimeoutHintFunc == nil {
		return 0, false
	}
	return s.TimeoutHintFunc()
}
