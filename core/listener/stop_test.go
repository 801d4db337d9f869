package listener_test

import (
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"

	"github.com/berkus/teloxide/core/listener"
	"github.com/berkus/teloxide/internal/testutil/listenertest"
)

func TestStopTokenZeroValueIsInert(t *testing.T) {
	var token listener.StopToken
	token.Stop()
	require.False(t, token.IsStopRequested())
	select {
	case <-token.Done():
		t.Fatal("zero token must never report done")
	default:
	}
}

func TestStopTokenCopiesShareOneSignal(t *testing.T) {
	p := listener.Polling(listenertest.NewScriptedFetcher())
	first := p.StopToken()
	second := first

	second.Stop()

	require.True(t, first.IsStopRequested())
	require.True(t, p.StopToken().IsStopRequested(), "tokens issued later observe the same stop")
}

func TestStopTokenConcurrentStops(t *testing.T) {
	p := listener.Polling(listenertest.NewScriptedFetcher())
	token := p.StopToken()

	var wg conc.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Go(token.Stop)
	}
	wg.Wait()

	require.True(t, token.IsStopRequested())
	awaitEnd(t, p, time.Second)
}

func TestStopTokenDoneUnblocksWaiters(t *testing.T) {
	p := listener.Polling(listenertest.NewScriptedFetcher())
	token := p.StopToken()

	unblocked := make(chan struct{})
	go func() {
		<-token.Done()
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("done channel closed before stop was requested")
	case <-time.After(10 * time.Millisecond):
	}

	token.Stop()
	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("done channel did not unblock its waiter")
	}
}
