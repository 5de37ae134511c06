package sink

import (
	"testing"
	"time"
)

func TestNullSinkCompletesOnce(t *testing.T) {
	done := make(chan error, 2)
	s := &NullSink{Delay: 10 * time.Millisecond}

	h, err := s.Play("stream://test", DefaultOptions(), func(err error) {
		done <- err
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("completion error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	// A late Stop must not fire the callback again.
	h.Stop()
	select {
	case <-done:
		t.Fatal("done invoked twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNullSinkStopCompletesEarly(t *testing.T) {
	done := make(chan error, 2)
	s := &NullSink{Delay: time.Hour}

	h, err := s.Play("stream://test", DefaultOptions(), func(err error) {
		done <- err
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}

	h.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("completion error after stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stopped completion")
	}
	h.Stop()
	select {
	case <-done:
		t.Fatal("done invoked twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFallbackChainOrder(t *testing.T) {
	chain := FallbackChain()
	if len(chain) != 3 {
		t.Fatalf("expected 3 fallback levels, got %d", len(chain))
	}
	if chain[0] != DefaultOptions() {
		t.Fatalf("default options should be the first fallback level")
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].BufferMS <= chain[i-1].BufferMS {
			t.Fatalf("fallback level %d should buffer more than level %d", i, i-1)
		}
	}
	last := chain[len(chain)-1]
	if last.Reconnect {
		t.Fatalf("most conservative level should not reconnect")
	}
}
