// README: Timer registry tests.
package assignment

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFires(t *testing.T) {
	r := newTimerRegistry()
	defer r.close()

	var fired atomic.Int32
	r.schedule("k", 10*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
}

func TestTimerCancel(t *testing.T) {
	r := newTimerRegistry()
	defer r.close()

	var fired atomic.Int32
	r.schedule("k", 20*time.Millisecond, func() { fired.Add(1) })
	r.cancel("k")

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled timer fired %d times", fired.Load())
	}

	// Cancelling again, or after fire, is a no-op.
	r.cancel("k")
}

func TestScheduleReplacesSameKey(t *testing.T) {
	r := newTimerRegistry()
	defer r.close()

	var first, second atomic.Int32
	r.schedule("k", 20*time.Millisecond, func() { first.Add(1) })
	r.schedule("k", 10*time.Millisecond, func() { second.Add(1) })

	time.Sleep(60 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatal("replaced timer still fired")
	}
	if second.Load() != 1 {
		t.Fatalf("replacement fired %d times, want 1", second.Load())
	}
}

func TestCloseStopsEverything(t *testing.T) {
	r := newTimerRegistry()

	var fired atomic.Int32
	r.schedule("a", 10*time.Millisecond, func() { fired.Add(1) })
	r.schedule("b", 10*time.Millisecond, func() { fired.Add(1) })
	r.close()

	// Scheduling after close is rejected.
	r.schedule("c", 5*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("timers fired after close: %d", fired.Load())
	}
}
