package concurrency

import (
	"testing"
	"time"
)

func TestNewIdleStrategySelection(t *testing.T) {
	cases := []struct {
		ms   int
		name string
	}{
		{0, "busy-spin"},
		{5, "sleeping"},
		{-1, "backoff"},
	}
	for _, tc := range cases {
		if got := NewIdleStrategy(tc.ms).Name(); got != tc.name {
			t.Errorf("NewIdleStrategy(%d) = %s, want %s", tc.ms, got, tc.name)
		}
	}
	s, ok := NewIdleStrategy(5).(*SleepingIdle)
	if !ok || s.Period() != 5*time.Millisecond {
		t.Fatalf("expected 5ms sleeping strategy, got %#v", s)
	}
}

func TestSleepingIdleSleepsOnlyWhenEmpty(t *testing.T) {
	var slept []time.Duration
	s := NewSleepingIdle(3 * time.Millisecond)
	s.sleep = func(d time.Duration) { slept = append(slept, d) }

	s.Idle(4)
	s.Idle(0)
	s.Idle(1)
	s.Idle(0)

	if len(slept) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(slept))
	}
	for _, d := range slept {
		if d != 3*time.Millisecond {
			t.Errorf("unexpected sleep %v", d)
		}
	}
}

func TestBackoffIdleEscalatesAndResets(t *testing.T) {
	var parks []time.Duration
	b := NewBackoffIdle(BackoffConfig{MaxSpins: 2, MaxYields: 1, MinPark: time.Microsecond, MaxPark: 4 * time.Microsecond})
	b.sleep = func(d time.Duration) { parks = append(parks, d) }

	for i := 0; i < 12; i++ {
		b.Idle(0)
	}
	if len(parks) == 0 {
		t.Fatal("expected backoff to reach parking")
	}
	if last := parks[len(parks)-1]; last != 4*time.Microsecond {
		t.Errorf("park not capped: %v", last)
	}

	b.Idle(3)
	if b.state != backoffNotIdle || b.park != time.Microsecond {
		t.Errorf("work did not reset backoff: state=%d park=%v", b.state, b.park)
	}
}
