package callout

import (
	"testing"
	"time"

	"synch/defs"
	"synch/sched"
	"synch/wait"
)

func TestCalloutFiresAtDeadline(t *testing.T) {
	clock := sched.NewMonotonic()
	c := New(clock)

	if c.Armed() {
		t.Fatal("fresh callout should not be armed")
	}

	deadline := clock.Now() + int64(20*time.Millisecond)
	c.Set(deadline)
	if !c.Armed() {
		t.Fatal("expected Armed() to report true right after Set")
	}

	ts := wait.NewThreadState(nil, clock)
	start := time.Now()
	err := wait.Wait1(ts, c.Object(), "test.callout", false, defs.AbstimeForever)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 15*time.Millisecond {
		t.Fatalf("callout fired too early: %v", elapsed)
	}
	if c.Armed() {
		t.Fatal("expected Armed() to report false after firing")
	}
}

func TestCalloutResetDisarms(t *testing.T) {
	clock := sched.NewMonotonic()
	c := New(clock)

	c.Set(clock.Now() + int64(10*time.Millisecond))
	c.Reset()
	time.Sleep(20 * time.Millisecond)

	ts := wait.NewThreadState(nil, clock)
	_, err := wait.Waitn(ts, []*wait.Object{c.Object()}, "test.reset", false, defs.AbstimeNever)
	if err != defs.EWOULDBLOCK {
		t.Fatalf("expected EWOULDBLOCK after reset, got %v", err)
	}
}

func TestCalloutReArmReschedules(t *testing.T) {
	clock := sched.NewMonotonic()
	c := New(clock)

	c.Set(clock.Now() + int64(5*time.Millisecond))
	c.Set(clock.Now() + int64(30*time.Millisecond))

	ts := wait.NewThreadState(nil, clock)
	start := time.Now()
	err := wait.Wait1(ts, c.Object(), "test.rearm", false, defs.AbstimeForever)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 25*time.Millisecond {
		t.Fatalf("callout fired on the stale schedule, elapsed=%v", elapsed)
	}
}

func TestCalloutStickyUntilReset(t *testing.T) {
	clock := sched.NewMonotonic()
	c := New(clock)
	c.Set(clock.Now())

	time.Sleep(5 * time.Millisecond)

	for i := 0; i < 3; i++ {
		ts := wait.NewThreadState(nil, clock)
		if _, err := wait.Waitn(ts, []*wait.Object{c.Object()}, "test.sticky", false, defs.AbstimeNever); err != nil {
			t.Fatalf("iteration %d: expected immediate acquisition, got %v", i, err)
		}
	}
}
