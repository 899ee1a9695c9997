package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(window time.Duration) (*Limiter, *time.Time) {
	l := New(window)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowExhaustsAndRefills(t *testing.T) {
	l, now := newTestLimiter(time.Minute)
	defer l.Close()

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1", 3) {
			t.Fatalf("request %d rejected within limit", i+1)
		}
	}
	if l.Allow("10.0.0.1", 3) {
		t.Fatal("fourth request allowed")
	}
	if !l.Allow("10.0.0.2", 3) {
		t.Error("keys must be limited independently")
	}

	*now = now.Add(20 * time.Second)
	if !l.Allow("10.0.0.1", 3) {
		t.Error("one token should have refilled after a third of the window")
	}
	if l.Allow("10.0.0.1", 3) {
		t.Error("only one token should have refilled")
	}
}

func TestNonPositiveLimitAlwaysAllows(t *testing.T) {
	l, _ := newTestLimiter(time.Minute)
	defer l.Close()
	for i := 0; i < 100; i++ {
		if !l.Allow("k", 0) {
			t.Fatal("limit 0 rejected a request")
		}
	}
}

func TestSweepDropsIdleKeys(t *testing.T) {
	l, now := newTestLimiter(time.Minute)
	defer l.Close()
	l.Allow("idle", 1)
	*now = now.Add(3 * time.Minute)
	l.sweep()
	l.mu.Lock()
	n := len(l.entries)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("entries after sweep = %d", n)
	}
}
