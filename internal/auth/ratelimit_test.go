package auth

import (
	"testing"
	"time"
)

func TestFixedWindowLimit(t *testing.T) {
	l := NewFixedWindowLimiter(true, 3, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.setClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1", 0) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1", 0) {
		t.Fatal("4th request in window should be rejected")
	}

	// Different key, same window.
	if !l.Allow("10.0.0.2", 0) {
		t.Fatal("other IP should not share the counter")
	}
	if !l.Allow("10.0.0.1", 42) {
		t.Fatal("authenticated key should not share the bare-IP counter")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("10.0.0.1", 0) {
		t.Fatal("1st request after window elapse should be allowed")
	}
}

func TestFixedWindowDisabled(t *testing.T) {
	l := NewFixedWindowLimiter(false, 1, time.Minute)
	for i := 0; i < 10; i++ {
		if !l.Allow("10.0.0.1", 0) {
			t.Fatal("disabled limiter must admit everything")
		}
	}
}

func TestPurgeUser(t *testing.T) {
	l := NewFixedWindowLimiter(true, 2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.setClock(func() time.Time { return now })

	l.Allow("10.0.0.1", 42)
	l.Allow("10.0.0.1", 42)
	if l.Allow("10.0.0.1", 42) {
		t.Fatal("3rd request should be rejected")
	}

	l.PurgeUser(42)
	if !l.Allow("10.0.0.1", 42) {
		t.Fatal("counter should reset after purge")
	}
}

func TestLimiterGC(t *testing.T) {
	l := NewFixedWindowLimiter(true, 5, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.setClock(func() time.Time { return now })

	l.Allow("10.0.0.1", 0)
	l.Allow("10.0.0.2", 0)

	now = now.Add(3 * time.Minute)
	l.Allow("10.0.0.3", 0)

	l.mu.Lock()
	n := len(l.counters)
	l.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected stale counters swept, have %d", n)
	}
}
