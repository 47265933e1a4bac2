package middleware

import (
	"context"
	"fmt"
	"testing"
)

func newTestLimiter(t *testing.T, maxPerMinute int) *RateLimiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rl := NewRateLimiter(ctx, maxPerMinute)
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter_AllowsUnknownIP(t *testing.T) {
	rl := newTestLimiter(t, 3)
	if !rl.Allow("203.0.113.7") {
		t.Fatal("IP with no recorded failures must be allowed")
	}
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := newTestLimiter(t, 3)
	const ip = "203.0.113.7"

	for i := 0; i < 3; i++ {
		rl.RecordFailure(ip)
	}
	if rl.Allow(ip) {
		t.Fatal("IP must be blocked after exhausting its burst")
	}
}

func TestRateLimiter_IPsAreIndependent(t *testing.T) {
	rl := newTestLimiter(t, 2)

	for i := 0; i < 5; i++ {
		rl.RecordFailure("203.0.113.7")
	}
	if !rl.Allow("198.51.100.9") {
		t.Fatal("failures for one IP must not block another")
	}
}

func TestRateLimiter_EvictsWhenFull(t *testing.T) {
	rl := newTestLimiter(t, 2)
	rl.maxTrackedIPs = 5

	for i := 0; i < 20; i++ {
		rl.RecordFailure(fmt.Sprintf("203.0.113.%d", i))
	}

	rl.mu.Lock()
	tracked := len(rl.entries)
	rl.mu.Unlock()
	if tracked > 5 {
		t.Fatalf("tracked IPs = %d, want at most 5", tracked)
	}
}

func TestRateLimiter_ZeroUsesDefault(t *testing.T) {
	rl := newTestLimiter(t, 0)
	if rl.maxPerMinute != DefaultMaxAttemptsPerMinute {
		t.Fatalf("maxPerMinute = %d, want %d", rl.maxPerMinute, DefaultMaxAttemptsPerMinute)
	}
}
