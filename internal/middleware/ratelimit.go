package middleware

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxAttemptsPerMinute is the default rate limit for failed
	// auth attempts per IP.
	DefaultMaxAttemptsPerMinute = 10

	// DefaultMaxTrackedIPs bounds the number of tracked IPs to prevent
	// unbounded memory use.
	DefaultMaxTrackedIPs = 10000

	cleanupInterval = time.Minute
	staleThreshold  = 5 * time.Minute
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks per-IP failed authentication attempts.
type RateLimiter struct {
	mu            sync.Mutex
	entries       map[string]*ipEntry
	maxPerMinute  int
	maxTrackedIPs int
	cancel        context.CancelFunc
}

// NewRateLimiter creates a per-IP rate limiter with the given max attempts
// per minute. Pass 0 to use DefaultMaxAttemptsPerMinute.
func NewRateLimiter(ctx context.Context, maxPerMinute int) *RateLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultMaxAttemptsPerMinute
	}
	ctx, cancel := context.WithCancel(ctx)
	rl := &RateLimiter{
		entries:       make(map[string]*ipEntry),
		maxPerMinute:  maxPerMinute,
		maxTrackedIPs: DefaultMaxTrackedIPs,
		cancel:        cancel,
	}
	go rl.cleanup(ctx)
	return rl
}

// Allow reports whether the given IP may make another auth attempt.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[ip]
	if !ok {
		return true // no prior failures recorded
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// RecordFailure records a failed auth attempt for the given IP.
func (rl *RateLimiter) RecordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e := rl.getOrCreateEntryLocked(ip, time.Now())
	e.limiter.Allow() // consume a token
}

// Stop terminates the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.cancel()
}

func (rl *RateLimiter) getOrCreateEntryLocked(ip string, now time.Time) *ipEntry {
	e, ok := rl.entries[ip]
	if ok {
		e.lastSeen = now
		return e
	}

	if len(rl.entries) >= rl.maxTrackedIPs {
		rl.evictOldestLocked()
	}

	e = &ipEntry{
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.maxPerMinute)), rl.maxPerMinute),
		lastSeen: now,
	}
	rl.entries[ip] = e
	return e
}

func (rl *RateLimiter) evictOldestLocked() {
	var oldestIP string
	var oldest time.Time
	for ip, e := range rl.entries {
		if oldestIP == "" || e.lastSeen.Before(oldest) {
			oldestIP = ip
			oldest = e.lastSeen
		}
	}
	if oldestIP != "" {
		delete(rl.entries, oldestIP)
	}
}

func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-staleThreshold)
			rl.mu.Lock()
			for ip, e := range rl.entries {
				if e.lastSeen.Before(cutoff) {
					delete(rl.entries, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// ClientIP extracts the client IP from a RemoteAddr "host:port" string,
// falling back to the raw string when it does not parse.
func ClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
