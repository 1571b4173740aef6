package ratelimit

import (
	"sync"
	"time"
)

type ipEntry struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client address
type IPRateLimiter struct {
	limiters   map[string]*ipEntry
	mu         sync.Mutex
	maxTokens  float64
	refillRate float64
	idleTTL    time.Duration
	stopOnce   sync.Once
	stopChan   chan struct{}
}

// NewIPRateLimiter creates a new IPRateLimiter. Buckets idle for longer than
// ten minutes are dropped.
func NewIPRateLimiter(maxTokens, refillRate float64) *IPRateLimiter {
	limiter := &IPRateLimiter{
		limiters:   make(map[string]*ipEntry),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		idleTTL:    10 * time.Minute,
		stopChan:   make(chan struct{}),
	}

	go limiter.cleanupLoop(time.Minute)

	return limiter
}

// Allow checks if a request from the given IP can proceed
func (ipl *IPRateLimiter) Allow(ip string) bool {
	return ipl.getLimiter(ip).Allow()
}

func (ipl *IPRateLimiter) getLimiter(ip string) *TokenBucket {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	entry, exists := ipl.limiters[ip]

	if !exists {
		entry = &ipEntry{bucket: NewTokenBucket(ipl.maxTokens, ipl.refillRate)}
		ipl.limiters[ip] = entry
	}

	entry.lastSeen = time.Now()
	return entry.bucket
}

// Len returns the number of tracked addresses
func (ipl *IPRateLimiter) Len() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	return len(ipl.limiters)
}

// evictIdle drops buckets not used since before the cutoff
func (ipl *IPRateLimiter) evictIdle(cutoff time.Time) int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	removed := 0
	for ip, entry := range ipl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(ipl.limiters, ip)
			removed++
		}
	}
	return removed
}

func (ipl *IPRateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ipl.evictIdle(time.Now().Add(-ipl.idleTTL))
		case <-ipl.stopChan:
			return
		}
	}
}

// Reset forgets every tracked address
func (ipl *IPRateLimiter) Reset() {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	ipl.limiters = make(map[string]*ipEntry)
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (ipl *IPRateLimiter) Stop() {
	ipl.stopOnce.Do(func() { close(ipl.stopChan) })
}
