package ratelimit

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// LoadFunc reports the current system load between 0 and 1
type LoadFunc func() float64

// GoroutineLoad uses the goroutine count as a load proxy, saturating at limit
func GoroutineLoad(limit int) LoadFunc {
	return func() float64 {
		load := float64(runtime.NumGoroutine()) / float64(limit)
		return min(load, 1.0)
	}
}

// AdaptiveRateLimiter lowers the global refill rate while the system is loaded
type AdaptiveRateLimiter struct {
	baseLimiter        *TokenBucket
	maxRate            float64
	minRate            float64
	currentRate        float64
	loadThreshold      float64
	currentLoad        float64
	loadFunc           LoadFunc
	requestCount       int64
	successCount       int64
	rejectionCount     int64
	mutex              sync.Mutex
	stopOnce           sync.Once
	stopChan           chan struct{}
	adaptationInterval time.Duration
}

// NewAdaptiveRateLimiter creates a new adaptive rate limiter and starts its
// adaptation loop
func NewAdaptiveRateLimiter(maxTokens, maxRate, minRate float64, loadThreshold float64) *AdaptiveRateLimiter {
	arl := newAdaptiveRateLimiter(maxTokens, maxRate, minRate, loadThreshold, GoroutineLoad(10000))

	go arl.adaptationLoop()

	return arl
}

func newAdaptiveRateLimiter(maxTokens, maxRate, minRate, loadThreshold float64, load LoadFunc) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		baseLimiter:        NewTokenBucket(maxTokens, maxRate),
		maxRate:            maxRate,
		minRate:            minRate,
		currentRate:        maxRate,
		loadThreshold:      loadThreshold,
		loadFunc:           load,
		adaptationInterval: 5 * time.Second,
		stopChan:           make(chan struct{}),
	}
}

// Allow checks if a request can proceed based on the adaptive rate limit
func (arl *AdaptiveRateLimiter) Allow() bool {
	atomic.AddInt64(&arl.requestCount, 1)

	if arl.baseLimiter.Allow() {
		atomic.AddInt64(&arl.successCount, 1)
		return true
	}

	atomic.AddInt64(&arl.rejectionCount, 1)
	return false
}

func (arl *AdaptiveRateLimiter) adaptationLoop() {
	ticker := time.NewTicker(arl.adaptationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			arl.adapt()
		case <-arl.stopChan:
			return
		}
	}
}

// adapt keeps the full rate below the load threshold and scales it down
// linearly to minRate as load approaches 1
func (arl *AdaptiveRateLimiter) adapt() {
	arl.mutex.Lock()
	defer arl.mutex.Unlock()

	arl.currentLoad = arl.loadFunc()
	newRate := arl.maxRate

	if arl.currentLoad > arl.loadThreshold && arl.loadThreshold < 1.0 {
		loadFactor := min((arl.currentLoad-arl.loadThreshold)/(1.0-arl.loadThreshold), 1.0)
		newRate = arl.maxRate - (arl.maxRate-arl.minRate)*loadFactor
	}

	arl.currentRate = newRate
	arl.baseLimiter.SetRefillRate(newRate)
}

// Stop stops the adaptation loop. It is safe to call more than once.
func (arl *AdaptiveRateLimiter) Stop() {
	arl.stopOnce.Do(func() { close(arl.stopChan) })
}

// GetMetrics returns metrics about the rate limiter
func (arl *AdaptiveRateLimiter) GetMetrics() map[string]interface{} {
	arl.mutex.Lock()
	currentRate, currentLoad := arl.currentRate, arl.currentLoad
	arl.mutex.Unlock()

	return map[string]interface{}{
		"current_rate":     currentRate,
		"max_rate":         arl.maxRate,
		"min_rate":         arl.minRate,
		"current_load":     currentLoad,
		"load_threshold":   arl.loadThreshold,
		"request_count":    atomic.LoadInt64(&arl.requestCount),
		"success_count":    atomic.LoadInt64(&arl.successCount),
		"rejection_count":  atomic.LoadInt64(&arl.rejectionCount),
		"available_tokens": arl.baseLimiter.Available(),
	}
}

// Reset restores the full rate and clears the counters
func (arl *AdaptiveRateLimiter) Reset() {
	arl.mutex.Lock()
	defer arl.mutex.Unlock()

	arl.baseLimiter.Reset()
	arl.baseLimiter.SetRefillRate(arl.maxRate)
	arl.currentRate = arl.maxRate

	atomic.StoreInt64(&arl.requestCount, 0)
	atomic.StoreInt64(&arl.successCount, 0)
	atomic.StoreInt64(&arl.rejectionCount, 0)
}
