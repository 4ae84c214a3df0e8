package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/omniverse/exception"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	MaxRequests     int           // Maximum number of requests allowed
	WindowSize      time.Duration // Time window for rate limiting
	CleanupInterval time.Duration // How often to clean up expired entries
}

// DefaultConfig returns a default configuration
func DefaultConfig() *RateLimiterConfig {
	return PerMinute(120)
}

// PerMinute allows n requests per key in any sliding minute
func PerMinute(n int) *RateLimiterConfig {
	return &RateLimiterConfig{
		MaxRequests:     n,
		WindowSize:      time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiter implements sliding window rate limiting
type RateLimiter struct {
	config   *RateLimiterConfig
	requests map[string][]time.Time // key -> request timestamps, oldest first
	mu       sync.Mutex
	now      func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewRateLimiter creates a new rate limiter with the given configuration
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultConfig()
	}

	rl := &RateLimiter{
		config:      config,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		exception.SafeGo("RateLimiterCleanup", rl.cleanupExpiredEntries)
	}

	return rl
}

// Allow records a request from key and reports whether it fits in the window
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	valid := rl.prune(key, now)
	if len(valid) >= rl.config.MaxRequests {
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

// Count returns the number of requests from key inside the current window
func (rl *RateLimiter) Count(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.prune(key, rl.now()))
}

// prune drops expired timestamps of key; callers hold mu
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	requests := rl.requests[key]
	cutoff := now.Add(-rl.config.WindowSize)
	i := 0
	for i < len(requests) && !requests[i].After(cutoff) {
		i++
	}
	valid := requests[i:]
	if len(valid) == 0 {
		delete(rl.requests, key)
		return nil
	}
	rl.requests[key] = valid
	return valid
}

// Reset removes all entries for a given key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.requests, key)
}

// cleanupExpiredEntries periodically removes expired entries to prevent memory leaks
func (rl *RateLimiter) cleanupExpiredEntries() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key := range rl.requests {
		rl.prune(key, now)
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// CallerLimiter applies one window per client IP and one per declared caller address
type CallerLimiter struct {
	ipLimiter     *RateLimiter
	callerLimiter *RateLimiter
}

// NewCallerLimiter returns nil when perMinute is not positive, meaning no limit
func NewCallerLimiter(perMinute int) *CallerLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &CallerLimiter{
		ipLimiter:     NewRateLimiter(PerMinute(perMinute)),
		callerLimiter: NewRateLimiter(PerMinute(perMinute)),
	}
}

// AllowIP returns a *RateLimitError when ip has exhausted its window. A nil limiter allows everything.
func (cl *CallerLimiter) AllowIP(ip string) error {
	if cl == nil || ip == "" {
		return nil
	}
	if !cl.ipLimiter.Allow(ip) {
		return NewRateLimitError("ip", ip, "too many requests")
	}
	return nil
}

// AllowCaller is AllowIP for the caller address named by a mutating call.
func (cl *CallerLimiter) AllowCaller(caller string) error {
	if cl == nil || caller == "" {
		return nil
	}
	if !cl.callerLimiter.Allow(caller) {
		return NewRateLimitError("caller", caller, "too many requests")
	}
	return nil
}

func (cl *CallerLimiter) Stop() {
	if cl == nil {
		return
	}
	cl.ipLimiter.Stop()
	cl.callerLimiter.Stop()
}

// RateLimitError represents a rate limit error
type RateLimitError struct {
	Type    string
	Key     string
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s '%s': %s", e.Type, e.Key, e.Message)
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(rateType, key, message string) *RateLimitError {
	return &RateLimitError{
		Type:    rateType,
		Key:     key,
		Message: message,
	}
}
