package gateway

import (
	"sync"
	"time"
)

const (
	defaultRequestsPerMinute = 60
	defaultMaxConcurrent     = 10
	rateWindow               = time.Minute

	reasonTooManyConcurrent = "too many concurrent requests"
	reasonRateLimited       = "rate limit exceeded"
)

// ClientRateLimiter implements sliding window rate limiting per client.
// Session operations are slow backend round trips, so the concurrency cap
// matters as much as the request rate.
type ClientRateLimiter struct {
	mu                 sync.Mutex
	requestsPerMinute  int
	maxConcurrent      int
	requests           []time.Time
	concurrentRequests int
	now                func() time.Time
}

// NewClientRateLimiter creates a new rate limiter with default limits
func NewClientRateLimiter() *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(defaultRequestsPerMinute, defaultMaxConcurrent)
}

// NewClientRateLimiterWithLimits creates a rate limiter with custom limits
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// prune drops requests that left the window. Callers hold mu.
func (r *ClientRateLimiter) prune() {
	cutoff := r.now().Add(-rateWindow)
	kept := r.requests[:0]
	for _, reqTime := range r.requests {
		if reqTime.After(cutoff) {
			kept = append(kept, reqTime)
		}
	}
	r.requests = kept
}

// CheckRequestAllowed checks if a request is allowed under rate limits
func (r *ClientRateLimiter) CheckRequestAllowed() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrentRequests >= r.maxConcurrent {
		return false, reasonTooManyConcurrent
	}

	r.prune()
	if len(r.requests) >= r.requestsPerMinute {
		return false, reasonRateLimited
	}

	return true, ""
}

// RecordRequestStart records the start of a request
func (r *ClientRateLimiter) RecordRequestStart() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, r.now())
	r.concurrentRequests++
}

// RecordRequestEnd records the end of a request
func (r *ClientRateLimiter) RecordRequestEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrentRequests > 0 {
		r.concurrentRequests--
	}
}

// UpdateLimits updates the rate limits
func (r *ClientRateLimiter) UpdateLimits(requestsPerMinute, maxConcurrent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requestsPerMinute = requestsPerMinute
	r.maxConcurrent = maxConcurrent
}

// GetStats returns current rate limiter statistics
func (r *ClientRateLimiter) GetStats() (requestCount, concurrentCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	return len(r.requests), r.concurrentRequests
}
