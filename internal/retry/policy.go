// Package retry decides whether a failed request should be retried and how
// long to wait before the next attempt.
//
// Everything in this package is free of I/O: callers feed it attempt numbers,
// status codes, headers and errors, and get back durations and decisions.
package retry

import (
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	// MinDelay is the floor for any computed wait and for the base delay.
	MinDelay = 100 * time.Millisecond

	// MaxDelay caps every computed wait, Retry-After included.
	MaxDelay = 120 * time.Second

	// JitterRatio is the +/- fraction applied to the exponential term.
	JitterRatio = 0.25

	// RateLimitFloor applies to 429 responses.
	RateLimitFloor = 5 * time.Second

	// TransientFloor applies to 408, 425 and 503 responses.
	TransientFloor = 1200 * time.Millisecond

	// RateLimitCooldown is the minimum gate extension when retries run out
	// on a rate-limit signal.
	RateLimitCooldown = 30 * time.Second

	// NetworkCooldown is the minimum gate extension when retries run out on
	// a retryable network failure.
	NetworkCooldown = 15 * time.Second
)

// Policy computes backoff durations.
//
// The zero value is usable: BaseDelay is floored at MinDelay and Jitter falls
// back to math/rand/v2.
type Policy struct {
	// BaseDelay is the delay of attempt 0 before jitter.
	BaseDelay time.Duration

	// Jitter returns a uniform value in [-span, span]. Tests replace it to
	// make delays deterministic.
	Jitter func(span int64) int64
}

// NewPolicy returns a Policy with the given base delay.
func NewPolicy(base time.Duration) *Policy {
	return &Policy{BaseDelay: base}
}

// Delay returns how long to wait after a failed attempt.
//
// attempt is zero-based. status is the HTTP (or body-embedded) status, 0 when
// the failure was not an HTTP response. retryAfter is the server-provided
// hint, negative when absent.
func (p *Policy) Delay(attempt int, status int, retryAfter time.Duration) time.Duration {
	base := max(p.BaseDelay, MinDelay).Milliseconds()

	exp := MaxDelay.Milliseconds()
	if attempt < 31 {
		exp = min(exp, base<<attempt)
	}
	if exp <= 0 {
		exp = MaxDelay.Milliseconds()
	}

	span := max(1, int64(float64(exp)*JitterRatio))
	wait := time.Duration(exp+p.jitter(span)) * time.Millisecond
	wait = max(wait, MinDelay)

	switch status {
	case http.StatusTooManyRequests:
		wait = max(wait, RateLimitFloor)
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusServiceUnavailable:
		wait = max(wait, TransientFloor)
	}

	if retryAfter >= 0 {
		wait = max(wait, min(MaxDelay, retryAfter))
	}

	return min(MaxDelay, wait)
}

// ExhaustedCooldown returns the gate extension to apply when the last
// attempt failed with a rate-limit status.
func (p *Policy) ExhaustedCooldown(attempt int, status int) time.Duration {
	return max(RateLimitCooldown, p.Delay(attempt, status, -1))
}

// ExhaustedNetworkCooldown returns the gate extension to apply when the last
// attempt failed with a retryable network error.
func (p *Policy) ExhaustedNetworkCooldown(attempt int) time.Duration {
	return max(NetworkCooldown, p.Delay(attempt, 0, -1))
}

func (p *Policy) jitter(span int64) int64 {
	if p.Jitter != nil {
		return p.Jitter(span)
	}
	return rand.Int64N(2*span+1) - span
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500 && status <= 599
}

// RateLimitStatus reports whether status is one of the overload signals that
// carry Retry-After and cool down the shared gate on exhaustion.
func RateLimitStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}
