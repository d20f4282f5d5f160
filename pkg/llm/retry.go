package llm

import (
	"time"
)

// RetryPolicy controls how rate-limited or transiently failing provider
// calls are retried: a small fixed number of attempts with a fixed sleep
// between them. Exhaustion surfaces the last error as fatal.
type RetryPolicy struct {
	MaxAttempts       int
	Delay             time.Duration
	RetryableStatuses []int
}

// DefaultRetryPolicy returns the policy used against the Gemini API:
// 3 attempts with a fixed 65s delay, long enough for a one-minute quota
// window to reset, retrying on 429/500/503/504.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		Delay:             65 * time.Second,
		RetryableStatuses: []int{429, 500, 503, 504},
	}
}

// Retryable reports whether the HTTP status code is in the retryable set.
func (p *RetryPolicy) Retryable(status int) bool {
	for _, s := range p.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Execute runs fn up to MaxAttempts times, sleeping the fixed delay between
// retries. statusOf extracts an HTTP status from the error; a non-retryable
// status stops immediately. Returns nil on success or the last error.
func (p *RetryPolicy) Execute(fn func() error, statusOf func(error) int) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.Retryable(statusOf(err)) {
			return err
		}
		if attempt < p.MaxAttempts {
			time.Sleep(p.Delay)
		}
	}
	return lastErr
}
