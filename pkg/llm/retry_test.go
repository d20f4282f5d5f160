package llm

import (
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()

	for _, status := range []int{429, 500, 503, 504} {
		if !policy.Retryable(status) {
			t.Errorf("expected status %d to be retryable", status)
		}
	}
	for _, status := range []int{0, 400, 401, 403, 404} {
		if policy.Retryable(status) {
			t.Errorf("expected status %d to be non-retryable", status)
		}
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := DefaultRetryPolicy()
	if policy.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", policy.MaxAttempts)
	}
	if policy.Delay != 65*time.Second {
		t.Errorf("expected 65s delay, got %v", policy.Delay)
	}
}

func TestRetryPolicyExecuteSuccess(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:       3,
		Delay:             time.Millisecond,
		RetryableStatuses: []int{429},
	}
	calls := 0

	err := policy.Execute(func() error {
		calls++
		if calls < 3 {
			return errors.New("rate limited")
		}
		return nil
	}, func(error) int { return 429 })

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicyExecuteNonRetryable(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:       3,
		Delay:             time.Millisecond,
		RetryableStatuses: []int{429},
	}
	calls := 0

	err := policy.Execute(func() error {
		calls++
		return errors.New("bad request")
	}, func(error) int { return 400 })

	if err == nil {
		t.Error("expected error for non-retryable failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestRetryPolicyExecuteAllFail(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:       2,
		Delay:             time.Millisecond,
		RetryableStatuses: []int{503},
	}
	calls := 0

	err := policy.Execute(func() error {
		calls++
		return errors.New("service unavailable")
	}, func(error) int { return 503 })

	if err == nil {
		t.Error("expected error after all attempts exhausted")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
