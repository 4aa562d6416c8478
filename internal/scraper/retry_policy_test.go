package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialRetryPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, attempt: 1, want: false},
		{name: "transient error below cap", err: errors.New("boom"), attempt: 1, want: true},
		{name: "status error below cap", err: &StatusError{Player: "Bob", StatusCode: 502}, attempt: 2, want: true},
		{name: "timeout is retryable", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), attempt: 1, want: true},
		{name: "attempt cap reached", err: errors.New("boom"), attempt: 3, want: false},
		{name: "caller canceled", err: fmt.Errorf("fetch: %w", context.Canceled), attempt: 1, want: false},
		{name: "malformed payload is terminal", err: fmt.Errorf("parse: %w", ErrMalformedPayload), attempt: 1, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, policy.ShouldRetry(tc.err, tc.attempt))
		})
	}
}

func TestExponentialRetryPolicy_BackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	ceiling := 1 * time.Second
	policy := NewExponentialRetryPolicy(5, base, ceiling)

	for attempt := 1; attempt <= 6; attempt++ {
		wait := policy.Backoff(attempt)
		require.GreaterOrEqual(t, wait, time.Duration(0))
		require.LessOrEqual(t, wait, ceiling)
	}

	// The first backoff is at least half of the doubled base delay.
	first := policy.Backoff(1)
	require.GreaterOrEqual(t, first, base)
}

func TestNewExponentialRetryPolicy_Defaults(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(0, 0, 0)
	require.False(t, policy.ShouldRetry(errors.New("boom"), 3))
	require.True(t, policy.ShouldRetry(errors.New("boom"), 2))
}
