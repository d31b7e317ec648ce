package util

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	Attempts     uint64
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var DefaultRetry = RetryPolicy{Attempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// Permanent marks err so Retry returns it without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done.
func Retry(ctx context.Context, policy RetryPolicy, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if policy.InitialDelay > 0 {
		b.InitialInterval = policy.InitialDelay
	}
	if policy.MaxDelay > 0 {
		b.MaxInterval = policy.MaxDelay
	}
	b.MaxElapsedTime = 0

	attempts := policy.Attempts
	if attempts == 0 {
		attempts = 1
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx))
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
