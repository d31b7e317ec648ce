package util

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	a, b := NewID("req"), NewID("req")
	if a == b || !strings.HasPrefix(a, "req_") {
		t.Fatalf("ids = %q, %q", a, b)
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("unprefixed id has separator")
	}
}

func TestRetryStopsAfterAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		return errors.New("transient")
	})
	if err == nil || calls != 3 {
		t.Fatalf("calls = %d, err = %v", calls, err)
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 5, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("calls = %d, err = %v", calls, err)
	}
}

func TestRetryPermanent(t *testing.T) {
	sentinel := errors.New("bad input")
	calls := 0
	err := Retry(context.Background(), DefaultRetry, func() error {
		calls++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) || calls != 1 {
		t.Fatalf("calls = %d, err = %v", calls, err)
	}
}
