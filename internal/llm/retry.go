package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Retrying retries upstream failures with exponential backoff.
// Timeouts, empty completions and anything the caller fails to parse are returned as-is.
type Retrying struct {
	next     Completer
	attempts int
	backoff  time.Duration
	after    func(time.Duration) <-chan time.Time
}

// NewRetrying wraps a Completer. attempts counts the first call.
func NewRetrying(next Completer, attempts int, backoff time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		next:     next,
		attempts: attempts,
		backoff:  backoff,
		after:    time.After,
	}
}

// Complete calls the wrapped Completer until it succeeds or a non-retryable error occurs
func (r *Retrying) Complete(ctx context.Context, req Request) (string, error) {
	delay := r.backoff
	for attempt := 1; ; attempt++ {
		text, err := r.next.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrUpstreamUnavailable) || attempt >= r.attempts {
			return "", err
		}

		slog.Warn("Model call failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return "", classify(ctx.Err())
		case <-r.after(delay):
		}
		delay *= 2
	}
}

// Close closes the wrapped Completer
func (r *Retrying) Close() error {
	return r.next.Close()
}
