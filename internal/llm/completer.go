package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUpstreamUnavailable covers transport and auth failures talking to the model service.
	ErrUpstreamUnavailable = errors.New("model service unavailable")

	// ErrEmptyCompletion means the call succeeded but carried no usable content.
	ErrEmptyCompletion = errors.New("model returned an empty completion")

	// ErrTimeout means the model call exceeded its deadline.
	ErrTimeout = errors.New("model call timed out")

	// ErrRequestRejected means the model service refused the request itself,
	// such as an unknown model or an invalid parameter. It is never retried.
	ErrRequestRejected = errors.New("model service rejected the request")
)

// Request holds a single-prompt completion call and its decoding parameters.
type Request struct {
	Prompt      string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Completer defines the interface for text-completion backends
type Completer interface {
	// Complete sends exactly one request and returns the first completion's text
	Complete(ctx context.Context, req Request) (string, error)
	// Close releases any resources held by the backend
	Close() error
}

// classify maps a transport error onto the model error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}

// classifyStatus maps a non-200 HTTP status onto the model error taxonomy.
// Client errors other than auth and rate limiting are not retryable.
func classifyStatus(code int, detail string) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, code, detail)
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: status %d: %s", ErrRequestRejected, code, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, code, detail)
	}
}
