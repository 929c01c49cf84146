package provider

import (
	"context"
	"errors"
	"fmt"

	"chat-relay/internal/models"
)

// ErrUpstreamTimeout indicates the upstream call did not finish in time.
var ErrUpstreamTimeout = errors.New("upstream request timed out")

// Provider sends a composed prompt to a generative backend and returns its reply text.
type Provider interface {
	Name() string
	Generate(ctx context.Context, payload models.UpstreamPayload, credential string) (string, error)
}

// UpstreamError is a failure reported by, or on the way to, the upstream backend.
// Message is safe to show to callers.
type UpstreamError struct {
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "upstream error: " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes timeout errors match ErrUpstreamTimeout.
func (e *UpstreamError) Is(target error) bool {
	return e.Timeout && target == ErrUpstreamTimeout
}
