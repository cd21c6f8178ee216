package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass classifies upstream failures.
type ErrorClass string

const (
	// ErrorClassTimeout means the bounded wait on the upstream call
	// elapsed. Surfaced to the caller as 504 Gateway Timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork means the upstream could not be reached or
	// gave no response. Surfaced as 502 Bad Gateway.
	ErrorClassNetwork ErrorClass = "network"
)

// UpstreamError wraps a failed upstream call with its classification.
// The proxy performs no retries; the error propagates to the caller as
// a gateway-failure status.
type UpstreamError struct {
	Class  ErrorClass
	Target string
	Err    error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s error (%s): %v", e.Class, e.Target, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// classifyUpstreamError wraps a transport error from the upstream call.
func classifyUpstreamError(err error, target string) *UpstreamError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &UpstreamError{Class: ErrorClassTimeout, Target: target, Err: err}
	}
	return &UpstreamError{Class: ErrorClassNetwork, Target: target, Err: err}
}
