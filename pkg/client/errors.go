package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned when the vendor's quota is exhausted and
	// the request was not sent.
	ErrRateLimited = errors.New("vendor rate limit exhausted")
)

// ErrorClass represents a classification of vendor errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// VendorError is a non-2xx vendor answer or a failed exchange.
type VendorError struct {
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *VendorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vendor %s error (status %d) for %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("vendor %s error (status %d) for %s: %s",
		e.ErrorClass, e.StatusCode, e.URL, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *VendorError) Unwrap() error {
	return e.Err
}

// classOf returns the class of err, or "" if it is not a VendorError.
func classOf(err error) ErrorClass {
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve.ErrorClass
	}
	return ""
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	case ErrorClassClient, ErrorClassRateLimit:
		// the vendor told us to stop; the quota tracker takes over
		return false
	default:
		return false
	}
}

// countsAsFailure reports whether an error should trip the circuit breaker.
func countsAsFailure(errorClass ErrorClass) bool {
	return errorClass == ErrorClassServer || errorClass == ErrorClassNetwork
}
