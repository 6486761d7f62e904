package client

import (
	"errors"
	"fmt"
)

// Standard errors returned by the client.
var (
	// ErrMissingBaseURL indicates the configuration has no base URL.
	ErrMissingBaseURL = errors.New("client: base URL is required")

	// ErrMissingToken indicates the configuration has no auth token.
	ErrMissingToken = errors.New("client: auth token is required")

	// ErrInvalidID indicates an empty template, palette or suggestion id.
	ErrInvalidID = errors.New("id must be a non-empty string")

	// ErrQueueCleared rejects calls removed by Queue.Clear.
	ErrQueueCleared = errors.New("request cancelled: queue cleared")

	// ErrQueueClosed rejects calls enqueued after Queue.Close.
	ErrQueueClosed = errors.New("request cancelled: queue closed")

	// ErrNoRefresher indicates an auth rejection with no token refresher configured.
	ErrNoRefresher = errors.New("no token refresher configured")

	// ErrEmptyToken indicates the token refresher returned an empty token.
	ErrEmptyToken = errors.New("token refresher returned an empty token")

	// ErrUnexpectedResponse indicates a response body with the wrong shape.
	ErrUnexpectedResponse = errors.New("unexpected response shape")
)

// Kind categorizes a failed request.
type Kind int

const (
	// KindOther covers failures with no specific category, including
	// responses reporting success=false.
	KindOther Kind = iota
	// KindTimeout indicates a single attempt exceeded the request timeout.
	KindTimeout
	// KindNetwork indicates the transport failed before a response arrived.
	KindNetwork
	// KindServer indicates a 5xx status.
	KindServer
	// KindRateLimit indicates a 429 status.
	KindRateLimit
	// KindAuth indicates an authentication rejection that refresh could not fix.
	KindAuth
	// KindClient indicates any other 4xx status or a request that could not be built.
	KindClient
	// KindSerialization indicates a body that is not valid JSON.
	KindSerialization
	// KindCancelled indicates the caller's context ended.
	KindCancelled
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOther:
		return "other"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "auth"
	case KindClient:
		return "client"
	case KindSerialization:
		return "serialization"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether requests failing with this kind are retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindServer, KindRateLimit:
		return true
	default:
		return false
	}
}

// Error is a normalized request failure.
type Error struct {
	Kind     Kind
	Method   string
	Endpoint string

	// Status is the HTTP status, zero when no response arrived.
	Status int

	// Code is the machine-readable "code" field of the error body, if any.
	Code string

	// Message is the server-provided message, if any.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error returns the user-facing message.
func (e *Error) Error() string {
	return e.UserMessage()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns a message suitable for display.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindTimeout:
		return "Request timeout. Please check your connection and try again."
	case KindNetwork:
		return "Network error. Please check your internet connection and try again."
	case KindServer:
		return "Server error. Please try again later."
	case KindRateLimit:
		return "Too many requests. Please wait a moment and try again."
	case KindAuth:
		return "Authentication failed. Please refresh the page and try again."
	case KindCancelled:
		return "Request cancelled."
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return "request failed"
}

// Detail returns a diagnostic description including method, endpoint and cause.
func (e *Error) Detail() string {
	s := fmt.Sprintf("%s %s: %s", e.Method, e.Endpoint, e.Kind)
	if e.Status != 0 {
		s += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// KindOf returns the kind of a client error anywhere in err's chain,
// or KindOther when err is not a client error.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return KindOther
}

// IsRetryable reports whether err is a client error of a retryable kind.
func IsRetryable(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr) && cerr.Kind.Retryable()
}

// ErrorPayload is published on error:occurred for terminal request failures.
type ErrorPayload struct {
	Source   string
	Method   string
	Endpoint string
	Err      *Error
}
