// Package interfaces defines the shared error types passed between the gateway's
// upstream client, translators and HTTP handlers.
package interfaces

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies gateway failures. The value doubles as the "type" field
// of the JSON error envelope.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth_error"
	KindRateLimited ErrorKind = "rate_limited"
	KindRejected    ErrorKind = "rejected"
	KindUpstream    ErrorKind = "upstream_error"
	KindTranslation ErrorKind = "translation_error"
)

// GatewayError is the error type produced by every gateway component.
type GatewayError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// Body holds the raw upstream response body for upstream errors.
	Body []byte
	// RetryAfter is set for rate limited errors.
	RetryAfter time.Duration
	Cause      error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewAuthError reports a missing, expired or rejected upstream credential.
func NewAuthError(message string, cause error) *GatewayError {
	return &GatewayError{Kind: KindAuth, StatusCode: http.StatusUnauthorized, Message: message, Cause: cause}
}

// NewRateLimited reports a request refused by the rate gate. wait is the remaining window.
func NewRateLimited(wait time.Duration) *GatewayError {
	seconds := int(wait.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return &GatewayError{
		Kind:       KindRateLimited,
		StatusCode: http.StatusTooManyRequests,
		Message:    fmt.Sprintf("Rate limit exceeded. Please wait %d seconds before retrying.", seconds),
		RetryAfter: time.Duration(seconds) * time.Second,
	}
}

// NewRejected reports a request declined by the operator.
func NewRejected(message string) *GatewayError {
	if message == "" {
		message = "Request rejected"
	}
	return &GatewayError{Kind: KindRejected, StatusCode: http.StatusForbidden, Message: message}
}

// NewUpstreamError wraps a non-2xx Copilot response, keeping its status and body.
func NewUpstreamError(status int, body []byte) *GatewayError {
	msg := string(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &GatewayError{Kind: KindUpstream, StatusCode: status, Message: msg, Body: body}
}

// NewTranslationError reports a payload that could not be translated.
// inbound selects 400 (client payload) over 502 (upstream payload).
func NewTranslationError(message string, inbound bool, cause error) *GatewayError {
	status := http.StatusBadGateway
	if inbound {
		status = http.StatusBadRequest
	}
	return &GatewayError{Kind: KindTranslation, StatusCode: status, Message: message, Cause: cause}
}

// AsGatewayError unwraps err into a *GatewayError when possible.
func AsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr != nil {
		return gwErr, true
	}
	return nil, false
}

// ErrorMessage encapsulates an error with an associated HTTP status code.
// This structure is used to provide detailed error information including
// both the HTTP status and the underlying error.
type ErrorMessage struct {
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int

	// Error is the underlying error that occurred.
	Error error

	// Addon contains additional headers to be added to the response.
	Addon http.Header
}

// ToErrorMessage maps any error to the handler-level carrier. Errors outside the
// gateway taxonomy become 500s.
func ToErrorMessage(err error) *ErrorMessage {
	if err == nil {
		return nil
	}
	gwErr, ok := AsGatewayError(err)
	if !ok {
		return &ErrorMessage{StatusCode: http.StatusInternalServerError, Error: err}
	}
	status := gwErr.StatusCode
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	msg := &ErrorMessage{StatusCode: status, Error: gwErr}
	if gwErr.RetryAfter > 0 {
		msg.Addon = http.Header{}
		msg.Addon.Set("Retry-After", strconv.Itoa(int(gwErr.RetryAfter/time.Second)))
	}
	return msg
}
