package errx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// APIKeyMissingMessage is returned when the server has no upstream credential.
	APIKeyMissingMessage = "API key not configured on the server."
	// MalformedMessage is returned when no JSON object could be recovered from the model reply.
	MalformedMessage = "Malformed JSON response from AI."
	// NoValidResponseMessage is returned when the model produced no usable candidates.
	NoValidResponseMessage = "AI did not provide a valid response after two attempts."
)

var (
	ErrAPIKeyMissing  = errors.New("api key missing")
	ErrNoCandidates   = errors.New("no candidates in response")
	ErrNoJSON         = errors.New("no JSON object found in the string")
	ErrMalformedJSON  = errors.New("malformed JSON")
	ErrUpstreamStatus = errors.New("upstream responded with non-success status")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Internal builds a 500 AppError, the only failure class clients see.
func Internal(err error, message string) *AppError {
	return New(err, http.StatusInternalServerError, message)
}

// StatusError is returned by transports for non-2xx upstream replies.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamStatus
}

// StatusOf resolves the HTTP status to report for err.
func StatusOf(err error) int {
	var ae *AppError
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// MessageOf resolves the client-facing message for err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}

// Redact hides secret in err's text while keeping the chain intact.
func Redact(err error, secret string) error {
	if err == nil || secret == "" {
		return err
	}
	return &redactedError{err: err, secret: secret}
}

type redactedError struct {
	err    error
	secret string
}

func (e *redactedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.secret, "[redacted]")
}

func (e *redactedError) Unwrap() error { return e.err }
