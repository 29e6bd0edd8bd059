package errdefs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Code identifies a member of the closed error taxonomy.
type Code string

const (
	CodeAuthRequired   Code = "AUTH_REQUIRED"
	CodeAuthFailed     Code = "AUTH_FAILED"
	CodeAuthExpired    Code = "AUTH_EXPIRED"
	CodeNetworkOffline Code = "NETWORK_OFFLINE"
	CodeNetworkError   Code = "NETWORK_ERROR"
	CodeAPIError       Code = "API_ERROR"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeNotFound       Code = "NOT_FOUND"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeStorage        Code = "STORAGE_ERROR"
	CodeUnknown        Code = "UNKNOWN_ERROR"
)

// Error is implemented by every taxonomy member.
type Error interface {
	error
	Code() Code
	UserMessage() string
	// Recoverable reports whether retrying the operation later may succeed
	// without user intervention.
	Recoverable() bool
}

// base carries the fields shared by all taxonomy members.
type base struct {
	code        Code
	msg         string
	userMessage string
	recoverable bool
	cause       error
}

func (e *base) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *base) Unwrap() error       { return e.cause }
func (e *base) Code() Code          { return e.code }
func (e *base) UserMessage() string { return e.userMessage }
func (e *base) Recoverable() bool   { return e.recoverable }

// AuthRequiredError indicates that no credentials are stored at all.
type AuthRequiredError struct{ base }

// NewAuthRequired returns an AuthRequiredError.
func NewAuthRequired() *AuthRequiredError {
	return &AuthRequiredError{base{
		code:        CodeAuthRequired,
		msg:         "no stored credentials",
		userMessage: "Please connect your Asana account to continue.",
	}}
}

// AuthFailedError indicates the provider rejected our credentials outright
// (for example an HTTP 403 on a resource request).
type AuthFailedError struct{ base }

// NewAuthFailed returns an AuthFailedError wrapping cause.
func NewAuthFailed(msg string, cause error) *AuthFailedError {
	return &AuthFailedError{base{
		code:        CodeAuthFailed,
		msg:         msg,
		userMessage: "Asana rejected the request. Please sign in again.",
		cause:       cause,
	}}
}

// AuthExpiredError indicates the session can no longer be refreshed and the
// user must re-authenticate. ProviderCode carries the OAuth error code from
// the token endpoint ("invalid_grant" etc.) when one was parsed.
type AuthExpiredError struct {
	base
	ProviderCode string
}

// NewAuthExpired returns an AuthExpiredError carrying the provider error code.
func NewAuthExpired(msg, providerCode string, cause error) *AuthExpiredError {
	return &AuthExpiredError{
		base: base{
			code:        CodeAuthExpired,
			msg:         msg,
			userMessage: "Your Asana session has expired. Please sign in again.",
			cause:       cause,
		},
		ProviderCode: providerCode,
	}
}

// NetworkOfflineError indicates the connectivity probe reported no network.
type NetworkOfflineError struct{ base }

// NewNetworkOffline returns a NetworkOfflineError.
func NewNetworkOffline() *NetworkOfflineError {
	return &NetworkOfflineError{base{
		code:        CodeNetworkOffline,
		msg:         "no network connectivity",
		userMessage: "You appear to be offline. Check your connection and try again.",
		recoverable: true,
	}}
}

// NetworkError indicates a transport-level failure (dial, TLS, reset) or a
// persistent server-side failure after retries were exhausted.
type NetworkError struct{ base }

// NewNetwork returns a NetworkError wrapping cause.
func NewNetwork(msg string, cause error) *NetworkError {
	return &NetworkError{base{
		code:        CodeNetworkError,
		msg:         msg,
		userMessage: "A network error occurred. Please try again.",
		recoverable: true,
		cause:       cause,
	}}
}

// APIError indicates a non-2xx response from the resource API that is not an
// auth or rate-limit condition.
type APIError struct {
	base
	StatusCode int
}

// NewAPI returns an APIError for the given status code.
func NewAPI(statusCode int, msg, userMessage string, cause error) *APIError {
	if userMessage == "" {
		userMessage = "Asana returned an error. Please try again."
	}
	return &APIError{
		base: base{
			code:        CodeAPIError,
			msg:         msg,
			userMessage: userMessage,
			recoverable: statusCode >= 500,
			cause:       cause,
		},
		StatusCode: statusCode,
	}
}

// RateLimitError indicates HTTP 429 after retries were exhausted. RetryAfter
// is zero when the server did not send a Retry-After header.
type RateLimitError struct {
	base
	RetryAfter time.Duration
}

// NewRateLimit returns a RateLimitError with the server-supplied delay.
func NewRateLimit(retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		base: base{
			code:        CodeRateLimited,
			msg:         "rate limited by the API",
			userMessage: "Too many requests right now. Please wait a moment and try again.",
			recoverable: true,
		},
		RetryAfter: retryAfter,
	}
}

// InvalidRequestError indicates a malformed or unroutable request from a UI
// surface. Never retried.
type InvalidRequestError struct{ base }

// NewInvalidRequest returns an InvalidRequestError.
func NewInvalidRequest(msg string) *InvalidRequestError {
	return &InvalidRequestError{base{
		code:        CodeInvalidRequest,
		msg:         msg,
		userMessage: "The request could not be handled.",
	}}
}

// ValidationError indicates caller-supplied data failed validation.
type ValidationError struct{ base }

// NewValidation returns a ValidationError.
func NewValidation(msg string) *ValidationError {
	return &ValidationError{base{
		code:        CodeValidation,
		msg:         msg,
		userMessage: "Some of the provided values are invalid.",
	}}
}

// StorageError indicates the persistent key-value store failed.
type StorageError struct{ base }

// NewStorage returns a StorageError wrapping cause.
func NewStorage(msg string, cause error) *StorageError {
	return &StorageError{base{
		code:        CodeStorage,
		msg:         msg,
		userMessage: "Saved data could not be read or written.",
		cause:       cause,
	}}
}

// UnknownError is the catch-all for failures that match no other kind.
type UnknownError struct{ base }

// NewUnknown returns an UnknownError wrapping cause.
func NewUnknown(msg string, cause error) *UnknownError {
	return &UnknownError{base{
		code:        CodeUnknown,
		msg:         msg,
		userMessage: genericUserMessage,
		cause:       cause,
	}}
}

const genericUserMessage = "Something went wrong. Please try again."

// maxRawMessageLen bounds how much of an unclassified error's text is ever
// shown to a user.
const maxRawMessageLen = 100

// UserMessage returns a short, safe message for any error. Taxonomy members
// return their own message. For anything else the raw text is used only when
// it is short, single-line and does not look like a stack trace; otherwise a
// generic message is returned.
func UserMessage(err error) string {
	var e Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	if err == nil {
		return genericUserMessage
	}
	msg := err.Error()
	if msg == "" || len(msg) > maxRawMessageLen {
		return genericUserMessage
	}
	if strings.ContainsAny(msg, "\n\t") ||
		strings.Contains(msg, "goroutine ") ||
		strings.Contains(msg, ".go:") {
		return genericUserMessage
	}
	return msg
}

// ErrorCode returns the taxonomy code for any error, CodeUnknown for errors
// outside the taxonomy.
func ErrorCode(err error) Code {
	var e Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return CodeUnknown
}
